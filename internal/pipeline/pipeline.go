// Package pipeline classifies newly rendered message elements: role
// extraction, exactly-once dedup by text fingerprint, a bounded rolling
// conversation context, and dispatch of bot messages to the evaluator.
package pipeline

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/evaluator"
	"github.com/arothstein/chatguard/internal/fingerprint"
	"github.com/arothstein/chatguard/internal/page"
)

// Role of a rendered message.
type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleBot
)

// contextCap bounds the rolling conversation context.
const contextCap = 20

type message struct {
	role Role
	text string
}

// VerdictFunc receives the evaluation outcome for a bot message along
// with the element it was rendered in.
type VerdictFunc func(ctx context.Context, node page.NodeID, botText, userText string, v evaluator.Verdict)

// Pipeline processes message elements. Process is called from the
// watcher's delivery goroutine; the seen-set and context are appended
// synchronously before any evaluation starts, so a re-delivered text can
// never race its way past the dedup check.
type Pipeline struct {
	surface   page.Surface
	locator   page.Locator
	eval      evaluator.Evaluator
	onVerdict VerdictFunc
	logger    *zap.Logger

	mu             sync.Mutex
	seen           map[fingerprint.Fingerprint]struct{}
	history        []message
	userInteracted bool
}

// New creates a Pipeline dispatching verdicts to onVerdict.
func New(surface page.Surface, locator page.Locator, eval evaluator.Evaluator, onVerdict VerdictFunc, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		surface:   surface,
		locator:   locator,
		eval:      eval,
		onVerdict: onVerdict,
		logger:    logger,
		seen:      make(map[fingerprint.Fingerprint]struct{}),
	}
}

// Process classifies one message element. Elements that are not
// messages, have no text, or whose text was already seen are discarded.
func (p *Pipeline) Process(ctx context.Context, node page.NodeID) {
	role := p.roleOf(ctx, node)
	if role == RoleUnknown {
		return
	}

	text, ok := p.textOf(ctx, node)
	if !ok {
		return
	}

	fp := fingerprint.Text(text)

	p.mu.Lock()
	if _, dup := p.seen[fp]; dup {
		p.mu.Unlock()
		return
	}
	p.seen[fp] = struct{}{}
	p.appendLocked(message{role: role, text: text})

	if role == RoleUser {
		p.userInteracted = true
		p.mu.Unlock()
		p.logger.Debug("user message", zap.String("text", snippet(text)))
		return
	}

	// Bot message. Greetings rendered before the user has said anything
	// are never evaluated; that is policy, not an omission.
	interacted := p.userInteracted
	userText := p.lastUserTextLocked()
	p.mu.Unlock()

	p.logger.Debug("bot message", zap.String("text", snippet(text)))
	if !interacted {
		p.logger.Debug("skipping evaluation, no user interaction yet")
		return
	}

	verdict := p.eval.Evaluate(ctx, text, userText)
	p.onVerdict(ctx, node, text, userText, verdict)
}

// Reset clears all ephemeral state: the seen-set, the rolling context,
// and the interaction flag. Used by the explicit full reset only.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[fingerprint.Fingerprint]struct{})
	p.history = nil
	p.userInteracted = false
}

func (p *Pipeline) roleOf(ctx context.Context, node page.NodeID) Role {
	class, err := p.surface.ClassName(ctx, node)
	if err != nil {
		return RoleUnknown
	}
	for _, marker := range p.locator.BotMarkers {
		if strings.Contains(class, marker) {
			return RoleBot
		}
	}
	for _, marker := range p.locator.UserMarkers {
		if strings.Contains(class, marker) {
			return RoleUser
		}
	}
	return RoleUnknown
}

// textOf extracts the message's visible text via the locator's text
// element. A message without a text element or with empty text is not
// processable.
func (p *Pipeline) textOf(ctx context.Context, node page.NodeID) (string, bool) {
	textEl, ok, err := p.surface.Find(ctx, node, p.locator.MessageText)
	if err != nil || !ok {
		return "", false
	}
	text, err := p.surface.Text(ctx, textEl)
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

func (p *Pipeline) appendLocked(m message) {
	p.history = append(p.history, m)
	if len(p.history) > contextCap {
		p.history = p.history[len(p.history)-contextCap:]
	}
}

// lastUserTextLocked scans the context backward for the most recent user
// utterance; empty string when the user has none in the window.
func (p *Pipeline) lastUserTextLocked() string {
	for i := len(p.history) - 1; i >= 0; i-- {
		if p.history[i].role == RoleUser {
			return p.history[i].text
		}
	}
	return ""
}

func snippet(s string) string {
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}
