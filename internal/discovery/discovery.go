// Package discovery locates the widget root and its message-list
// container under unknown load timing and keeps re-validating that they
// are still attached. One state machine (Searching → Found → Lost →
// Searching) driven by a single timer plus reactive insertion hints
// replaces the original's three overlapping mechanisms.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/page"
)

// Kind tags a discovery event.
type Kind int

const (
	// Found reports a fresh discovery episode: both the root container
	// and a message list are attached. Emitted exactly once per episode.
	Found Kind = iota
	// Lost reports that the root container was confirmed removed.
	Lost
)

// Event is a discovery state transition.
type Event struct {
	Kind Kind
	Root page.NodeID
	List page.NodeID
}

// Params configures an Engine.
type Params struct {
	Surface page.Surface
	Locator page.Locator

	// CheckInterval paces the bounded fast phase, MaxRetries bounds it.
	// After the budget is exhausted the engine keeps trying at
	// RecheckInterval forever; discovery is never fatal.
	CheckInterval   time.Duration
	MaxRetries      int
	RecheckInterval time.Duration

	// BurstDelays schedules extra attempts after an insertion hint,
	// because a widget's internals render some time after its container.
	BurstDelays []time.Duration

	Logger *zap.Logger
}

// Engine runs the discovery state machine.
type Engine struct {
	surface page.Surface
	locator page.Locator

	checkInterval   time.Duration
	maxRetries      int
	recheckInterval time.Duration
	burstDelays     []time.Duration

	logger *zap.Logger
	events chan Event
	hints  chan struct{}
}

// New creates an Engine. Run must be called to start it.
func New(p Params) *Engine {
	delays := p.BurstDelays
	if delays == nil {
		delays = []time.Duration{
			500 * time.Millisecond,
			time.Second,
			2 * time.Second,
			3 * time.Second,
			5 * time.Second,
		}
	}
	return &Engine{
		surface:         p.Surface,
		locator:         p.Locator,
		checkInterval:   p.CheckInterval,
		maxRetries:      p.MaxRetries,
		recheckInterval: p.RecheckInterval,
		burstDelays:     delays,
		logger:          p.Logger,
		events:          make(chan Event, 4),
		hints:           make(chan struct{}, 8),
	}
}

// Events streams Found/Lost transitions.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Run drives the state machine until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	additions, stopObs, err := e.surface.ObserveAdditions(ctx, page.DocumentRoot)
	if err != nil {
		e.logger.Warn("document observation unavailable, relying on polling only", zap.Error(err))
	} else {
		defer stopObs()
		go e.hintLoop(ctx, additions)
	}

	var (
		searching = true
		attempts  = 0
		root      page.NodeID
		list      page.NodeID
	)

	timer := time.NewTimer(0) // first attempt immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-e.hints:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if searching {
			r, l, ok := e.tryFind(ctx)
			if ok {
				searching = false
				root, list = r, l
				e.logger.Info("widget found", zap.String("root", string(root)))
				if !e.emit(ctx, Event{Kind: Found, Root: root, List: list}) {
					return
				}
				timer.Reset(e.recheckInterval)
				continue
			}
			attempts++
			if attempts == e.maxRetries {
				e.logger.Warn("initial search budget exhausted, continuing at reduced frequency",
					zap.Int("attempts", attempts))
			}
			if attempts < e.maxRetries {
				timer.Reset(e.checkInterval)
			} else {
				timer.Reset(e.recheckInterval)
			}
			continue
		}

		// Found: confirm the root container is still attached. A missing
		// message list alone does not end the episode; the widget keeps
		// its container while re-rendering internals.
		attached, err := e.surface.Attached(ctx, root)
		if err != nil {
			e.logger.Warn("attachment check failed", zap.Error(err))
		}
		if err == nil && !attached {
			e.logger.Info("widget container removed, re-entering search")
			searching = true
			attempts = 0
			root, list = "", ""
			if !e.emit(ctx, Event{Kind: Lost}) {
				return
			}
			timer.Reset(e.checkInterval)
			continue
		}
		timer.Reset(e.recheckInterval)
	}
}

// hintLoop turns document insertions into discovery hints. Any insertion
// after which the root container exists triggers an immediate attempt
// plus a staggered burst for the late-rendering internals.
func (e *Engine) hintLoop(ctx context.Context, additions <-chan page.Addition) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-additions:
			if !ok {
				return
			}
			if _, found, err := e.surface.Find(ctx, page.DocumentRoot, e.locator.Root); err != nil || !found {
				continue
			}
			e.hint()
			for _, d := range e.burstDelays {
				delay := d
				go func() {
					select {
					case <-ctx.Done():
					case <-time.After(delay):
						e.hint()
					}
				}()
			}
		}
	}
}

func (e *Engine) hint() {
	select {
	case e.hints <- struct{}{}:
	default:
	}
}

func (e *Engine) tryFind(ctx context.Context) (page.NodeID, page.NodeID, bool) {
	root, ok, err := e.surface.Find(ctx, page.DocumentRoot, e.locator.Root)
	if err != nil || !ok {
		return "", "", false
	}
	list, ok, err := e.surface.FindFirst(ctx, root, e.locator.MessageLists)
	if err != nil || !ok {
		return "", "", false
	}
	return root, list, true
}

func (e *Engine) emit(ctx context.Context, ev Event) bool {
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
