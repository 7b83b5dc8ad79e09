// Package engine wires discovery, watching, classification, evaluation,
// enforcement, and audit into one explicit instance with Start/Reset
// operations. All cross-component traffic flows over channels and direct
// calls inside this package; there is no ambient global state, so
// isolated instances can coexist in tests.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/audit"
	"github.com/arothstein/chatguard/internal/config"
	"github.com/arothstein/chatguard/internal/discovery"
	"github.com/arothstein/chatguard/internal/enforce"
	"github.com/arothstein/chatguard/internal/evaluator"
	"github.com/arothstein/chatguard/internal/page"
	"github.com/arothstein/chatguard/internal/pipeline"
	"github.com/arothstein/chatguard/internal/store"
	"github.com/arothstein/chatguard/internal/watch"
)

// Params assembles an Engine. Config is treated as immutable from here
// on; remote overrides must have been applied before construction.
type Params struct {
	Config    *config.Config
	Surface   page.Surface
	Locator   page.Locator
	Blocks    *store.BlockStore
	Backlog   *store.Backlog
	Evaluator evaluator.Evaluator
	Sink      *audit.Sink
	Logger    *zap.Logger
}

// Engine is one monitoring instance for one page.
type Engine struct {
	cfg     *config.Config
	surface page.Surface
	locator page.Locator
	logger  *zap.Logger

	disc    *discovery.Engine
	watcher *watch.Watcher
	pipe    *pipeline.Pipeline
	ctl     *enforce.Controller
	sink    *audit.Sink
}

// New builds an Engine. Start must be called to begin monitoring.
func New(p Params) *Engine {
	e := &Engine{
		cfg:     p.Config,
		surface: p.Surface,
		locator: p.Locator,
		logger:  p.Logger,
		sink:    p.Sink,
	}

	e.ctl = enforce.NewController(p.Surface, p.Locator, p.Blocks, p.Backlog,
		p.Config.SafeResponse, p.Config.Phone, p.Logger)

	e.pipe = pipeline.New(p.Surface, p.Locator, p.Evaluator, e.handleVerdict, p.Logger)

	e.watcher = watch.New(p.Surface, p.Locator, p.Logger)

	e.disc = discovery.New(discovery.Params{
		Surface:         p.Surface,
		Locator:         p.Locator,
		CheckInterval:   p.Config.CheckInterval,
		MaxRetries:      p.Config.MaxRetries,
		RecheckInterval: p.Config.RecheckInterval,
		Logger:          p.Logger,
	})

	return e
}

// Controller exposes the enforcement controller (for the CLI reset path).
func (e *Engine) Controller() *enforce.Controller {
	return e.ctl
}

// Start runs the engine until ctx ends. If a valid block record exists,
// the page goes straight into lockdown and no message is ever evaluated
// this session.
func (e *Engine) Start(ctx context.Context) error {
	rec, err := e.ctl.RestoreIfBlocked(ctx)
	if err != nil {
		return err
	}

	go e.disc.Run(ctx)
	if e.cfg.HeartbeatInterval > 0 {
		go e.heartbeat(ctx)
	}

	if rec != nil {
		e.logger.Info("block active from previous session",
			zap.String("reason", rec.Reason),
			zap.Time("created_at", rec.CreatedAt()))
		return e.runBlocked(ctx)
	}
	return e.runMonitoring(ctx)
}

// Reset clears all ephemeral classification state. Persisted state is
// untouched; that is the controller's StartFresh.
func (e *Engine) Reset() {
	e.pipe.Reset()
}

// runBlocked re-applies the lockdown every time the widget (re)appears.
func (e *Engine) runBlocked(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.disc.Events():
			if ev.Kind == discovery.Found {
				e.ctl.Lockdown(ctx)
			}
		}
	}
}

// runMonitoring attaches a watcher to every discovered message list and
// sweeps messages that were already rendered. The dedup in the pipeline
// makes the attach-then-sweep order safe: anything delivered twice is
// discarded on the second pass.
func (e *Engine) runMonitoring(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.disc.Events():
			switch ev.Kind {
			case discovery.Found:
				attached, err := e.watcher.Attach(ctx, ev.List, e.pipe.Process)
				if err != nil {
					e.logger.Warn("watcher attach failed", zap.Error(err))
					continue
				}
				if attached {
					e.sweep(ctx, ev.List)
				}
			case discovery.Lost:
				// The observer dies with its container; the next Found
				// brings a fresh container and a fresh attach.
			}
		}
	}
}

// sweep routes messages already present under list through the pipeline.
func (e *Engine) sweep(ctx context.Context, list page.NodeID) {
	existing, err := e.surface.FindAll(ctx, list, e.locator.MessageSelectors())
	if err != nil {
		e.logger.Warn("existing message sweep failed", zap.Error(err))
		return
	}
	for _, node := range existing {
		e.pipe.Process(ctx, node)
	}
}

func (e *Engine) handleVerdict(ctx context.Context, node page.NodeID, botText, userText string, v evaluator.Verdict) {
	entryType := audit.TypePass
	if !v.Safe {
		entryType = audit.TypeBlock
	}
	e.sink.Record(ctx, audit.Entry{
		Type:        entryType,
		BotMessage:  botText,
		UserMessage: userText,
		Reason:      v.Reason,
	})

	if v.Safe {
		return
	}
	if e.cfg.Mode == config.ModeEnforce {
		e.ctl.Block(ctx, node, botText, v.Reason)
	} else {
		e.logger.Warn("unsafe message observed in monitor mode",
			zap.String("reason", v.Reason))
	}
}

// heartbeat logs widget presence periodically; purely diagnostic.
func (e *Engine) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, rootOK, _ := e.surface.Find(ctx, page.DocumentRoot, e.locator.Root)
			e.logger.Debug("heartbeat", zap.Bool("widget", rootOK))
		}
	}
}
