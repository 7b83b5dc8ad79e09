// Package enforce owns the block state machine. Monitoring is the
// working state; Blocked is terminal for the page lifetime and is
// entered either by an unsafe verdict in enforce mode or by restoring a
// persisted block record at startup. Only the explicit start-fresh reset
// leaves it, via a full page reload.
package enforce

import (
	"context"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/page"
	"github.com/arothstein/chatguard/internal/store"
)

// State of the controller.
type State int

const (
	StateMonitoring State = iota
	StateBlocked
)

// InputDisabledPlaceholder replaces the input's prompt once blocked.
const InputDisabledPlaceholder = "Chat ended - Please call us"

var phoneSanitizer = regexp.MustCompile(`[^\d+\-() ]`)

// Controller executes and restores block decisions.
type Controller struct {
	surface page.Surface
	locator page.Locator
	blocks  *store.BlockStore
	backlog *store.Backlog
	logger  *zap.Logger

	safeResponse string
	phone        string

	mu    sync.Mutex
	state State
}

// NewController creates a Controller in the Monitoring state.
func NewController(surface page.Surface, locator page.Locator, blocks *store.BlockStore, backlog *store.Backlog, safeResponse, phone string, logger *zap.Logger) *Controller {
	return &Controller{
		surface:      surface,
		locator:      locator,
		blocks:       blocks,
		backlog:      backlog,
		logger:       logger,
		safeResponse: safeResponse,
		phone:        phone,
		state:        StateMonitoring,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Block runs the enforcement sequence for an unsafe message: replace the
// rendered text, disable input, purge vendor state, persist the block
// record, render the overlay. Re-entry while already Blocked is a no-op;
// the sequence runs at most once per page lifetime.
func (c *Controller) Block(ctx context.Context, msgNode page.NodeID, originalText, reason string) {
	c.mu.Lock()
	if c.state == StateBlocked {
		c.mu.Unlock()
		return
	}
	c.state = StateBlocked
	c.mu.Unlock()

	c.logger.Warn("blocking conversation", zap.String("reason", reason))

	c.replaceMessage(ctx, msgNode)
	c.disableInput(ctx)

	if err := c.surface.PurgeVendorState(ctx, c.locator.VendorMarkers, c.locator.VendorKeys); err != nil {
		c.logger.Warn("vendor state purge failed", zap.Error(err))
	}
	if err := c.blocks.Put(ctx, reason, originalText); err != nil {
		c.logger.Error("persisting block record failed", zap.Error(err))
	}
	c.showOverlay(ctx)
}

// RestoreIfBlocked reads the persisted block record at startup. A valid,
// unexpired record moves the controller to Blocked before any message is
// ever evaluated.
func (c *Controller) RestoreIfBlocked(ctx context.Context) (*store.BlockRecord, error) {
	rec, err := c.blocks.Active(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.state = StateBlocked
	c.mu.Unlock()
	return rec, nil
}

// Lockdown applies the restored block to a freshly discovered widget:
// purge vendor state so the blocked conversation cannot resume, then
// render the terminal overlay. No evaluation, no record rewrite.
func (c *Controller) Lockdown(ctx context.Context) {
	if err := c.surface.PurgeVendorState(ctx, c.locator.VendorMarkers, c.locator.VendorKeys); err != nil {
		c.logger.Warn("vendor state purge failed", zap.Error(err))
	}
	c.disableInput(ctx)
	c.showOverlay(ctx)
}

// StartFresh is the explicit user-initiated reset: delete the block
// record and backlog, purge vendor state, and reload the page into a
// clean Monitoring session.
func (c *Controller) StartFresh(ctx context.Context) error {
	if err := c.blocks.Clear(ctx); err != nil {
		return err
	}
	if err := c.backlog.Clear(ctx); err != nil {
		return err
	}
	if err := c.surface.PurgeVendorState(ctx, c.locator.VendorMarkers, c.locator.VendorKeys); err != nil {
		c.logger.Warn("vendor state purge failed", zap.Error(err))
	}
	c.mu.Lock()
	c.state = StateMonitoring
	c.mu.Unlock()
	return c.surface.Reload(ctx)
}

func (c *Controller) replaceMessage(ctx context.Context, msgNode page.NodeID) {
	textEl, ok, err := c.surface.Find(ctx, msgNode, c.locator.MessageText)
	if err != nil || !ok {
		c.logger.Warn("no text element to replace", zap.Error(err))
		return
	}
	if err := c.surface.SetText(ctx, textEl, c.safeResponse); err != nil {
		c.logger.Warn("replacing message text failed", zap.Error(err))
	}
}

func (c *Controller) disableInput(ctx context.Context) {
	if input, ok, err := c.surface.Find(ctx, page.DocumentRoot, c.locator.Input); err == nil && ok {
		if err := c.surface.SetInputDisabled(ctx, input, InputDisabledPlaceholder); err != nil {
			c.logger.Warn("disabling input failed", zap.Error(err))
		}
	}
	if btn, ok, err := c.surface.Find(ctx, page.DocumentRoot, c.locator.SendButton); err == nil && ok {
		if err := c.surface.SetInputDisabled(ctx, btn, ""); err != nil {
			c.logger.Warn("disabling send button failed", zap.Error(err))
		}
	}
}

func (c *Controller) showOverlay(ctx context.Context) {
	root, ok, err := c.surface.Find(ctx, page.DocumentRoot, c.locator.Root)
	if err != nil || !ok {
		c.logger.Warn("widget root missing, overlay skipped", zap.Error(err))
		return
	}
	anchor := root
	if win, ok, err := c.surface.Find(ctx, root, c.locator.ChatWindow); err == nil && ok {
		anchor = win
	}

	overlay := page.Overlay{
		Heading: "Chat Session Ended",
		Lines: []string{
			"Your conversation was ended to protect you",
			"from inaccurate information.",
		},
		CTAText:     "For accurate information:",
		Phone:       phoneSanitizer.ReplaceAllString(c.phone, ""),
		ButtonLabel: "Start Fresh Chat",
		Footer:      "Protected by ChatGuard",
	}
	if err := c.surface.ShowOverlay(ctx, anchor, overlay); err != nil {
		c.logger.Warn("overlay render failed", zap.Error(err))
	}
}
