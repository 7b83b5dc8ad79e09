// Package watch subscribes to structural additions under a message-list
// container and forwards every element that looks like a message to the
// pipeline. Attaching twice to the same container is a no-op, which is
// what lets the resilience loop re-discover freely.
package watch

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/page"
)

// Deliver receives message elements in insertion order.
type Deliver func(ctx context.Context, node page.NodeID)

// Watcher attaches structural observers to message-list containers.
type Watcher struct {
	surface page.Surface
	locator page.Locator
	logger  *zap.Logger

	mu      sync.Mutex
	watched map[page.NodeID]bool
}

// New creates a Watcher.
func New(surface page.Surface, locator page.Locator, logger *zap.Logger) *Watcher {
	return &Watcher{
		surface: surface,
		locator: locator,
		logger:  logger,
		watched: make(map[page.NodeID]bool),
	}
}

// Attach observes additions under list and forwards message elements to
// deliver until ctx ends. Returns false if this container is already
// being watched.
func (w *Watcher) Attach(ctx context.Context, list page.NodeID, deliver Deliver) (bool, error) {
	w.mu.Lock()
	if w.watched[list] {
		w.mu.Unlock()
		return false, nil
	}
	w.watched[list] = true
	w.mu.Unlock()

	additions, stop, err := w.surface.ObserveAdditions(ctx, list)
	if err != nil {
		w.mu.Lock()
		delete(w.watched, list)
		w.mu.Unlock()
		return false, err
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case add, ok := <-additions:
				if !ok {
					return
				}
				w.route(ctx, add.Node, deliver)
			}
		}
	}()

	w.logger.Info("watching message list", zap.String("list", string(list)))
	return true, nil
}

// route forwards the added element if it is itself a message, then any
// message descendants (widgets insert wrapper nodes around messages).
func (w *Watcher) route(ctx context.Context, node page.NodeID, deliver Deliver) {
	class, err := w.surface.ClassName(ctx, node)
	if err == nil && w.isMessageClass(class) {
		deliver(ctx, node)
	}

	descendants, err := w.surface.FindAll(ctx, node, w.locator.MessageSelectors())
	if err != nil {
		w.logger.Warn("descendant search failed", zap.Error(err))
		return
	}
	for _, d := range descendants {
		deliver(ctx, d)
	}
}

func (w *Watcher) isMessageClass(class string) bool {
	for _, marker := range w.locator.BotMarkers {
		if strings.Contains(class, marker) {
			return true
		}
	}
	for _, marker := range w.locator.UserMarkers {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}
