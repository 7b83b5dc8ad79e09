package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultBacklogCap is how many audit entries the local backlog retains.
const DefaultBacklogCap = 100

// BacklogEntry is one locally retained audit record.
type BacklogEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // "pass" or "block"
	BotMessage  string `json:"botMessage"`
	UserMessage string `json:"userMessage"`
	Reason      string `json:"reason"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
}

// Time returns the entry's timestamp.
func (e BacklogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Backlog is a bounded, oldest-first audit buffer persisted as a single
// JSON value. Appends beyond the cap drop the oldest entries.
type Backlog struct {
	kv  KV
	key string
	cap int
}

// NewBacklog creates a Backlog writing under key. cap <= 0 uses
// DefaultBacklogCap.
func NewBacklog(kv KV, key string, cap int) *Backlog {
	if cap <= 0 {
		cap = DefaultBacklogCap
	}
	return &Backlog{kv: kv, key: key, cap: cap}
}

// Append adds an entry, trimming to the newest cap entries. An
// unreadable stored value is replaced rather than propagated.
func (b *Backlog) Append(ctx context.Context, entry BacklogEntry) error {
	entries, err := b.List(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > b.cap {
		entries = entries[len(entries)-b.cap:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding audit backlog: %w", err)
	}
	if err := b.kv.Put(ctx, b.key, data); err != nil {
		return fmt.Errorf("persisting audit backlog: %w", err)
	}
	return nil
}

// List returns all retained entries, oldest first.
func (b *Backlog) List(ctx context.Context) ([]BacklogEntry, error) {
	data, ok, err := b.kv.Get(ctx, b.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var entries []BacklogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt backlog is not worth failing enforcement over.
		return nil, nil
	}
	return entries, nil
}

// Clear removes the backlog.
func (b *Backlog) Clear(ctx context.Context) error {
	return b.kv.Delete(ctx, b.key)
}
