package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BlockRecord marks the current conversation as terminated. It is read
// back at every startup to decide whether the page goes straight into the
// blocked state without any evaluation.
type BlockRecord struct {
	Blocked         bool   `json:"blocked"`
	Timestamp       int64  `json:"timestamp"` // unix milliseconds
	Reason          string `json:"reason"`
	OriginalMessage string `json:"originalMessage"`
}

// CreatedAt returns the record's creation time.
func (r BlockRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// BlockStore persists the block record with TTL semantics: a record older
// than the TTL is treated as absent and deleted on read. A record that
// fails to parse is treated the same way, so corruption self-heals.
type BlockStore struct {
	kv     KV
	key    string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewBlockStore creates a BlockStore writing under key with the given TTL.
func NewBlockStore(kv KV, key string, ttl time.Duration, logger *zap.Logger) *BlockStore {
	return &BlockStore{kv: kv, key: key, ttl: ttl, now: time.Now, logger: logger}
}

// Put writes a fresh block record.
func (b *BlockStore) Put(ctx context.Context, reason, originalMessage string) error {
	rec := BlockRecord{
		Blocked:         true,
		Timestamp:       b.now().UnixMilli(),
		Reason:          reason,
		OriginalMessage: originalMessage,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding block record: %w", err)
	}
	if err := b.kv.Put(ctx, b.key, data); err != nil {
		return fmt.Errorf("persisting block record: %w", err)
	}
	return nil
}

// Active returns the current block record, or nil if there is none.
// Expired and unparseable records are deleted and reported as absent.
func (b *BlockStore) Active(ctx context.Context) (*BlockRecord, error) {
	data, ok, err := b.kv.Get(ctx, b.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var rec BlockRecord
	if err := json.Unmarshal(data, &rec); err != nil || !rec.Blocked {
		b.logger.Warn("discarding unreadable block record", zap.Error(err))
		if delErr := b.kv.Delete(ctx, b.key); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}

	if b.now().Sub(rec.CreatedAt()) > b.ttl {
		b.logger.Info("block record expired",
			zap.Time("created_at", rec.CreatedAt()),
			zap.Duration("ttl", b.ttl))
		if err := b.kv.Delete(ctx, b.key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &rec, nil
}

// Clear removes the block record.
func (b *BlockStore) Clear(ctx context.Context) error {
	return b.kv.Delete(ctx, b.key)
}
