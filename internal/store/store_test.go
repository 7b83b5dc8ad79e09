package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestKV(t *testing.T) *SQLite {
	t.Helper()
	kv, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestKV_PutGetDelete(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Put(ctx, "k", []byte("v1")))
	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	// Whole-value overwrite
	require.NoError(t, kv.Put(ctx, "k", []byte("v2")))
	value, _, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysFor_NamespacedByTenant(t *testing.T) {
	a := KeysFor("koons-motors")
	b := KeysFor("eastside-auto")
	assert.Equal(t, "chatguard_koons-motors_blocked", a.Block)
	assert.Equal(t, "chatguard_koons-motors_logs", a.Backlog)
	assert.NotEqual(t, a.Block, b.Block)
	assert.NotEqual(t, a.Backlog, b.Backlog)
}

func TestBacklog_CapDropsOldest(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()
	backlog := NewBacklog(kv, "logs", 5)

	for i := 0; i < 8; i++ {
		require.NoError(t, backlog.Append(ctx, BacklogEntry{
			ID:     fmt.Sprintf("e%d", i),
			Type:   "pass",
			Reason: "No risky keywords",
		}))
	}

	entries, err := backlog.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 5, "backlog must retain only the newest cap entries")
	assert.Equal(t, "e3", entries[0].ID, "oldest surviving entry")
	assert.Equal(t, "e7", entries[4].ID, "newest entry last")
}

func TestBacklog_CorruptValueTreatedAsEmpty(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "logs", []byte("{not json")))

	backlog := NewBacklog(kv, "logs", 0)
	entries, err := backlog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, backlog.Append(ctx, BacklogEntry{ID: "fresh"}))
	entries, err = backlog.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].ID)
}
