package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/store"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd(&App{Version: "test"})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "status")
	assert.Contains(t, names, "logs")
	assert.Contains(t, names, "clear")
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "chatguard.yaml")
	content := "tenant_id: dealer-42\nstore_path: " + filepath.Join(dir, "chatguard.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClearCmd_RemovesBlockRecord(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	storePath := filepath.Join(dir, "chatguard.db")

	// Seed an active block the way the engine would have left it.
	kv, err := store.Open(storePath)
	require.NoError(t, err)
	blocks := store.NewBlockStore(kv, store.KeysFor("dealer-42").Block, 24*time.Hour, zap.NewNop())
	require.NoError(t, blocks.Put(context.Background(), "Risky keyword detected", "bad text"))
	require.NoError(t, kv.Close())

	root := NewRootCmd(&App{})
	root.SetArgs([]string{"clear", "--config", cfgPath})
	require.NoError(t, root.Execute())

	kv, err = store.Open(storePath)
	require.NoError(t, err)
	defer kv.Close()
	blocks = store.NewBlockStore(kv, store.KeysFor("dealer-42").Block, 24*time.Hour, zap.NewNop())
	rec, err := blocks.Active(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec, "block record lifted")
}

func TestClearCmd_RequiresTenant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_path: "+filepath.Join(dir, "x.db")+"\n"), 0o600))

	root := NewRootCmd(&App{})
	root.SetArgs([]string{"clear", "--config", path})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}
