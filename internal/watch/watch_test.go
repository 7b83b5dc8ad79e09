package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/page"
)

type recorder struct {
	mu    sync.Mutex
	nodes []page.NodeID
}

func (r *recorder) deliver(_ context.Context, node page.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, node)
}

func (r *recorder) wait(t *testing.T, n int) []page.NodeID {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.nodes) >= n {
			out := append([]page.NodeID(nil), r.nodes...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d delivered nodes", n)
	return nil
}

func setup(t *testing.T) (*page.Fake, *Watcher, page.NodeID) {
	f := page.NewFake()
	root := f.AddElement(page.DocumentRoot, "div", "impel-chatbot", "", "")
	list := f.AddElement(root, "div", "", "_messagesList_hamrg_14", "")
	return f, New(f, page.DefaultLocator(), zap.NewNop()), list
}

func TestWatcher_ForwardsDirectMessageElements(t *testing.T) {
	f, w, list := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	attached, err := w.Attach(ctx, list, rec.deliver)
	require.NoError(t, err)
	require.True(t, attached)

	user := f.AddElement(list, "div", "", "_userMessageContainer_1e59u_1", "hi")
	bot := f.AddElement(list, "div", "", "_assistantMessageContainer_ricj1_1", "hello")

	nodes := rec.wait(t, 2)
	assert.Equal(t, []page.NodeID{user, bot}, nodes, "insertion order preserved")
}

func TestWatcher_FindsMessagesInsideWrapperNodes(t *testing.T) {
	f, w, list := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	_, err := w.Attach(ctx, list, rec.deliver)
	require.NoError(t, err)

	// The widget sometimes inserts a batch wrapper holding messages.
	wrapper := f.AddElement(list, "div", "", "batch", "")
	inner := f.AddElement(wrapper, "div", "", "_assistantMessageContainer_ricj1_1", "hello")

	nodes := rec.wait(t, 1)
	assert.Contains(t, nodes, inner)
}

func TestWatcher_IgnoresNonMessageElements(t *testing.T) {
	f, w, list := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	_, err := w.Attach(ctx, list, rec.deliver)
	require.NoError(t, err)

	f.AddElement(list, "div", "", "typingIndicator", "")
	time.Sleep(30 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.nodes)
}

func TestWatcher_AttachIsIdempotentPerContainer(t *testing.T) {
	f, w, list := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	first, err := w.Attach(ctx, list, rec.deliver)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := w.Attach(ctx, list, rec.deliver)
	require.NoError(t, err)
	assert.False(t, second, "same container must not get a second observer")

	f.AddElement(list, "div", "", "_userMessageContainer_1e59u_1", "hi")
	nodes := rec.wait(t, 1)
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.nodes, len(nodes), "exactly one delivery despite the re-attach attempt")
}

func TestWatcher_NewContainerGetsNewObserver(t *testing.T) {
	f, w, list := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	_, err := w.Attach(ctx, list, rec.deliver)
	require.NoError(t, err)

	// Widget torn down and recreated with a fresh container.
	f.Remove(list)
	root2 := f.AddElement(page.DocumentRoot, "div", "impel-chatbot", "", "")
	list2 := f.AddElement(root2, "div", "", "_messagesList_hamrg_14", "")

	attached, err := w.Attach(ctx, list2, rec.deliver)
	require.NoError(t, err)
	assert.True(t, attached, "a recreated container is a new attachment")

	msg := f.AddElement(list2, "div", "", "_assistantMessageContainer_ricj1_1", "back")
	nodes := rec.wait(t, 1)
	assert.Contains(t, nodes, msg)
}
