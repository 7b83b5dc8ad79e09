package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/audit"
	"github.com/arothstein/chatguard/internal/config"
	"github.com/arothstein/chatguard/internal/evaluator"
	"github.com/arothstein/chatguard/internal/page"
	"github.com/arothstein/chatguard/internal/store"
)

const (
	botClass  = "_assistantMessageContainer_ricj1_1 assistantMessage"
	userClass = "_userMessageContainer_1e59u_1 userMessage"
)

type stubEvaluator struct {
	mu      sync.Mutex
	calls   []string
	verdict evaluator.Verdict
}

func (s *stubEvaluator) Evaluate(_ context.Context, botText, _ string) evaluator.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, botText)
	return s.verdict
}

func (s *stubEvaluator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fixture struct {
	fake    *page.Fake
	cfg     *config.Config
	blocks  *store.BlockStore
	backlog *store.Backlog
	eng     *Engine

	root page.NodeID
	list page.NodeID
}

// newFixture builds an engine over a fake page with a fully rendered
// widget and fast discovery timings. logSrv absorbs audit deliveries.
func newFixture(t *testing.T, eval evaluator.Evaluator, mode config.Mode) *fixture {
	t.Helper()

	f := page.NewFake()
	root := f.AddElement(page.DocumentRoot, "div", "impel-chatbot", "", "")
	window := f.AddElement(root, "div", "", "_chatWindow_18och_19", "")
	list := f.AddElement(window, "div", "", "_messagesList_hamrg_14", "")
	f.AddElement(window, "input", "", "_inputText_ti1lk_18", "")
	f.AddElement(window, "button", "", "_sendButton_ti1lk_41", "")

	logSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(logSrv.Close)

	kv, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	keys := store.KeysFor("dealer-42")
	blocks := store.NewBlockStore(kv, keys.Block, 24*time.Hour, zap.NewNop())
	backlog := store.NewBacklog(kv, keys.Backlog, 0)

	cfg := &config.Config{
		TenantID:        "dealer-42",
		Mode:            mode,
		CheckInterval:   10 * time.Millisecond,
		MaxRetries:      20,
		RecheckInterval: 20 * time.Millisecond,
		SafeResponse:    config.DefaultSafeResponse,
		Phone:           "(301) 555-0188",
	}

	eng := New(Params{
		Config:    cfg,
		Surface:   f,
		Locator:   page.DefaultLocator(),
		Blocks:    blocks,
		Backlog:   backlog,
		Evaluator: eval,
		Sink:      audit.NewSink(logSrv.URL, cfg.TenantID, backlog, zap.NewNop()),
		Logger:    zap.NewNop(),
	})

	return &fixture{fake: f, cfg: cfg, blocks: blocks, backlog: backlog,
		eng: eng, root: root, list: list}
}

func (fx *fixture) addMessage(class, text string) page.NodeID {
	msg := fx.fake.AddElement(fx.list, "div", "", class, "")
	fx.fake.AddElement(msg, "div", "", "_messageText_frcys_28", text)
	return msg
}

func start(t *testing.T, eng *Engine) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

// A remote evaluator that never answers within the request timeout must
// not stall enforcement: the verdict falls back to the local heuristic,
// and that verdict is what drives the block.
func TestEngine_EvaluatorTimeoutFallsBackAndBlocks(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	defer slow.Close()

	eval := evaluator.NewClient(slow.URL, "dealer-42", 100*time.Millisecond, zap.NewNop())
	fx := newFixture(t, eval, config.ModeEnforce)

	// Rendered before the engine starts; the sweep picks both up.
	fx.addMessage(userClass, "can you guarantee me a price?")
	fx.addMessage(botClass, "We guarantee you'll get $8,000")

	start(t, fx.eng)

	require.Eventually(t, func() bool {
		return fx.fake.OverlayRenders() == 1
	}, 3*time.Second, 10*time.Millisecond, "fallback verdict reaches the controller")

	rec, err := fx.blocks.Active(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, evaluator.ReasonRiskyKeyword, rec.Reason,
		"reason comes from the local heuristic, not the remote")
	assert.Equal(t, "We guarantee you'll get $8,000", rec.OriginalMessage)
}

// Removing and reinserting the widget must yield exactly one fresh
// watcher on the new list and no re-evaluation of already-seen text.
func TestEngine_WidgetReinsertionNoDuplicateProcessing(t *testing.T) {
	eval := &stubEvaluator{verdict: evaluator.Verdict{Safe: true, Reason: "ok"}}
	fx := newFixture(t, eval, config.ModeEnforce)

	fx.addMessage(userClass, "what's my trade worth?")
	fx.addMessage(botClass, "Bring it in and we'll take a look.")

	start(t, fx.eng)

	require.Eventually(t, func() bool {
		return eval.callCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Tear the whole widget out, then render it again with the same
	// conversation plus one new reply.
	fx.fake.Remove(fx.root)
	time.Sleep(100 * time.Millisecond) // let the recheck confirm the loss

	fx.root = fx.fake.AddElement(page.DocumentRoot, "div", "impel-chatbot", "", "")
	window := fx.fake.AddElement(fx.root, "div", "", "_chatWindow_18och_19", "")
	fx.list = fx.fake.AddElement(window, "div", "", "_messagesList_hamrg_14", "")
	fx.addMessage(userClass, "what's my trade worth?")
	fx.addMessage(botClass, "Bring it in and we'll take a look.")
	fx.addMessage(botClass, "We have openings tomorrow morning.")

	require.Eventually(t, func() bool {
		return eval.callCount() == 2
	}, 3*time.Second, 10*time.Millisecond, "only the new reply is evaluated")

	// Give any stray duplicate delivery time to surface.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, eval.callCount(), "re-rendered text is never re-evaluated")
	eval.mu.Lock()
	assert.Equal(t, "We have openings tomorrow morning.", eval.calls[1])
	eval.mu.Unlock()
}

// Monitor mode records the verdict but leaves the page untouched.
func TestEngine_MonitorModeRecordsWithoutBlocking(t *testing.T) {
	eval := &stubEvaluator{verdict: evaluator.Verdict{Safe: false, Reason: "Risky keyword detected"}}
	fx := newFixture(t, eval, config.ModeMonitor)

	fx.addMessage(userClass, "any deals?")
	fx.addMessage(botClass, "We promise the lowest price in the state.")

	start(t, fx.eng)

	require.Eventually(t, func() bool {
		entries, err := fx.backlog.List(context.Background())
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.Type == audit.TypeBlock {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond, "block verdict lands in the backlog")

	assert.Zero(t, fx.fake.OverlayRenders(), "no overlay in monitor mode")
	rec, err := fx.blocks.Active(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec, "no block record in monitor mode")
}

// A persisted block record locks the page down at startup before any
// message is evaluated.
func TestEngine_RestoredBlockLocksDownWithoutEvaluation(t *testing.T) {
	eval := &stubEvaluator{verdict: evaluator.Verdict{Safe: true, Reason: "ok"}}
	fx := newFixture(t, eval, config.ModeEnforce)

	require.NoError(t, fx.blocks.Put(context.Background(), "Risky keyword detected", "old text"))

	fx.addMessage(userClass, "hello again")
	fx.addMessage(botClass, "Welcome back! Still interested in that guarantee?")

	start(t, fx.eng)

	require.Eventually(t, func() bool {
		return fx.fake.OverlayRenders() >= 1
	}, 3*time.Second, 10*time.Millisecond, "lockdown applied on discovery")

	assert.Zero(t, eval.callCount(), "no message is evaluated while blocked")
	assert.GreaterOrEqual(t, fx.fake.PurgeCount(), 1)
}
