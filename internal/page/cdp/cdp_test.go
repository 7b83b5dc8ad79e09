package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/page"
)

// devtoolsStub speaks just enough of the protocol for the Surface: a
// scripted node tree behind DOM.getDocument / querySelector /
// getAttributes, plus an event injection hook.
type devtoolsStub struct {
	t *testing.T

	mu      sync.Mutex
	conn    *websocket.Conn
	classes map[int]string // nodeId -> class attribute
	queries map[string]int // selector -> nodeId (0 means no match)
	gone    map[int]bool   // nodeIds answered with a stale-node error
}

func newDevtoolsStub(t *testing.T) (*devtoolsStub, string) {
	t.Helper()
	stub := &devtoolsStub{
		t:       t,
		classes: map[int]string{},
		queries: map[string]int{},
		gone:    map[int]bool{},
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		stub.mu.Lock()
		stub.conn = conn
		stub.mu.Unlock()
		stub.serve(conn)
	}))
	t.Cleanup(srv.Close)
	return stub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (s *devtoolsStub) serve(conn *websocket.Conn) {
	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		resp := s.handle(msg)
		s.mu.Lock()
		err := conn.WriteJSON(resp)
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *devtoolsStub) handle(msg rpcMessage) rpcMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := func(result string) rpcMessage {
		return rpcMessage{ID: msg.ID, Result: json.RawMessage(result)}
	}

	switch msg.Method {
	case "DOM.enable", "Page.enable", "Runtime.enable":
		return ok(`{}`)
	case "DOM.getDocument":
		return ok(`{"root":{"nodeId":1}}`)
	case "DOM.querySelector":
		var p selectorParams
		_ = json.Unmarshal(msg.Params, &p)
		return ok(`{"nodeId":` + strconv.Itoa(s.queries[p.Selector]) + `}`)
	case "DOM.getAttributes":
		var p nodeIDParam
		_ = json.Unmarshal(msg.Params, &p)
		if s.gone[p.NodeID] {
			return rpcMessage{ID: msg.ID, Error: &rpcError{Code: -32000, Message: "Could not find node with given id"}}
		}
		b, _ := json.Marshal(map[string]any{"attributes": []string{"class", s.classes[p.NodeID]}})
		return ok(string(b))
	default:
		s.t.Logf("unhandled method %s", msg.Method)
		return ok(`{}`)
	}
}

// emit injects a protocol event frame.
func (s *devtoolsStub) emit(method string, params string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteJSON(map[string]any{"method": method, "params": json.RawMessage(params)})
}

func newTestSurface(t *testing.T) (*Surface, *devtoolsStub) {
	t.Helper()
	stub, wsURL := newDevtoolsStub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, err := Dial(ctx, wsURL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	surface, err := NewSurface(ctx, conn, zap.NewNop())
	require.NoError(t, err)
	return surface, stub
}

func TestSurface_FindResolvesSelectors(t *testing.T) {
	surface, stub := newTestSurface(t)
	ctx := context.Background()

	stub.mu.Lock()
	stub.queries["#impel-chatbot"] = 7
	stub.mu.Unlock()

	id, found, err := surface.Find(ctx, page.DocumentRoot, "#impel-chatbot")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, page.NodeID("7"), id)

	_, found, err = surface.Find(ctx, page.DocumentRoot, ".does-not-exist")
	require.NoError(t, err)
	assert.False(t, found, "protocol nodeId 0 means no match")
}

func TestSurface_FindFirstWalksFallbackChain(t *testing.T) {
	surface, stub := newTestSurface(t)
	ctx := context.Background()

	stub.mu.Lock()
	stub.queries[`[class*="messagesList"]`] = 12
	stub.mu.Unlock()

	id, found, err := surface.FindFirst(ctx, page.DocumentRoot,
		[]string{"._messagesList_hamrg_14", `[class*="messagesList"]`})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, page.NodeID("12"), id)
}

func TestSurface_ClassNameAndStaleNodes(t *testing.T) {
	surface, stub := newTestSurface(t)
	ctx := context.Background()

	stub.mu.Lock()
	stub.classes[7] = "_assistantMessageContainer_ricj1_1 assistantMessage"
	stub.gone[9] = true
	stub.mu.Unlock()

	class, err := surface.ClassName(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "_assistantMessageContainer_ricj1_1 assistantMessage", class)

	class, err = surface.ClassName(ctx, "9")
	require.NoError(t, err, "stale node id is absence, not failure")
	assert.Empty(t, class)
}

func TestSurface_ObserveAdditionsStreamsInsertedElements(t *testing.T) {
	surface, stub := newTestSurface(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	additions, stop, err := surface.ObserveAdditions(ctx, page.DocumentRoot)
	require.NoError(t, err)
	defer stop()

	stub.emit("DOM.childNodeInserted",
		`{"parentNodeId":3,"node":{"nodeId":42,"nodeType":1}}`)
	// Text nodes must be filtered out.
	stub.emit("DOM.childNodeInserted",
		`{"parentNodeId":3,"node":{"nodeId":43,"nodeType":3}}`)

	select {
	case add := <-additions:
		assert.Equal(t, page.NodeID("3"), add.Parent)
		assert.Equal(t, page.NodeID("42"), add.Node)
	case <-time.After(2 * time.Second):
		t.Fatal("no addition delivered")
	}

	select {
	case add := <-additions:
		t.Fatalf("unexpected second addition: %+v", add)
	case <-time.After(100 * time.Millisecond):
	}
}
