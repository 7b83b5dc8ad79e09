// Package cdp implements the page.Surface port against a live browser
// tab over the Chrome DevTools Protocol.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrConnClosed reports a call against a connection whose read loop has
// terminated.
var ErrConnClosed = errors.New("cdp: connection closed")

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

type rpcMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("cdp: %s (code %d)", e.Message, e.Code)
}

type eventSub struct {
	method string
	ch     chan json.RawMessage
}

// Conn is one DevTools protocol session. Writes are serialized; a single
// read loop correlates responses by id and fans events out to
// subscribers.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	nextSub int64
	pending map[int64]chan rpcMessage
	subs    map[int64]eventSub

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to a DevTools endpoint. An http(s) URL is treated as the
// browser's debugging address and resolved to the first page target via
// /json/list; a ws(s) URL is dialed directly.
func Dial(ctx context.Context, devtoolsURL string, logger *zap.Logger) (*Conn, error) {
	wsURL := devtoolsURL
	if strings.HasPrefix(devtoolsURL, "http://") || strings.HasPrefix(devtoolsURL, "https://") {
		resolved, err := resolvePageTarget(ctx, devtoolsURL)
		if err != nil {
			return nil, err
		}
		wsURL = resolved
	}

	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c := &Conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[int64]chan rpcMessage),
		subs:    make(map[int64]eventSub),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// resolvePageTarget picks the first page-type target advertised by the
// browser's /json/list endpoint.
func resolvePageTarget(ctx context.Context, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/json/list", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cdp: list targets: %w", err)
	}
	defer resp.Body.Close()

	var targets []struct {
		Type                 string `json:"type"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("cdp: decode target list: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", errors.New("cdp: no page target available")
}

// Call issues one protocol command and decodes the result into out (out
// may be nil when the result does not matter).
func (c *Conn) Call(ctx context.Context, method string, params, out any) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}

	ch := make(chan rpcMessage, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.ws.WriteJSON(rpcMessage{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("cdp: write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrConnClosed
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if out != nil && len(msg.Result) > 0 {
			return json.Unmarshal(msg.Result, out)
		}
		return nil
	}
}

// Subscribe streams the params of every event with the given method. The
// returned cancel drops the subscription; slow consumers lose events
// rather than stalling the read loop.
func (c *Conn) Subscribe(method string) (<-chan json.RawMessage, func()) {
	ch := make(chan json.RawMessage, 64)
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = eventSub{method: method, ch: ch}
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close tears the session down. In-flight calls fail with ErrConnClosed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	defer c.closeOnce.Do(func() { close(c.closed) })
	for {
		var msg rpcMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("cdp read loop ended", zap.Error(err))
			}
			return
		}

		if msg.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		c.mu.Lock()
		for _, sub := range c.subs {
			if sub.method != msg.Method {
				continue
			}
			select {
			case sub.ch <- msg.Params:
			default:
			}
		}
		c.mu.Unlock()
	}
}
