package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/page"
)

// Surface implements page.Surface over one DevTools session. Node ids
// are the protocol's DOM node ids; they go stale whenever the page
// re-renders, and every method treats a stale id as "absent" rather than
// an error, which is what the discovery loop needs to keep going.
type Surface struct {
	conn   *Conn
	logger *zap.Logger
}

// NewSurface enables the DOM, Page and Runtime domains and returns a
// ready Surface.
func NewSurface(ctx context.Context, conn *Conn, logger *zap.Logger) (*Surface, error) {
	for _, domain := range []string{"DOM.enable", "Page.enable", "Runtime.enable"} {
		if err := conn.Call(ctx, domain, nil, nil); err != nil {
			return nil, err
		}
	}
	return &Surface{conn: conn, logger: logger}, nil
}

type nodeIDParam struct {
	NodeID int `json:"nodeId"`
}

type selectorParams struct {
	NodeID   int    `json:"nodeId"`
	Selector string `json:"selector"`
}

func toNodeID(id int) page.NodeID {
	return page.NodeID(strconv.Itoa(id))
}

func fromNodeID(id page.NodeID) (int, error) {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, errors.New("cdp: malformed node reference")
	}
	return n, nil
}

// isNodeGone matches the protocol errors raised for detached or unknown
// node ids.
func isNodeGone(err error) bool {
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "node") || strings.Contains(msg, "object id")
}

// documentNode fetches the current document root, registering the whole
// tree with the session so structural events fire for it.
func (s *Surface) documentNode(ctx context.Context) (int, error) {
	var result struct {
		Root struct {
			NodeID int `json:"nodeId"`
		} `json:"root"`
	}
	params := map[string]any{"depth": -1, "pierce": true}
	if err := s.conn.Call(ctx, "DOM.getDocument", params, &result); err != nil {
		return 0, err
	}
	return result.Root.NodeID, nil
}

func (s *Surface) resolveParent(ctx context.Context, parent page.NodeID) (int, error) {
	if parent == page.DocumentRoot {
		return s.documentNode(ctx)
	}
	return fromNodeID(parent)
}

func (s *Surface) Find(ctx context.Context, parent page.NodeID, selector string) (page.NodeID, bool, error) {
	parentID, err := s.resolveParent(ctx, parent)
	if err != nil {
		return "", false, err
	}
	var result nodeIDParam
	err = s.conn.Call(ctx, "DOM.querySelector", selectorParams{NodeID: parentID, Selector: selector}, &result)
	if err != nil {
		if isNodeGone(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if result.NodeID == 0 {
		return "", false, nil
	}
	return toNodeID(result.NodeID), true, nil
}

func (s *Surface) FindFirst(ctx context.Context, parent page.NodeID, selectors []string) (page.NodeID, bool, error) {
	for _, sel := range selectors {
		id, ok, err := s.Find(ctx, parent, sel)
		if err != nil {
			return "", false, err
		}
		if ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Surface) FindAll(ctx context.Context, parent page.NodeID, selectors []string) ([]page.NodeID, error) {
	parentID, err := s.resolveParent(ctx, parent)
	if err != nil {
		return nil, err
	}
	// A selector list keeps the result in document order across all
	// alternatives, which per-selector queries would not.
	var result struct {
		NodeIDs []int `json:"nodeIds"`
	}
	params := selectorParams{NodeID: parentID, Selector: strings.Join(selectors, ", ")}
	if err := s.conn.Call(ctx, "DOM.querySelectorAll", params, &result); err != nil {
		if isNodeGone(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]page.NodeID, 0, len(result.NodeIDs))
	for _, n := range result.NodeIDs {
		ids = append(ids, toNodeID(n))
	}
	return ids, nil
}

func (s *Surface) Attached(ctx context.Context, id page.NodeID) (bool, error) {
	var connected bool
	err := s.callOn(ctx, id, `function() { return this.isConnected === true; }`, nil, &connected)
	if err != nil {
		if isNodeGone(err) {
			return false, nil
		}
		return false, err
	}
	return connected, nil
}

func (s *Surface) ClassName(ctx context.Context, id page.NodeID) (string, error) {
	nodeID, err := fromNodeID(id)
	if err != nil {
		return "", err
	}
	var result struct {
		Attributes []string `json:"attributes"`
	}
	if err := s.conn.Call(ctx, "DOM.getAttributes", nodeIDParam{NodeID: nodeID}, &result); err != nil {
		if isNodeGone(err) {
			return "", nil
		}
		return "", err
	}
	// Attributes arrive as a flat name/value list.
	for i := 0; i+1 < len(result.Attributes); i += 2 {
		if result.Attributes[i] == "class" {
			return result.Attributes[i+1], nil
		}
	}
	return "", nil
}

func (s *Surface) Text(ctx context.Context, id page.NodeID) (string, error) {
	var text string
	err := s.callOn(ctx, id, `function() { return (this.innerText || this.textContent || '').trim(); }`, nil, &text)
	if err != nil {
		if isNodeGone(err) {
			return "", nil
		}
		return "", err
	}
	return text, nil
}

func (s *Surface) SetText(ctx context.Context, id page.NodeID, text string) error {
	return s.callOn(ctx, id, `function(t) { this.textContent = t; }`, []any{text}, nil)
}

func (s *Surface) SetInputDisabled(ctx context.Context, id page.NodeID, placeholder string) error {
	fn := `function(p) {
		this.disabled = true;
		this.style.opacity = '0.5';
		this.style.pointerEvents = 'none';
		if (p && 'placeholder' in this) { this.placeholder = p; this.value = ''; }
	}`
	return s.callOn(ctx, id, fn, []any{placeholder}, nil)
}

// ObserveAdditions streams child insertions. The protocol reports every
// insertion in the document; insertions outside the observed root are
// filtered out with a containment check.
func (s *Surface) ObserveAdditions(ctx context.Context, root page.NodeID) (<-chan page.Addition, func(), error) {
	// Register the full tree so structural events fire at all.
	if _, err := s.documentNode(ctx); err != nil {
		return nil, nil, err
	}

	events, unsubscribe := s.conn.Subscribe("DOM.childNodeInserted")
	out := make(chan page.Addition, 64)

	obsCtx, cancel := context.WithCancel(ctx)
	stop := func() {
		cancel()
		unsubscribe()
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-obsCtx.Done():
				return
			case raw, ok := <-events:
				if !ok {
					return
				}
				var ev struct {
					ParentNodeID int `json:"parentNodeId"`
					Node         struct {
						NodeID   int `json:"nodeId"`
						NodeType int `json:"nodeType"`
					} `json:"node"`
				}
				if err := json.Unmarshal(raw, &ev); err != nil {
					continue
				}
				if ev.Node.NodeType != 1 { // elements only
					continue
				}
				node := toNodeID(ev.Node.NodeID)
				if root != page.DocumentRoot && !s.contains(obsCtx, root, node) {
					continue
				}
				select {
				case out <- page.Addition{Parent: toNodeID(ev.ParentNodeID), Node: node}:
				case <-obsCtx.Done():
					return
				}
			}
		}
	}()

	return out, stop, nil
}

// contains reports whether candidate sits under root in the live tree.
func (s *Surface) contains(ctx context.Context, root, candidate page.NodeID) bool {
	candObj, err := s.objectID(ctx, candidate)
	if err != nil {
		return false
	}
	var within bool
	err = s.callOnArgs(ctx, root, `function(n) { return this.contains(n); }`,
		[]map[string]any{{"objectId": candObj}}, &within)
	return err == nil && within
}

func (s *Surface) ShowOverlay(ctx context.Context, anchor page.NodeID, content page.Overlay) error {
	fn := `function(o) {
		var prev = this.querySelector('#chatguard-overlay');
		if (prev) { prev.remove(); }
		if (getComputedStyle(this).position === 'static') { this.style.position = 'relative'; }
		var overlay = document.createElement('div');
		overlay.id = 'chatguard-overlay';
		overlay.style.cssText = 'position:absolute;inset:0;z-index:2147483647;' +
			'display:flex;flex-direction:column;align-items:center;justify-content:center;' +
			'background:rgba(255,255,255,0.97);text-align:center;padding:24px;' +
			'font-family:system-ui,sans-serif;color:#1a1a1a;';
		var h = document.createElement('div');
		h.style.cssText = 'font-size:18px;font-weight:700;margin-bottom:12px;';
		h.textContent = o.heading;
		overlay.appendChild(h);
		o.lines.forEach(function(line) {
			var p = document.createElement('div');
			p.style.cssText = 'font-size:14px;margin-bottom:4px;';
			p.textContent = line;
			overlay.appendChild(p);
		});
		if (o.phone) {
			var cta = document.createElement('div');
			cta.style.cssText = 'font-size:14px;margin-top:12px;';
			cta.textContent = o.ctaText;
			overlay.appendChild(cta);
			var tel = document.createElement('a');
			tel.href = 'tel:' + o.phone.replace(/[^\d+]/g, '');
			tel.style.cssText = 'font-size:16px;font-weight:700;margin-top:4px;display:block;';
			tel.textContent = o.phone;
			overlay.appendChild(tel);
		}
		if (o.buttonLabel) {
			var btn = document.createElement('button');
			btn.style.cssText = 'margin-top:16px;padding:8px 20px;border:0;border-radius:6px;' +
				'background:#1a1a1a;color:#fff;font-size:14px;cursor:pointer;';
			btn.textContent = o.buttonLabel;
			btn.disabled = true;
			overlay.appendChild(btn);
		}
		if (o.footer) {
			var f = document.createElement('div');
			f.style.cssText = 'font-size:11px;color:#888;margin-top:16px;';
			f.textContent = o.footer;
			overlay.appendChild(f);
		}
		this.appendChild(overlay);
	}`
	arg := map[string]any{
		"heading":     content.Heading,
		"lines":       content.Lines,
		"ctaText":     content.CTAText,
		"phone":       content.Phone,
		"buttonLabel": content.ButtonLabel,
		"footer":      content.Footer,
	}
	return s.callOn(ctx, anchor, fn, []any{arg}, nil)
}

func (s *Surface) PurgeVendorState(ctx context.Context, markers []string, exactKeys []string) error {
	expr := `(function(markers, exactKeys) {
		var matches = function(key) {
			var lower = key.toLowerCase();
			if (exactKeys.indexOf(key) !== -1) { return true; }
			return markers.some(function(m) { return lower.indexOf(m.toLowerCase()) !== -1; });
		};
		[localStorage, sessionStorage].forEach(function(storage) {
			var doomed = [];
			for (var i = 0; i < storage.length; i++) {
				var key = storage.key(i);
				if (matches(key)) { doomed.push(key); }
			}
			doomed.forEach(function(key) { storage.removeItem(key); });
		});
		document.cookie.split(';').forEach(function(cookie) {
			var name = cookie.split('=')[0].trim();
			if (name && matches(name)) {
				document.cookie = name + '=;expires=Thu, 01 Jan 1970 00:00:00 GMT;path=/';
			}
		});
	})(` + mustJSON(markers) + `, ` + mustJSON(exactKeys) + `)`

	params := map[string]any{"expression": expr, "returnByValue": true}
	return s.conn.Call(ctx, "Runtime.evaluate", params, nil)
}

func (s *Surface) Reload(ctx context.Context) error {
	return s.conn.Call(ctx, "Page.reload", map[string]any{"ignoreCache": false}, nil)
}

// objectID resolves a DOM node id to a runtime object id.
func (s *Surface) objectID(ctx context.Context, id page.NodeID) (string, error) {
	nodeID, err := fromNodeID(id)
	if err != nil {
		return "", err
	}
	var result struct {
		Object struct {
			ObjectID string `json:"objectId"`
		} `json:"object"`
	}
	if err := s.conn.Call(ctx, "DOM.resolveNode", nodeIDParam{NodeID: nodeID}, &result); err != nil {
		return "", err
	}
	return result.Object.ObjectID, nil
}

// callOn invokes fn with the node as `this`, passing args by value.
func (s *Surface) callOn(ctx context.Context, id page.NodeID, fn string, args []any, out any) error {
	byValue := make([]map[string]any, 0, len(args))
	for _, a := range args {
		byValue = append(byValue, map[string]any{"value": a})
	}
	return s.callOnArgs(ctx, id, fn, byValue, out)
}

func (s *Surface) callOnArgs(ctx context.Context, id page.NodeID, fn string, args []map[string]any, out any) error {
	objID, err := s.objectID(ctx, id)
	if err != nil {
		return err
	}
	params := map[string]any{
		"functionDeclaration": fn,
		"objectId":            objID,
		"returnByValue":       true,
	}
	if len(args) > 0 {
		params["arguments"] = args
	}
	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := s.conn.Call(ctx, "Runtime.callFunctionOn", params, &result); err != nil {
		return err
	}
	if result.ExceptionDetails != nil {
		return errors.New("cdp: page script failed: " + result.ExceptionDetails.Text)
	}
	if out != nil && len(result.Result.Value) > 0 {
		return json.Unmarshal(result.Result.Value, out)
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
