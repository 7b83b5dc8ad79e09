package page

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Fake is an in-memory Surface for tests: a small element tree with the
// selector subset the locator tables actually use (#id, .class,
// [class*="sub"], tag).
type Fake struct {
	mu        sync.Mutex
	seq       int
	nodes     map[NodeID]*fakeNode
	roots     []*fakeNode
	observers []*fakeObserver

	overlayCount int
	lastOverlay  *Overlay
	disabled     map[NodeID]string
	purges       int
	reloads      int
}

type fakeNode struct {
	id       NodeID
	tag      string
	elemID   string
	class    string
	text     string
	parent   *fakeNode
	children []*fakeNode
	detached bool
}

type fakeObserver struct {
	root NodeID
	ch   chan Addition
	once sync.Once
}

// NewFake creates an empty fake page.
func NewFake() *Fake {
	return &Fake{
		nodes:    make(map[NodeID]*fakeNode),
		disabled: make(map[NodeID]string),
	}
}

// AddElement inserts an element under parent (DocumentRoot for top level)
// and notifies observers watching any ancestor.
func (f *Fake) AddElement(parent NodeID, tag, elemID, class, text string) NodeID {
	f.mu.Lock()
	f.seq++
	n := &fakeNode{
		id:     NodeID("n" + strconv.Itoa(f.seq)),
		tag:    tag,
		elemID: elemID,
		class:  class,
		text:   text,
	}
	f.nodes[n.id] = n

	var parentID NodeID = DocumentRoot
	if parent == DocumentRoot {
		f.roots = append(f.roots, n)
	} else {
		p, ok := f.nodes[parent]
		if !ok {
			f.mu.Unlock()
			return ""
		}
		n.parent = p
		p.children = append(p.children, n)
		parentID = parent
	}

	addition := Addition{Parent: parentID, Node: n.id}
	var notify []*fakeObserver
	for _, obs := range f.observers {
		if f.observesLocked(obs.root, n) {
			notify = append(notify, obs)
		}
	}
	f.mu.Unlock()

	for _, obs := range notify {
		select {
		case obs.ch <- addition:
		default:
		}
	}
	return n.id
}

// Remove detaches the node and its subtree from the document.
func (f *Fake) Remove(id NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return
	}
	if n.parent != nil {
		siblings := n.parent.children
		for i, c := range siblings {
			if c == n {
				n.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		n.parent = nil
	} else {
		for i, r := range f.roots {
			if r == n {
				f.roots = append(f.roots[:i], f.roots[i+1:]...)
				break
			}
		}
	}
	markDetached(n)
}

func markDetached(n *fakeNode) {
	n.detached = true
	for _, c := range n.children {
		markDetached(c)
	}
}

// observesLocked reports whether a node inserted at n falls under the
// observer root (document root observes everything attached).
func (f *Fake) observesLocked(root NodeID, n *fakeNode) bool {
	if root == DocumentRoot {
		return true
	}
	for p := n.parent; p != nil; p = p.parent {
		if p.id == root {
			return true
		}
	}
	return false
}

func (f *Fake) Find(ctx context.Context, parent NodeID, selector string) (NodeID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.findLocked(parent, selector)
	if n == nil {
		return "", false, nil
	}
	return n.id, true, nil
}

func (f *Fake) FindFirst(ctx context.Context, parent NodeID, selectors []string) (NodeID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range selectors {
		if n := f.findLocked(parent, sel); n != nil {
			return n.id, true, nil
		}
	}
	return "", false, nil
}

func (f *Fake) FindAll(ctx context.Context, parent NodeID, selectors []string) ([]NodeID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []NodeID
	walkScope(f.scopeLocked(parent), func(n *fakeNode) {
		for _, sel := range selectors {
			if matchSelector(n, sel) {
				out = append(out, n.id)
				return
			}
		}
	})
	return out, nil
}

func (f *Fake) Attached(ctx context.Context, id NodeID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok || n.detached {
		return false, nil
	}
	return true, nil
}

func (f *Fake) ClassName(ctx context.Context, id NodeID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[id]; ok {
		return n.class, nil
	}
	return "", nil
}

func (f *Fake) Text(ctx context.Context, id NodeID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return "", nil
	}
	var b strings.Builder
	collectText(n, &b)
	return strings.TrimSpace(b.String()), nil
}

func collectText(n *fakeNode, b *strings.Builder) {
	if n.text != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n.text)
	}
	for _, c := range n.children {
		collectText(c, b)
	}
}

func (f *Fake) SetText(ctx context.Context, id NodeID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[id]; ok {
		n.text = text
		n.children = nil
	}
	return nil
}

func (f *Fake) ObserveAdditions(ctx context.Context, root NodeID) (<-chan Addition, func(), error) {
	obs := &fakeObserver{root: root, ch: make(chan Addition, 64)}
	f.mu.Lock()
	f.observers = append(f.observers, obs)
	f.mu.Unlock()

	stop := func() {
		obs.once.Do(func() {
			f.mu.Lock()
			for i, o := range f.observers {
				if o == obs {
					f.observers = append(f.observers[:i], f.observers[i+1:]...)
					break
				}
			}
			f.mu.Unlock()
			close(obs.ch)
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return obs.ch, stop, nil
}

func (f *Fake) SetInputDisabled(ctx context.Context, id NodeID, placeholder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[id] = placeholder
	return nil
}

func (f *Fake) ShowOverlay(ctx context.Context, anchor NodeID, content Overlay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlayCount++
	f.lastOverlay = &content
	return nil
}

func (f *Fake) PurgeVendorState(ctx context.Context, markers []string, exactKeys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return nil
}

func (f *Fake) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

// Test inspection helpers.

// OverlayRenders reports how many times an overlay was rendered.
func (f *Fake) OverlayRenders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlayCount
}

// LastOverlay returns the most recently rendered overlay, or nil.
func (f *Fake) LastOverlay() *Overlay {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOverlay
}

// Disabled reports whether the node was disabled and with what placeholder.
func (f *Fake) Disabled(id NodeID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ph, ok := f.disabled[id]
	return ph, ok
}

// PurgeCount reports how many vendor-state purges ran.
func (f *Fake) PurgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purges
}

// ReloadCount reports how many page reloads were requested.
func (f *Fake) ReloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

func (f *Fake) scopeLocked(parent NodeID) []*fakeNode {
	if parent == DocumentRoot {
		return f.roots
	}
	if n, ok := f.nodes[parent]; ok {
		return n.children
	}
	return nil
}

func walkScope(scope []*fakeNode, visit func(*fakeNode)) {
	for _, n := range scope {
		visit(n)
		walkScope(n.children, visit)
	}
}

func (f *Fake) findLocked(parent NodeID, selector string) *fakeNode {
	var found *fakeNode
	walkScope(f.scopeLocked(parent), func(n *fakeNode) {
		if found == nil && matchSelector(n, selector) {
			found = n
		}
	})
	return found
}

// matchSelector supports the selector forms the locator tables use.
func matchSelector(n *fakeNode, selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return n.elemID == selector[1:]
	case strings.HasPrefix(selector, "."):
		for _, c := range strings.Fields(n.class) {
			if c == selector[1:] {
				return true
			}
		}
		return false
	case strings.HasPrefix(selector, "[class*="):
		sub := strings.TrimSuffix(strings.TrimPrefix(selector, "[class*="), "]")
		sub = strings.Trim(sub, `"'`)
		return strings.Contains(n.class, sub)
	default:
		return n.tag == selector
	}
}
