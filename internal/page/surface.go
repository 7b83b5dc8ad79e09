// Package page is the port to the host web page. The monitoring engine
// only ever talks to the page through the Surface interface; the cdp
// subpackage implements it against a live browser tab and Fake implements
// it in memory for tests. All vendor-specific selectors live in Locator.
package page

import "context"

// NodeID is an opaque reference to an element in the host page.
type NodeID string

// DocumentRoot addresses the whole document, for document-scope queries
// and observation.
const DocumentRoot NodeID = ""

// Addition reports an element inserted somewhere under an observed node.
type Addition struct {
	Parent NodeID
	Node   NodeID
}

// Overlay describes the terminal block overlay rendered over the widget.
// Structure only; visual styling belongs to the implementation.
type Overlay struct {
	Heading     string
	Lines       []string
	CTAText     string
	Phone       string
	ButtonLabel string
	Footer      string
}

// Surface is everything the engine needs from the host page.
//
// Node references go stale when the page tears the widget down; methods
// taking a NodeID report stale references as absent/false rather than
// failing, matching the tolerance the discovery protocol needs.
type Surface interface {
	// Find locates the first match for selector under parent
	// (DocumentRoot for the whole document).
	Find(ctx context.Context, parent NodeID, selector string) (NodeID, bool, error)

	// FindFirst tries selectors in order and returns the first match.
	FindFirst(ctx context.Context, parent NodeID, selectors []string) (NodeID, bool, error)

	// FindAll returns, in document order, every node under parent
	// matching any of the selectors.
	FindAll(ctx context.Context, parent NodeID, selectors []string) ([]NodeID, error)

	// Attached reports whether the node is still part of the document.
	Attached(ctx context.Context, id NodeID) (bool, error)

	// ClassName returns the node's class attribute.
	ClassName(ctx context.Context, id NodeID) (string, error)

	// Text returns the node's visible text, whitespace-trimmed.
	Text(ctx context.Context, id NodeID) (string, error)

	// SetText replaces the node's rendered text.
	SetText(ctx context.Context, id NodeID, text string) error

	// ObserveAdditions streams elements inserted under root until the
	// context ends or the returned stop function is called.
	ObserveAdditions(ctx context.Context, root NodeID) (<-chan Addition, func(), error)

	// SetInputDisabled disables an input or button. A non-empty
	// placeholder is applied to text inputs.
	SetInputDisabled(ctx context.Context, id NodeID, placeholder string) error

	// ShowOverlay renders the block overlay over anchor, replacing any
	// overlay already present.
	ShowOverlay(ctx context.Context, anchor NodeID, content Overlay) error

	// PurgeVendorState clears widget-vendor storage: any key containing
	// one of the markers (case-insensitive) plus the exact keys, across
	// local storage, session storage, and cookies.
	PurgeVendorState(ctx context.Context, markers []string, exactKeys []string) error

	// Reload reloads the host page.
	Reload(ctx context.Context) error
}
