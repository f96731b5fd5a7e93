// Package host abstracts the environment a scroll session runs against:
// element geometry queries, scroll metrics, and the signals that invalidate
// layout. Implementations include an in-memory document (host/memdoc) and a
// websocket-connected browser page (host/wirehost).
package host

import (
	"time"

	"github.com/yantonsoup/d3-playground/geom"
)

// Element is an opaque handle to one watched region. Handles compare by
// Key, which must be stable for the lifetime of the element.
type Element interface {
	Key() string
}

// SignalKind identifies what invalidated layout.
type SignalKind int

const (
	// SignalScroll fires when the scroll offset changes.
	SignalScroll SignalKind = iota
	// SignalResize fires on layout-affecting viewport changes.
	SignalResize
	// SignalMutation fires on subtree DOM mutation.
	SignalMutation
	// SignalPoll is the fallback trigger for hosts without native signals.
	SignalPoll
)

func (k SignalKind) String() string {
	switch k {
	case SignalScroll:
		return "scroll"
	case SignalResize:
		return "resize"
	case SignalMutation:
		return "mutation"
	case SignalPoll:
		return "poll"
	}
	return "unknown"
}

// Signal is one layout-invalidation event delivered to subscribers.
type Signal struct {
	Kind SignalKind
	Time time.Time
}

// Host is the complete environment contract. All methods are best-effort
// reads: the host never mutates monitored geometry on behalf of the engine.
//
// Hosts deliver signals and deferred calls one at a time; the engine relies
// on that to keep callback dispatch from interleaving with recomputation.
type Host interface {
	// ViewportSize returns the current viewport dimensions.
	ViewportSize() (w, h float64)

	// ScrollY returns the vertical scroll offset.
	ScrollY() float64

	// PageHeight returns the total scrollable height.
	PageHeight() float64

	// BoundingRect returns el's rect in viewport coordinates. ok is false
	// when the element is detached or its geometry cannot be read.
	BoundingRect(el Element) (r geom.Region, ok bool)

	// Parent returns el's logical parent, with any shadow-host indirection
	// already applied. ok is false at the document root.
	Parent(el Element) (parent Element, ok bool)

	// ClipsOverflow reports whether el clips its descendants (non-visible
	// overflow).
	ClipsOverflow(el Element) bool

	// Rendered reports whether el currently takes part in layout.
	Rendered(el Element) bool

	// DocumentLevel reports whether el is one of the two outermost
	// document-level containers, which never clip for our purposes.
	DocumentLevel(el Element) bool

	// Query resolves a selector to zero or more elements, in document order.
	Query(selector string) []Element

	// Subscribe registers fn for layout-invalidation signals. Signals fan
	// out to listeners in subscription order. The returned cancel
	// detaches it.
	Subscribe(fn func(Signal)) (cancel func())

	// Defer schedules fn after d, serialized with signal delivery. The
	// returned cancel drops the call if it has not run yet.
	Defer(d time.Duration, fn func()) (cancel func())

	// Now returns the host's notion of current time.
	Now() time.Time
}
