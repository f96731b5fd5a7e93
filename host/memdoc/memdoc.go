// Package memdoc is an in-memory host.Host: a flat document model with a
// virtual clock and synchronous signal delivery. It backs the engine's unit
// tests and the CLI story simulator, where scroll positions and time are
// driven explicitly instead of by a real browser.
package memdoc

import (
	"fmt"
	"sort"
	"time"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host"
)

// Node is one element in the document. Geometry is stored in page
// coordinates; BoundingRect translates by the current scroll offset.
type Node struct {
	doc      *Doc
	key      string
	pageRect geom.Region
	parent   *Node
	clips    bool
	rendered bool
	detached bool
	docLevel bool
}

// Key implements host.Element.
func (n *Node) Key() string { return n.key }

// SetParent reparents the node.
func (n *Node) SetParent(p *Node) { n.parent = p }

// SetClips marks the node as clipping its descendants.
func (n *Node) SetClips(v bool) { n.clips = v }

// SetRendered toggles whether the node takes part in layout.
func (n *Node) SetRendered(v bool) { n.rendered = v }

// SetDetached marks the node's geometry as unreadable.
func (n *Node) SetDetached(v bool) { n.detached = v }

// SetPageRect moves or resizes the node in page coordinates. It does not
// raise a mutation signal; call Doc.Mutate when the engine should notice.
func (n *Node) SetPageRect(r geom.Region) { n.pageRect = r }

// PageRect returns the node's rect in page coordinates.
func (n *Node) PageRect() geom.Region { return n.pageRect }

// Doc is the document. It is not safe for concurrent use: tests and the
// simulator drive it from a single goroutine, which also matches the
// engine's single-threaded dispatch model.
type Doc struct {
	viewportW  float64
	viewportH  float64
	pageHeight float64
	scrollY    float64

	html *Node
	body *Node

	nodes     []*Node
	selectors map[string][]*Node

	listeners map[int]func(host.Signal)
	nextSub   int

	clock   time.Time
	timers  []*timer
	nextTid int
}

type timer struct {
	id       int
	due      time.Time
	seq      int
	fn       func()
	canceled bool
}

// New creates a document with the given viewport and page height. The two
// outermost document-level containers exist from the start.
func New(viewportW, viewportH, pageHeight float64) *Doc {
	d := &Doc{
		viewportW:  viewportW,
		viewportH:  viewportH,
		pageHeight: pageHeight,
		selectors:  make(map[string][]*Node),
		listeners:  make(map[int]func(host.Signal)),
		clock:      time.Unix(0, 0),
	}
	d.html = &Node{doc: d, key: "html", rendered: true, docLevel: true, pageRect: geom.FromRect(0, 0, viewportW, pageHeight)}
	d.body = &Node{doc: d, key: "body", rendered: true, docLevel: true, parent: d.html, pageRect: geom.FromRect(0, 0, viewportW, pageHeight)}
	return d
}

// Body returns the document body node.
func (d *Doc) Body() *Node { return d.body }

// NewNode adds a rendered node under body and registers it for selector.
// Nodes registered under the same selector resolve in insertion order.
func (d *Doc) NewNode(selector string, pageRect geom.Region) *Node {
	n := &Node{
		doc:      d,
		key:      fmt.Sprintf("%s/%d", selector, len(d.selectors[selector])),
		pageRect: pageRect,
		parent:   d.body,
		rendered: true,
	}
	d.nodes = append(d.nodes, n)
	d.selectors[selector] = append(d.selectors[selector], n)
	return n
}

// SetScrollY moves the scroll offset and raises a scroll signal.
func (d *Doc) SetScrollY(y float64) {
	if y < 0 {
		y = 0
	}
	if max := d.pageHeight - d.viewportH; max > 0 && y > max {
		y = max
	}
	d.scrollY = y
	d.emit(host.SignalScroll)
}

// Resize changes the viewport and raises a resize signal.
func (d *Doc) Resize(w, h float64) {
	d.viewportW, d.viewportH = w, h
	d.emit(host.SignalResize)
}

// Mutate raises a subtree mutation signal.
func (d *Doc) Mutate() {
	d.emit(host.SignalMutation)
}

func (d *Doc) emit(kind host.SignalKind) {
	sig := host.Signal{Kind: kind, Time: d.clock}
	// Listeners may unsubscribe during delivery.
	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := d.listeners[id]; ok {
			fn(sig)
		}
	}
}

// Advance moves the virtual clock forward, firing deferred calls in due
// order as it passes them.
func (d *Doc) Advance(by time.Duration) {
	deadline := d.clock.Add(by)
	for {
		next := d.nextDue(deadline)
		if next == nil {
			break
		}
		d.clock = next.due
		next.canceled = true
		next.fn()
	}
	d.clock = deadline
}

func (d *Doc) nextDue(deadline time.Time) *timer {
	var best *timer
	for _, t := range d.timers {
		if t.canceled || t.due.After(deadline) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

// host.Host implementation.

// ViewportSize implements host.Host.
func (d *Doc) ViewportSize() (float64, float64) { return d.viewportW, d.viewportH }

// ScrollY implements host.Host.
func (d *Doc) ScrollY() float64 { return d.scrollY }

// PageHeight implements host.Host.
func (d *Doc) PageHeight() float64 { return d.pageHeight }

// BoundingRect implements host.Host, translating page coordinates into
// viewport coordinates by the current scroll offset.
func (d *Doc) BoundingRect(el host.Element) (geom.Region, bool) {
	n, ok := el.(*Node)
	if !ok || n.detached {
		return geom.Region{}, false
	}
	r := n.pageRect
	return geom.FromRect(r.Left, r.Top-d.scrollY, r.Width, r.Height), true
}

// Parent implements host.Host.
func (d *Doc) Parent(el host.Element) (host.Element, bool) {
	n, ok := el.(*Node)
	if !ok || n.parent == nil {
		return nil, false
	}
	return n.parent, true
}

// ClipsOverflow implements host.Host.
func (d *Doc) ClipsOverflow(el host.Element) bool {
	n, ok := el.(*Node)
	return ok && n.clips
}

// Rendered implements host.Host.
func (d *Doc) Rendered(el host.Element) bool {
	n, ok := el.(*Node)
	return ok && n.rendered && !n.detached
}

// DocumentLevel implements host.Host.
func (d *Doc) DocumentLevel(el host.Element) bool {
	n, ok := el.(*Node)
	return ok && n.docLevel
}

// Query implements host.Host.
func (d *Doc) Query(selector string) []host.Element {
	nodes := d.selectors[selector]
	out := make([]host.Element, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

// Subscribe implements host.Host.
func (d *Doc) Subscribe(fn func(host.Signal)) func() {
	id := d.nextSub
	d.nextSub++
	d.listeners[id] = fn
	return func() { delete(d.listeners, id) }
}

// Defer implements host.Host against the virtual clock.
func (d *Doc) Defer(wait time.Duration, fn func()) func() {
	t := &timer{id: d.nextTid, seq: d.nextTid, due: d.clock.Add(wait), fn: fn}
	d.nextTid++
	d.timers = append(d.timers, t)
	return func() { t.canceled = true }
}

// Now implements host.Host.
func (d *Doc) Now() time.Time { return d.clock }

// SubscriberCount reports how many signal listeners are attached. Tests use
// it to verify that idle registries release their subscriptions.
func (d *Doc) SubscriberCount() int { return len(d.listeners) }
