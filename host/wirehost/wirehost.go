// Package wirehost implements host.Host against a live browser page on the
// other end of a websocket. A small measuring script in the page streams
// frames (scroll offset, viewport, element rects) to the server; the host
// keeps the latest frame as its snapshot and raises a signal whenever one
// arrives. All geometry reads answer from that snapshot, so the engine never
// blocks on the wire.
//
// The element model is flat: the page reports every watched element's
// viewport rect with clipping already applied, so Parent, ClipsOverflow and
// DocumentLevel degenerate to their identity answers.
package wirehost

import (
	"sort"
	"sync"
	"time"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host"
)

// ElementState is one element's measurement inside a frame.
type ElementState struct {
	ID       string  `json:"id"`
	Selector string  `json:"selector"`
	Top      float64 `json:"top"`
	Left     float64 `json:"left"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rendered bool    `json:"rendered"`
}

// Frame is one measurement message from the page. Kind distinguishes what
// invalidated layout; "hello" is the first full snapshot after connect.
type Frame struct {
	Kind           string         `json:"kind"`
	ScrollY        float64        `json:"scrollY"`
	ViewportWidth  float64        `json:"viewportWidth"`
	ViewportHeight float64        `json:"viewportHeight"`
	PageHeight     float64        `json:"pageHeight"`
	Elements       []ElementState `json:"elements"`
}

type element struct {
	id       string
	rect     geom.Region
	rendered bool
	stale    bool
}

func (e *element) Key() string { return e.id }

// Host is the websocket-fed host. ApplyFrame is called by the connection's
// read loop; everything else by the engine. A mutex guards the snapshot, and
// signal delivery happens outside it so engine callbacks can read geometry
// without deadlocking.
type Host struct {
	mu         sync.Mutex
	scrollY    float64
	viewportW  float64
	viewportH  float64
	pageHeight float64

	elements   map[string]*element
	bySelector map[string][]*element

	listeners map[int]func(host.Signal)
	nextSub   int
}

// New returns an empty host. It reports no elements until the first frame
// arrives; callers should apply the hello frame before building a session.
func New() *Host {
	return &Host{
		elements:   make(map[string]*element),
		bySelector: make(map[string][]*element),
		listeners:  make(map[int]func(host.Signal)),
	}
}

// ApplyFrame replaces the snapshot with the frame's measurements and raises
// the matching signal. Elements absent from a non-hello frame keep their
// last rect but are marked stale, so their geometry stops reading as valid.
func (h *Host) ApplyFrame(f Frame) {
	h.mu.Lock()
	h.scrollY = f.ScrollY
	if f.ViewportWidth > 0 {
		h.viewportW = f.ViewportWidth
	}
	if f.ViewportHeight > 0 {
		h.viewportH = f.ViewportHeight
	}
	if f.PageHeight > 0 {
		h.pageHeight = f.PageHeight
	}

	if f.Kind == "hello" {
		h.elements = make(map[string]*element)
		h.bySelector = make(map[string][]*element)
	}
	seen := make(map[string]bool, len(f.Elements))
	for _, es := range f.Elements {
		seen[es.ID] = true
		el, ok := h.elements[es.ID]
		if !ok {
			el = &element{id: es.ID}
			h.elements[es.ID] = el
			h.bySelector[es.Selector] = append(h.bySelector[es.Selector], el)
		}
		el.rect = geom.FromRect(es.Left, es.Top, es.Width, es.Height)
		el.rendered = es.Rendered
		el.stale = false
	}
	for id, el := range h.elements {
		if !seen[id] {
			el.stale = true
		}
	}
	h.mu.Unlock()

	h.emit(signalKind(f.Kind))
}

func signalKind(kind string) host.SignalKind {
	switch kind {
	case "resize":
		return host.SignalResize
	case "mutation":
		return host.SignalMutation
	case "scroll":
		return host.SignalScroll
	}
	// hello and anything unrecognized count as a full-layout poll
	return host.SignalPoll
}

func (h *Host) emit(kind host.SignalKind) {
	h.mu.Lock()
	// Fan-out must follow subscription order; the engine's registries
	// subscribe in the order their reports have to arrive.
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(host.Signal), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.listeners[id])
	}
	h.mu.Unlock()

	sig := host.Signal{Kind: kind, Time: time.Now()}
	for _, fn := range fns {
		fn(sig)
	}
}

// ViewportSize implements host.Host.
func (h *Host) ViewportSize() (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewportW, h.viewportH
}

// ScrollY implements host.Host.
func (h *Host) ScrollY() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scrollY
}

// PageHeight implements host.Host.
func (h *Host) PageHeight() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pageHeight
}

// BoundingRect implements host.Host from the latest frame.
func (h *Host) BoundingRect(el host.Element) (geom.Region, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.elements[el.Key()]
	if !ok || e.stale {
		return geom.Region{}, false
	}
	return e.rect, true
}

// Parent implements host.Host. The wire protocol does not carry the
// ancestor chain; the page applies clipping before it reports rects.
func (h *Host) Parent(host.Element) (host.Element, bool) { return nil, false }

// ClipsOverflow implements host.Host.
func (h *Host) ClipsOverflow(host.Element) bool { return false }

// Rendered implements host.Host.
func (h *Host) Rendered(el host.Element) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.elements[el.Key()]
	return ok && !e.stale && e.rendered
}

// DocumentLevel implements host.Host.
func (h *Host) DocumentLevel(host.Element) bool { return false }

// Query implements host.Host, resolving in the order the page first
// reported the elements.
func (h *Host) Query(selector string) []host.Element {
	h.mu.Lock()
	defer h.mu.Unlock()
	els := h.bySelector[selector]
	out := make([]host.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out
}

// Subscribe implements host.Host.
func (h *Host) Subscribe(fn func(host.Signal)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Defer implements host.Host on the wall clock. The engine serializes the
// callback with signal delivery itself.
func (h *Host) Defer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Now implements host.Host.
func (h *Host) Now() time.Time { return time.Now() }
