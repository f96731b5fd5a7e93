// Package scrolly turns raw scroll position into a reliable, ordered
// sequence of step enter/exit/progress events. It watches step regions
// through cooperating observation registries and runs a direction-aware
// state machine on top of their intersection reports, staying consistent
// even when a scroll jump skips a step's normal geometric transition.
//
// Callbacks run on the engine's dispatch path while its internal lock is
// held; they must not call back into the session's lifecycle methods.
package scrolly

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host"
	"github.com/yantonsoup/d3-playground/observer"
)

// ErrNoSteps is returned when the step selector resolves zero elements.
// It is recoverable: the session never activates and can be retried with a
// different configuration.
var ErrNoSteps = errors.New("scrolly: no step elements resolved")

// ErrDestroyed is returned from calls made after Destroy.
var ErrDestroyed = errors.New("scrolly: session destroyed")

// Config is the immutable session configuration. It cannot change between
// New and Destroy, except for the trigger offset via SetOffset.
type Config struct {
	// Container optionally enables container-level enter/exit tracking.
	Container string
	// Graphic optionally sizes the container trigger band.
	Graphic string
	// Step resolves the step regions. Required; New fails when it
	// resolves nothing.
	Step string
	// Offset is the fraction of viewport height defining the trigger
	// line. Defaults to 0.5 and is clamped to [0,1].
	Offset *float64
	// Progress enables the per-step progress callback.
	Progress bool
	// Threshold is the progress granularity in pixels of step height per
	// sub-threshold. Defaults to 4, floored at 1.
	Threshold int
	// Order enables ordered synthesis of skipped enter/exit events.
	// Defaults to true.
	Order *bool
	// Once suppresses all enter/exit callbacks for a step after its
	// first enter has fired.
	Once bool
	// Debug logs engine decisions and exposes the trigger line for a
	// visual overlay.
	Debug bool
	// Throttle overrides the registries' recompute interval.
	Throttle time.Duration
}

const (
	defaultOffset    = 0.5
	defaultThreshold = 4
)

func (c Config) offset() float64 {
	if c.Offset == nil {
		return defaultOffset
	}
	return clamp01(*c.Offset)
}

func (c Config) order() bool {
	return c.Order == nil || *c.Order
}

func (c Config) threshold() int {
	if c.Threshold < 1 {
		if c.Threshold == 0 {
			return defaultThreshold
		}
		return 1
	}
	return c.Threshold
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// state tracks one tracked entity's direction and phase. It persists for
// the life of the session, across recomputes and disable/enable cycles.
type state struct {
	direction Direction
	phase     Phase
}

type step struct {
	index  int
	el     host.Element
	height float64
	state  state
	// muted is set after the first enter callback fires when Once is
	// configured; state keeps updating, callbacks stop surfacing.
	muted bool
}

// Scroller owns a scroll session: configuration, lifecycle, direction
// tracking, and the registries feeding the step sequencer.
type Scroller struct {
	mu  sync.Mutex
	h   host.Host
	cfg Config

	offsetFrac float64
	order      bool
	threshold  int

	steps     []*step
	container host.Element
	graphic   host.Element
	contState state

	registries []*observer.Registry
	enabled    bool
	destroyed  bool

	prevY     float64
	direction Direction

	on handlers
}

// New resolves the configured selectors, builds the observation registries
// and activates the session. A step selector that resolves nothing is a
// recoverable error; other configuration problems are fatal to the call.
func New(h host.Host, cfg Config) (*Scroller, error) {
	if cfg.Step == "" {
		return nil, errors.New("scrolly: step selector is required")
	}

	s := &Scroller{
		cfg:        cfg,
		offsetFrac: cfg.offset(),
		order:      cfg.order(),
		threshold:  cfg.threshold(),
	}
	s.h = &lockedHost{inner: h, mu: &s.mu}

	els := s.h.Query(cfg.Step)
	if len(els) == 0 {
		log.Printf("[Engine] setup: no steps matched %q", cfg.Step)
		return nil, fmt.Errorf("%w (selector %q)", ErrNoSteps, cfg.Step)
	}
	for i, el := range els {
		s.steps = append(s.steps, &step{index: i, el: el})
	}

	if cfg.Container != "" {
		if found := s.h.Query(cfg.Container); len(found) > 0 {
			s.container = found[0]
		}
	}
	if cfg.Graphic != "" {
		if found := s.h.Query(cfg.Graphic); len(found) > 0 {
			s.graphic = found[0]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevY = h.ScrollY()
	if err := s.buildRegistries(); err != nil {
		return nil, err
	}
	s.enabled = true
	if cfg.Debug {
		_, vh := h.ViewportSize()
		log.Printf("[Engine] setup: %d steps, trigger line at %.0fpx (offset %.2f)",
			len(s.steps), s.offsetFrac*vh, s.offsetFrac)
	}
	return s, nil
}

// Offset returns the current trigger offset.
func (s *Scroller) Offset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsetFrac
}

// SetOffset moves the trigger line and recomputes all geometry. Values are
// clamped to [0,1].
func (s *Scroller) SetOffset(x float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.offsetFrac = clamp01(x)
	return s.rebuild()
}

// TriggerLinePx returns the trigger line's distance from the viewport top
// in pixels. The debug overlay draws at this position; the engine itself
// paints nothing.
func (s *Scroller) TriggerLinePx() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, vh := s.h.ViewportSize()
	return s.offsetFrac * vh
}

// Resize forces a full geometry recompute, for use after layout changes
// the host did not signal.
func (s *Scroller) Resize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.rebuild()
}

// Enable resumes monitoring. Step and container state carry over from
// before Disable, so the sequence continues from the same logical point.
func (s *Scroller) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if s.enabled {
		return nil
	}
	if err := s.buildRegistries(); err != nil {
		return err
	}
	s.enabled = true
	return nil
}

// Disable detaches all registries without discarding step or container
// state.
func (s *Scroller) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownRegistries()
	s.enabled = false
}

// Destroy disables the session and clears all callbacks. It is terminal.
func (s *Scroller) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.teardownRegistries()
	s.enabled = false
	s.destroyed = true
	s.on = handlers{}
}

// Enabled reports whether the session is currently monitoring.
func (s *Scroller) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// StepCount returns the number of resolved steps.
func (s *Scroller) StepCount() int {
	return len(s.steps)
}

// rebuild tears down and reconstructs the registries against current
// geometry. State tables are untouched. Caller holds s.mu.
func (s *Scroller) rebuild() error {
	if !s.enabled {
		return nil
	}
	s.teardownRegistries()
	return s.buildRegistries()
}

func (s *Scroller) teardownRegistries() {
	for _, r := range s.registries {
		r.Disconnect()
	}
	s.registries = nil
}

// lockedHost serializes signal fan-out and deferred recomputes with the
// session's own lock, so one batch is always processed to completion
// before the next signal is handled.
type lockedHost struct {
	inner host.Host
	mu    *sync.Mutex
}

func (l *lockedHost) ViewportSize() (float64, float64) { return l.inner.ViewportSize() }
func (l *lockedHost) ScrollY() float64                 { return l.inner.ScrollY() }
func (l *lockedHost) PageHeight() float64              { return l.inner.PageHeight() }
func (l *lockedHost) BoundingRect(el host.Element) (geom.Region, bool) {
	return l.inner.BoundingRect(el)
}
func (l *lockedHost) Parent(el host.Element) (host.Element, bool) { return l.inner.Parent(el) }
func (l *lockedHost) ClipsOverflow(el host.Element) bool          { return l.inner.ClipsOverflow(el) }
func (l *lockedHost) Rendered(el host.Element) bool               { return l.inner.Rendered(el) }
func (l *lockedHost) DocumentLevel(el host.Element) bool          { return l.inner.DocumentLevel(el) }
func (l *lockedHost) Query(selector string) []host.Element        { return l.inner.Query(selector) }
func (l *lockedHost) Now() time.Time                              { return l.inner.Now() }

func (l *lockedHost) Subscribe(fn func(host.Signal)) func() {
	return l.inner.Subscribe(func(sig host.Signal) {
		l.mu.Lock()
		defer l.mu.Unlock()
		fn(sig)
	})
}

func (l *lockedHost) Defer(d time.Duration, fn func()) func() {
	return l.inner.Defer(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		fn()
	})
}
