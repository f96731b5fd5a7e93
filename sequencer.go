package scrolly

import (
	"log"
	"math"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host"
	"github.com/yantonsoup/d3-playground/observer"
)

// Registry roles per step. No single registry can robustly detect both
// directions of crossing at arbitrary scroll speed, so each step gets four
// cooperating ones (plus an optional fine-grained progress registry):
//
//   - above edge: fires when the step's top edge crosses the trigger line;
//     ordinary downward entry and upward exit.
//   - below edge: the symmetric band for the step's bottom edge; upward
//     entry and downward exit.
//   - catch-up above/below: wide zones covering everything past the trigger
//     line, so a step whose edge crossing was skipped in a single jump is
//     still discovered and run through a synthesized enter/exit pair.
//
// All bands are expressed as root margins against the viewport: a band
// [top, bottom] in viewport coordinates becomes a margin of (-top) on top
// and (bottom - viewportHeight) on bottom.

func band(top, bottom, vh float64) geom.Margin {
	return geom.PxMargin(-top, 0, bottom-vh, 0)
}

// buildRegistries measures current geometry and constructs every registry.
// Caller holds s.mu.
func (s *Scroller) buildRegistries() error {
	_, vh := s.h.ViewportSize()
	pageH := s.h.PageHeight()
	trigger := s.offsetFrac * vh

	for _, st := range s.steps {
		if r, ok := s.h.BoundingRect(st.el); ok {
			st.height = r.Height
		} else {
			st.height = 0
		}
	}

	add := func(el host.Element, m geom.Margin, ts geom.ThresholdSet, deliver func([]observer.Report)) error {
		reg, err := observer.New(s.h, observer.Options{
			RootMargin: m,
			Thresholds: ts,
			Throttle:   s.cfg.Throttle,
		}, deliver)
		if err != nil {
			return err
		}
		s.registries = append(s.registries, reg)
		reg.Observe(el)
		return nil
	}

	edge := geom.ThresholdSet{0}

	// Registries are created grouped by role, because signal fan-out
	// follows subscription order and the sequencer depends on it: the
	// catch-up zones must report before the edge registries so skipped
	// steps surface ahead of a genuine entry, and the below catch-ups run
	// in descending index order to match upward sweeps.
	for _, st := range s.steps {
		if err := add(st.el, band(-pageH, trigger-st.height, vh), edge, s.handleCatchUpAbove(st)); err != nil {
			return err
		}
	}
	for j := len(s.steps) - 1; j >= 0; j-- {
		st := s.steps[j]
		if err := add(st.el, band(trigger+st.height, vh+pageH, vh), edge, s.handleCatchUpBelow(st)); err != nil {
			return err
		}
	}
	for _, st := range s.steps {
		if err := add(st.el, band(trigger-st.height, trigger, vh), edge, s.handleAbove(st)); err != nil {
			return err
		}
	}
	for _, st := range s.steps {
		if err := add(st.el, band(trigger, trigger+st.height, vh), edge, s.handleBelow(st)); err != nil {
			return err
		}
	}
	if s.cfg.Progress {
		for _, st := range s.steps {
			n := int(math.Ceil(st.height / float64(s.threshold)))
			if n < 1 {
				n = 1
			}
			m := band(trigger-st.height, trigger, vh)
			if err := add(st.el, m, geom.EqualSteps(n), s.handleProgress(st)); err != nil {
				return err
			}
		}
	}

	if s.container != nil {
		ch := 0.0
		if r, ok := s.h.BoundingRect(s.container); ok {
			ch = r.Height
		}
		// The graphic, when present, sizes the trigger band; it is the
		// sticky element that fills the viewport while steps pass by.
		bandH := ch
		if s.graphic != nil {
			if r, ok := s.h.BoundingRect(s.graphic); ok && r.Height > 0 {
				bandH = r.Height
			}
		}
		if err := add(s.container, band(trigger-ch, trigger, vh), edge, s.handleContainerAbove()); err != nil {
			return err
		}
		if err := add(s.container, band(trigger, trigger+bandH, vh), edge, s.handleContainerBelow()); err != nil {
			return err
		}
	}
	return nil
}

// updateDirection runs at the start of every report batch, comparing the
// scroll offset against the previously recorded one. No movement leaves
// the direction unchanged.
func (s *Scroller) updateDirection() {
	y := s.h.ScrollY()
	switch {
	case y > s.prevY:
		s.direction = Down
	case y < s.prevY:
		s.direction = Up
	}
	s.prevY = y
}

func (s *Scroller) handleAbove(st *step) func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if rep.IsIntersecting && s.direction == Down &&
				st.state.phase != PhaseEntered && st.state.direction != Down {
				s.enterStep(st, Down, true)
			}
			if !rep.IsIntersecting && s.direction == Up && st.state.phase == PhaseEntered {
				s.exitStep(st, Up)
			}
		}
	}
}

func (s *Scroller) handleBelow(st *step) func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if rep.IsIntersecting && s.direction == Up &&
				st.state.phase != PhaseEntered && st.state.direction != Up {
				s.enterStep(st, Up, true)
			}
			if !rep.IsIntersecting && s.direction == Down && st.state.phase == PhaseEntered {
				s.exitStep(st, Down)
			}
		}
	}
}

// handleCatchUpAbove discovers steps that are already fully past the
// trigger line moving down even though their edge crossing never fired,
// and runs them through an immediate matched enter/exit pair so ordering
// stays consistent.
func (s *Scroller) handleCatchUpAbove(st *step) func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if rep.IsIntersecting && s.direction == Down &&
				st.state.phase != PhaseEntered && st.state.direction != Down {
				if s.cfg.Debug {
					log.Printf("[Engine] step %d skipped moving down, synthesizing enter/exit", st.index)
				}
				s.enterStep(st, Down, true)
				s.exitStep(st, Down)
			}
		}
	}
}

func (s *Scroller) handleCatchUpBelow(st *step) func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if rep.IsIntersecting && s.direction == Up &&
				st.state.phase != PhaseEntered && st.state.direction != Up {
				if s.cfg.Debug {
					log.Printf("[Engine] step %d skipped moving up, synthesizing enter/exit", st.index)
				}
				s.enterStep(st, Up, true)
				s.exitStep(st, Up)
			}
		}
	}
}

func (s *Scroller) handleProgress(st *step) func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if st.state.phase == PhaseEntered && rep.IsIntersecting {
				s.fireStepProgress(st, round3(rep.Ratio))
			}
		}
	}
}

func (s *Scroller) handleContainerAbove() func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if rep.IsIntersecting && s.direction == Down && s.contState.phase != PhaseEntered {
				s.contState = state{direction: Down, phase: PhaseEntered}
				if fn := s.on.containerEnter; fn != nil {
					fn(ContainerEvent{Direction: Down})
				}
			}
			if !rep.IsIntersecting && s.direction == Up && s.contState.phase == PhaseEntered {
				s.contState = state{direction: Up, phase: PhaseExited}
				if fn := s.on.containerExit; fn != nil {
					fn(ContainerEvent{Direction: Up})
				}
			}
		}
	}
}

func (s *Scroller) handleContainerBelow() func([]observer.Report) {
	return func(reports []observer.Report) {
		s.updateDirection()
		for _, rep := range reports {
			if rep.IsIntersecting && s.direction == Up && s.contState.phase != PhaseEntered {
				s.contState = state{direction: Up, phase: PhaseEntered}
				if fn := s.on.containerEnter; fn != nil {
					fn(ContainerEvent{Direction: Up})
				}
			}
			if !rep.IsIntersecting && s.direction == Down && s.contState.phase == PhaseEntered {
				s.contState = state{direction: Down, phase: PhaseExited}
				if fn := s.on.containerExit; fn != nil {
					fn(ContainerEvent{Direction: Down})
				}
			}
		}
	}
}

// enterStep marks st entered and fires callbacks. When ordering is on and
// check is set, steps the scroll jumped over are first forced through
// synthesized transitions so indexes always surface in scroll order.
func (s *Scroller) enterStep(st *step, dir Direction, check bool) {
	if check && s.order {
		s.notifyOthers(st.index, dir)
	}
	st.state = state{direction: dir, phase: PhaseEntered}
	s.fireStepEnter(st, dir)
	if s.cfg.Progress {
		// Prime the progress stream at the boundary value.
		p := 0.0
		if dir == Up {
			p = 1.0
		}
		s.fireStepProgress(st, p)
	}
}

func (s *Scroller) exitStep(st *step, dir Direction) {
	st.state = state{direction: dir, phase: PhaseExited}
	if s.cfg.Progress {
		p := 1.0
		if dir == Up {
			p = 0.0
		}
		s.fireStepProgress(st, p)
	}
	s.fireStepExit(st, dir)
}

// notifyOthers forces steps between the current state and an entry at
// index through synthesized transitions: still-entered steps exit, and
// steps last recorded moving the opposite way get a matched enter/exit
// pair. Steps the trigger line has never crossed are left to their own
// catch-up zones, which only fire on a real geometric transition. Because
// each synthesized transition records the sweep direction, an index
// collapses to at most one pair per batch.
func (s *Scroller) notifyOthers(index int, dir Direction) {
	switch dir {
	case Down:
		for j := 0; j < index; j++ {
			st := s.steps[j]
			if st.state.phase == PhaseEntered {
				s.exitStep(st, Down)
			} else if st.state.direction == Up {
				s.enterStep(st, Down, false)
				s.exitStep(st, Down)
			}
		}
	case Up:
		for j := len(s.steps) - 1; j > index; j-- {
			st := s.steps[j]
			if st.state.phase == PhaseEntered {
				s.exitStep(st, Up)
			} else if st.state.direction == Down {
				s.enterStep(st, Up, false)
				s.exitStep(st, Up)
			}
		}
	}
}

func (s *Scroller) fireStepEnter(st *step, dir Direction) {
	if st.muted {
		return
	}
	if fn := s.on.stepEnter; fn != nil {
		fn(StepEvent{Index: st.index, Direction: dir, Element: st.el})
	}
	if s.cfg.Once {
		st.muted = true
	}
}

func (s *Scroller) fireStepExit(st *step, dir Direction) {
	if st.muted {
		return
	}
	if fn := s.on.stepExit; fn != nil {
		fn(StepEvent{Index: st.index, Direction: dir, Element: st.el})
	}
}

func (s *Scroller) fireStepProgress(st *step, p float64) {
	if fn := s.on.stepProgress; fn != nil {
		fn(ProgressEvent{Index: st.index, Progress: p, Element: st.el})
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
