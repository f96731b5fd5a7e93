package scrolly

import "github.com/yantonsoup/d3-playground/host"

// Direction is the current scroll direction, derived by comparing scroll
// offsets between recompute batches.
type Direction int

const (
	// None means no movement has been observed yet.
	None Direction = iota
	// Up means the scroll offset is decreasing.
	Up
	// Down means the scroll offset is increasing.
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

// Phase is a step's position in its enter/exit lifecycle.
type Phase int

const (
	// PhaseNone means the step has never entered.
	PhaseNone Phase = iota
	// PhaseEntered means the step's trigger crossing is active.
	PhaseEntered
	// PhaseExited means the step has entered and since exited.
	PhaseExited
)

// StepEvent is the payload for step enter and exit callbacks.
type StepEvent struct {
	Index     int
	Direction Direction
	Element   host.Element
}

// ProgressEvent reports how far a step's region has moved past the trigger
// line, from 0 to 1.
type ProgressEvent struct {
	Index    int
	Progress float64
	Element  host.Element
}

// ContainerEvent is the payload for container enter and exit callbacks.
type ContainerEvent struct {
	Direction Direction
}

// handlers is the typed event emitter: one optional slot per event kind.
// Registering a callback overwrites the previous one, never appends.
type handlers struct {
	stepEnter      func(StepEvent)
	stepExit       func(StepEvent)
	stepProgress   func(ProgressEvent)
	containerEnter func(ContainerEvent)
	containerExit  func(ContainerEvent)
}

// OnStepEnter registers the step enter callback.
func (s *Scroller) OnStepEnter(fn func(StepEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on.stepEnter = fn
}

// OnStepExit registers the step exit callback.
func (s *Scroller) OnStepExit(fn func(StepEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on.stepExit = fn
}

// OnStepProgress registers the step progress callback. It only fires when
// the session was configured with Progress.
func (s *Scroller) OnStepProgress(fn func(ProgressEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on.stepProgress = fn
}

// OnContainerEnter registers the container enter callback.
func (s *Scroller) OnContainerEnter(fn func(ContainerEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on.containerEnter = fn
}

// OnContainerExit registers the container exit callback.
func (s *Scroller) OnContainerExit(fn func(ContainerEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on.containerExit = fn
}
