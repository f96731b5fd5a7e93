package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	scrolly "github.com/yantonsoup/d3-playground"
	"github.com/yantonsoup/d3-playground/host/wirehost"
	"github.com/yantonsoup/d3-playground/internal/recorder"
	"github.com/yantonsoup/d3-playground/story"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Selectors the story page template uses. The measuring script reports
// elements under these names and the engine resolves them back.
const (
	selContainer = "#scroll"
	selGraphic   = ".graphic"
	selStep      = ".step"
)

// EventEnvelope is one engine event pushed to the page.
type EventEnvelope struct {
	Kind      string  `json:"kind"` // stepEnter, stepExit, stepProgress, containerEnter, containerExit
	Index     int     `json:"index"`
	Direction string  `json:"direction"`
	Progress  float64 `json:"progress,omitempty"`
}

// sessionConfig maps a story's frontmatter options onto an engine config.
func (s *Server) sessionConfig(st *story.Story) scrolly.Config {
	opts := st.Options
	return scrolly.Config{
		Container: selContainer,
		Graphic:   selGraphic,
		Step:      selStep,
		Offset:    opts.Offset.Fraction(),
		Progress:  opts.Progress,
		Threshold: opts.Threshold,
		Order:     opts.Order,
		Once:      opts.Once,
		Debug:     opts.Debug || s.cfg.Server.Debug,
		Throttle:  s.cfg.Engine.GetThrottle(),
	}
}

// runSession owns one websocket connection: a dedicated host fed by the
// page's frames, and a dedicated engine session pushing events back.
func (s *Server) runSession(w http.ResponseWriter, r *http.Request, st *story.Story) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	debug := s.cfg.Server.Debug
	if debug {
		log.Printf("[WS] Client connected for story %q: %s", st.ID, conn.RemoteAddr())
	}

	// The first message must be the hello frame carrying the initial
	// layout; without it the engine has nothing to resolve selectors
	// against.
	h := wirehost.New()
	var hello wirehost.Frame
	if err := conn.ReadJSON(&hello); err != nil {
		log.Printf("[WS] Failed to read hello frame: %v", err)
		return
	}
	h.ApplyFrame(hello)

	scroller, err := scrolly.New(h, s.sessionConfig(st))
	if err != nil {
		log.Printf("[WS] Failed to start session for %q: %v", st.ID, err)
		return
	}
	defer scroller.Destroy()

	var sessionID string
	if s.recorder != nil {
		sessionID, err = s.recorder.Begin(r.Context(), st.ID)
		if err != nil {
			log.Printf("[WS] Failed to begin recording: %v", err)
		}
	}

	// push runs inside engine callbacks, which may fire from the read
	// loop or from a throttle timer; writeMu keeps the socket writes and
	// the recorder sequence consistent.
	var writeMu sync.Mutex
	var seq int
	push := func(env EventEnvelope) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(env); err != nil {
			if debug {
				log.Printf("[WS] Failed to send event: %v", err)
			}
			return
		}
		if s.recorder != nil && sessionID != "" {
			ev := recorder.Event{
				Seq:       seq,
				At:        time.Now(),
				Kind:      env.Kind,
				StepIndex: env.Index,
				Direction: env.Direction,
				Progress:  env.Progress,
			}
			seq++
			if err := s.recorder.Record(context.Background(), sessionID, ev); err != nil {
				log.Printf("[WS] Failed to record event: %v", err)
			}
		}
	}

	scroller.OnStepEnter(func(e scrolly.StepEvent) {
		push(EventEnvelope{Kind: "stepEnter", Index: e.Index, Direction: e.Direction.String()})
	})
	scroller.OnStepExit(func(e scrolly.StepEvent) {
		push(EventEnvelope{Kind: "stepExit", Index: e.Index, Direction: e.Direction.String()})
	})
	scroller.OnStepProgress(func(e scrolly.ProgressEvent) {
		push(EventEnvelope{Kind: "stepProgress", Index: e.Index, Progress: e.Progress})
	})
	scroller.OnContainerEnter(func(e scrolly.ContainerEvent) {
		push(EventEnvelope{Kind: "containerEnter", Index: -1, Direction: e.Direction.String()})
	})
	scroller.OnContainerExit(func(e scrolly.ContainerEvent) {
		push(EventEnvelope{Kind: "containerExit", Index: -1, Direction: e.Direction.String()})
	})

	for {
		var frame wirehost.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close: %v", err)
			}
			break
		}
		h.ApplyFrame(frame)
	}

	if debug {
		log.Printf("[WS] Client disconnected: %s", conn.RemoteAddr())
	}
}
