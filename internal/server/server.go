// Package server serves scrolly stories over HTTP. Each story page carries a
// small measuring script that streams scroll frames to the server over a
// websocket; the server runs the scroll engine per connection and pushes the
// resulting step events back.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/yantonsoup/d3-playground/internal/config"
	"github.com/yantonsoup/d3-playground/internal/recorder"
	"github.com/yantonsoup/d3-playground/story"
)

// Server is the scrolly story server.
type Server struct {
	cfg      *config.Config
	rootDir  string
	mu       sync.RWMutex
	stories  map[string]*story.Story
	recorder *recorder.Recorder
	watcher  *Watcher

	limiterStop context.CancelFunc
	limiterDone <-chan struct{}
}

// New creates a server for the given configuration. rootDir anchors the
// story directory when it is relative.
func New(rootDir string, cfg *config.Config) *Server {
	return &Server{
		cfg:     cfg,
		rootDir: rootDir,
		stories: make(map[string]*story.Story),
	}
}

// Discover loads every story from the configured directory, replacing the
// current set.
func (s *Server) Discover() error {
	dir := s.cfg.Stories.Dir
	if !strings.HasPrefix(dir, "/") {
		dir = s.rootDir + "/" + dir
	}
	stories, err := story.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to load stories: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stories = make(map[string]*story.Story, len(stories))
	for _, st := range stories {
		s.stories[st.ID] = st
	}
	return nil
}

// Stories returns the loaded stories sorted by id.
func (s *Server) Stories() []*story.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*story.Story, 0, len(s.stories))
	for _, st := range s.stories {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnableRecording opens the event database and records every session.
func (s *Server) EnableRecording() error {
	rec, err := recorder.Open(s.cfg.Record.GetDB())
	if err != nil {
		return err
	}
	s.recorder = rec
	return nil
}

// Close releases the recorder, watcher and rate-limiter cleanup.
func (s *Server) Close() error {
	if s.limiterStop != nil {
		s.limiterStop()
		<-s.limiterDone
		s.limiterStop = nil
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			return err
		}
		s.watcher = nil
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			return err
		}
		s.recorder = nil
	}
	return nil
}

// Handler returns the routed HTTP handler with middleware applied.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveIndex)
	mux.HandleFunc("/story/", s.serveStory)
	mux.HandleFunc("/ws/", s.serveSession)
	mux.HandleFunc("/api/sessions/", s.serveSessionEvents)

	// The limiter's cleanup goroutine follows ctx but is also stopped
	// and drained by Close.
	ctx, cancel := context.WithCancel(ctx)
	limit, done := RateLimitMiddleware(ctx, s.cfg.Server.GetRateLimitRPS(), s.cfg.Server.GetRateLimitBurst())
	s.limiterStop = cancel
	s.limiterDone = done
	return limit(mux)
}

// serveIndex lists the loaded stories.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(s.renderIndex()))
}

// serveStory renders one story page.
func (s *Server) serveStory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/story/")
	s.mu.RLock()
	st, ok := s.stories[id]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(s.renderStory(st)))
}

// serveSession upgrades to a websocket and runs one scroll session.
func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/")
	s.mu.RLock()
	st, ok := s.stories[id]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.runSession(w, r, st)
}

// serveSessionEvents replays a recorded session as JSON.
func (s *Server) serveSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.Error(w, "recording disabled", http.StatusNotFound)
		return
	}
	sid := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	events, err := s.recorder.Events(r.Context(), sid)
	if err != nil {
		log.Printf("[Server] Failed to load session %s: %v", sid, err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		log.Printf("[Server] Failed to encode session %s: %v", sid, err)
	}
}

// EnableWatch reloads stories when files in the story directory change.
func (s *Server) EnableWatch(debug bool) error {
	dir := s.cfg.Stories.Dir
	if !strings.HasPrefix(dir, "/") {
		dir = s.rootDir + "/" + dir
	}
	watcher, err := NewWatcher(dir, func(filePath string) error {
		log.Printf("[Watch] Story changed: %s", filePath)
		return s.Discover()
	}, debug)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = watcher
	s.watcher.Start()
	log.Printf("[Watch] Watching %s", dir)
	return nil
}
