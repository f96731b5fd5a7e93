package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantonsoup/d3-playground/internal/config"
)

const testStory = `---
title: Ocean Depths
scroller:
  offset: 0.5
  progress: true
---

Intro text.

## Surface

Sunlight zone.

## Twilight

Dim light only.
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	storiesDir := filepath.Join(dir, "stories")
	require.NoError(t, os.Mkdir(storiesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storiesDir, "ocean.md"), []byte(testStory), 0o644))

	cfg := config.DefaultConfig()
	cfg.Engine.Throttle = "1ms"
	srv := New(dir, cfg)
	require.NoError(t, srv.Discover())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestDiscoverLoadsStories(t *testing.T) {
	srv := newTestServer(t)
	stories := srv.Stories()
	require.Len(t, stories, 1)
	assert.Equal(t, "ocean", stories[0].ID)
	assert.Len(t, stories[0].Steps, 2)
}

func TestIndexListsStories(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler(context.Background()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	assert.Contains(t, string(body[:n]), "/story/ocean")
}

func TestStoryPage(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler(context.Background()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/story/ocean")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/story/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimitRejectsBursts(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.Server.RateLimit = &config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}
	ts := httptest.NewServer(srv.Handler(context.Background()))
	defer ts.Close()

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "the burst should exhaust the token bucket")
}

func TestCloseStopsLimiterCleanup(t *testing.T) {
	srv := newTestServer(t)
	_ = srv.Handler(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- srv.Close() }()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the limiter cleanup goroutine")
	}
	// The t.Cleanup close runs again; it must be a no-op.
	require.NoError(t, srv.Close())
}

func TestWatchReloadsStories(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.EnableWatch(false))

	storiesDir := filepath.Join(srv.rootDir, "stories")
	require.NoError(t, os.WriteFile(filepath.Join(storiesDir, "second.md"), []byte("## Only\nx\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(srv.Stories()) == 2
	}, 3*time.Second, 50*time.Millisecond, "the watcher should pick up the new story")
}
