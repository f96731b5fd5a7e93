//go:build !ci

package scrolly_test

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/yantonsoup/d3-playground/internal/config"
	"github.com/yantonsoup/d3-playground/internal/server"
)

const e2eStory = `---
title: Ocean Depths
scroller:
  offset: 0.5
  progress: true
---

Scroll on.

## Surface

Sunlight zone.

## Twilight

Dim light only.

## Midnight

No light at all.
`

// TestStoryScrollActivatesSteps drives a real browser through a story page
// and verifies the round trip: scroll frames up the websocket, engine events
// back down, step highlighting in the DOM.
func TestStoryScrollActivatesSteps(t *testing.T) {
	requireChrome(t)

	dir := t.TempDir()
	storiesDir := filepath.Join(dir, "stories")
	if err := os.Mkdir(storiesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(storiesDir, "ocean.md"), []byte(e2eStory), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Engine.Throttle = "30ms"
	srv := server.New(dir, cfg)
	if err := srv.Discover(); err != nil {
		t.Fatalf("Failed to discover stories: %v", err)
	}
	defer srv.Close()

	ts := httptest.NewServer(srv.Handler(context.Background()))
	defer ts.Close()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()

	ctx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	defer cancelCtx()

	ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
	defer cancelTimeout()

	// Surface browser console output in the test log.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			args := make([]string, len(ev.Args))
			for i, arg := range ev.Args {
				args[i] = fmt.Sprintf("%v", arg.Value)
			}
			t.Logf("[Browser Console] %s: %s", ev.Type, strings.Join(args, " "))
		case *runtime.EventExceptionThrown:
			t.Logf("[Browser Error] %s", ev.ExceptionDetails.Text)
		}
	})

	var firstActive, secondActive bool
	err := chromedp.Run(ctx,
		chromedp.Navigate(ts.URL+"/story/ocean"),
		chromedp.WaitVisible(".step", chromedp.ByQuery),
		// Give the websocket a moment to connect and send its hello frame.
		chromedp.Sleep(500*time.Millisecond),

		// Scroll until step 0 straddles the trigger line moving down.
		chromedp.Evaluate(`window.scrollTo(0, document.querySelectorAll('.step')[0].offsetTop - window.innerHeight * 0.3)`, nil),
		chromedp.Poll(`document.querySelectorAll('.step')[0].classList.contains('active')`,
			&firstActive, chromedp.WithPollingTimeout(10*time.Second)),

		// Continue to step 1; step 0 must deactivate on exit.
		chromedp.Evaluate(`window.scrollTo(0, document.querySelectorAll('.step')[1].offsetTop - window.innerHeight * 0.3)`, nil),
		chromedp.Poll(`document.querySelectorAll('.step')[1].classList.contains('active')
			&& !document.querySelectorAll('.step')[0].classList.contains('active')`,
			&secondActive, chromedp.WithPollingTimeout(10*time.Second)),
	)
	if err != nil {
		t.Fatalf("E2E run failed: %v", err)
	}
	if !firstActive || !secondActive {
		t.Fatalf("step activation did not propagate: first=%v second=%v", firstActive, secondActive)
	}
}

// requireChrome skips the test when no local Chrome binary is available.
func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("Chrome not available, skipping E2E test")
}
