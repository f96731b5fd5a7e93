package server

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the story directory and triggers a reload when a story
// file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onReload func(filePath string) error
	done     chan bool
	debug    bool
}

// NewWatcher creates a watcher over dir. onReload runs for every changed
// .md file.
func NewWatcher(dir string, onReload func(string) error, debug bool) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		onReload: onReload,
		done:     make(chan bool),
		debug:    debug,
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				// Removes and renames matter too: a deleted story must
				// drop out of the index.
				relevant := event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
				if !relevant || filepath.Ext(event.Name) != ".md" {
					continue
				}
				if w.debug {
					log.Printf("[Watch] %s: %s", event.Op, event.Name)
				}
				if err := w.onReload(event.Name); err != nil {
					log.Printf("[Watch] Reload failed for %s: %v", event.Name, err)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Watch] Error: %v", err)

			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
