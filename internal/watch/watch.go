// Package watch registers filesystem watches ahead of running a node whose
// result depends on on-disk state (DigestFile, ReadLink, Scandir), and
// turns change events into invalidation callbacks for internal/substrate.
// No analogous watcher appears anywhere in the teacher codebase; this is
// adopted from the pack's filesystem-watching example.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps an fsnotify.Watcher and fans change events out to whatever
// paths are currently registered, so multiple nodes can watch overlapping
// directories without duplicating fsnotify registrations.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	handlers map[string][]func()
	closed   bool
}

func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting filesystem watcher: %w", err)
	}
	w := &Watcher{fsw: fsw, handlers: make(map[string][]func())}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			hs := append([]func(){}, w.handlers[ev.Name]...)
			// A change to an entry inside a watched directory arrives named
			// after the entry; the directory's handlers fire for it too.
			if dir := filepath.Dir(ev.Name); dir != ev.Name {
				hs = append(hs, w.handlers[dir]...)
			}
			w.mu.Unlock()
			for _, h := range hs {
				h()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Register watches absPath and invokes onChange whenever fsnotify reports
// a change to it. A registration failure is the node's failure, per the
// preflight contract: no watch, no run.
func (w *Watcher) Register(absPath string, onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher closed")
	}
	if _, exists := w.handlers[absPath]; !exists {
		if err := w.fsw.Add(absPath); err != nil {
			return fmt.Errorf("registering watch on %s: %w", absPath, err)
		}
	}
	w.handlers[absPath] = append(w.handlers[absPath], onChange)
	return nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.fsw.Close()
}
