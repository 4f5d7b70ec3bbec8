package config

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
)

// Watcher polls the settings store and reports when its modification time
// or size changes. Creating or removing the file also counts as a change.
type Watcher struct {
	path     string
	interval time.Duration
	clock    clock.Clock

	lastMod  time.Time
	lastSize int64
	exists   bool
}

// NewWatcher returns a Watcher for path. A nil clk uses the wall clock.
func NewWatcher(path string, interval time.Duration, clk clock.Clock) *Watcher {
	if clk == nil {
		clk = clock.New()
	}
	w := &Watcher{path: path, interval: interval, clock: clk}
	w.snapshot()
	return w
}

// Run blocks until ctx is done, calling onChange after every detected
// modification. onChange runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.snapshot() {
				onChange()
			}
		}
	}
}

// snapshot records the current file state and reports whether it differs
// from the previous one.
func (w *Watcher) snapshot() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		changed := w.exists
		w.exists = false
		w.lastMod = time.Time{}
		w.lastSize = 0
		return changed
	}

	changed := !w.exists || !info.ModTime().Equal(w.lastMod) || info.Size() != w.lastSize
	w.exists = true
	w.lastMod = info.ModTime()
	w.lastSize = info.Size()
	return changed
}
