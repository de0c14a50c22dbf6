// Package configwatch polls files such as a bot's rules file and reports
// when they change on disk.
package configwatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultInterval is the poll period used when New is given zero.
const DefaultInterval = 2 * time.Second

// Watcher polls files for changes and invokes a callback per change.
type Watcher struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries []watchEntry
}

type watchEntry struct {
	path string
	seen stamp
	cb   func(path string)
}

// stamp identifies a file version. Size catches rewrites that land within
// the filesystem's mtime granularity.
type stamp struct {
	modTime time.Time
	size    int64
}

func (s stamp) missing() bool { return s.modTime.IsZero() }

// New creates a Watcher that polls at interval.
func New(interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{interval: interval, logger: logger}
}

// Watch registers cb for path. The file need not exist yet; its appearance
// counts as a change.
func (w *Watcher) Watch(path string, cb func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, watchEntry{path: path, seen: stat(path), cb: cb})
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	w.mu.Lock()
	var changed []watchEntry
	for i := range w.entries {
		e := &w.entries[i]
		cur := stat(e.path)
		// A missing file is usually an editor mid-save.
		if cur.missing() || cur == e.seen {
			continue
		}
		e.seen = cur
		changed = append(changed, *e)
	}
	w.mu.Unlock()

	for _, e := range changed {
		w.logger.Info("watched file changed", "path", e.path)
		e.cb(e.path)
	}
}

func stat(path string) stamp {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}
	}
	return stamp{modTime: info.ModTime(), size: info.Size()}
}
