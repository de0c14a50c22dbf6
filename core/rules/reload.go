package rules

import (
	"log/slog"
	"sync"

	"github.com/jdelaire/osonbot/core"
)

// Reloader swaps the rules registered on a registry when the rules file
// changes. Handlers registered outside the file are left alone unless a rule
// shares their trigger.
type Reloader struct {
	registry *core.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	bound Bound
}

// NewReloader creates a reloader for reg.
func NewReloader(reg *core.Registry, logger *slog.Logger) *Reloader {
	return &Reloader{registry: reg, logger: logger}
}

// Track records what was registered at startup so a reload can remove it.
func (r *Reloader) Track(b Bound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound = b
}

// Reload loads path and, if it parses, replaces the previously tracked rules
// with the new set in one step. A file that fails to load keeps the old rules
// in place.
func (r *Reloader) Reload(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded, err := Load(path)
	if err != nil {
		r.logger.Error("reload rules failed", "path", path, "error", err)
		return
	}
	binds, b, err := compile(loaded)
	if err != nil {
		r.logger.Error("reload rules failed", "path", path, "error", err)
		return
	}

	r.registry.Rebind(r.bound.Triggers, r.bound.Callbacks, binds)
	r.bound = b
	r.logger.Info("rules reloaded", "path", path, "rules", len(loaded), "triggers", len(b.Triggers), "callbacks", len(b.Callbacks))
}
