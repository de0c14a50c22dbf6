// Package ops implements the builder bot: chat commands through which users
// create and teach their own supervised bots.
package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Request is one parsed command invocation.
type Request struct {
	ChatID int64
	UserID int64
	Args   string
}

// Op is a command the builder bot answers.
type Op interface {
	Name() string
	Description() string
	Execute(ctx context.Context, req Request) (string, error)
}

// Registry holds ops keyed by name.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Op
}

// NewRegistry creates an empty op registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Op)}
}

// Register adds op. A name can only be registered once.
func (r *Registry) Register(op Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := op.Name()
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("op already registered: %s", name)
	}
	r.ops[name] = op
	return nil
}

// Get returns the op named name, or nil.
func (r *Registry) Get(name string) Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[name]
}

// List returns every op sorted by name.
func (r *Registry) List() []Op {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Op, len(names))
	for i, name := range names {
		result[i] = r.ops[name]
	}
	return result
}

// ParseCommand splits "/command@bot args" into a lowercase command name and
// its arguments. Text that is not a command yields an empty name.
func ParseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	cmd, args, _ = strings.Cut(text[1:], " ")
	args = strings.TrimSpace(args)
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), args
}
