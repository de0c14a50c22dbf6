// Package supervisor runs one Dispatcher per registered bot and keeps the
// bot roster on disk in sync with the running set.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/internal/roster"
)

// ErrUnknownBot is returned for a token that is not in the roster.
var ErrUnknownBot = errors.New("unknown bot")

// DefaultUnknownReply answers text no command matches.
const DefaultUnknownReply = "❓ Unknown command."

// Status is the lifecycle of one supervised instance.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// GatewayFactory builds the gateway for a bot token.
type GatewayFactory func(token string) core.Gateway

// Info is a snapshot of one instance.
type Info struct {
	ID        string `json:"id"`
	Token     string `json:"-"`
	TokenHint string `json:"token"`
	OwnerID   int64  `json:"owner_id"`
	Username  string `json:"username,omitempty"`
	Status    Status `json:"status"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Commands  int    `json:"commands"`
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithUnknownReply sets the wildcard reply every instance starts with.
// An empty text leaves unmatched messages unanswered.
func WithUnknownReply(text string) Option {
	return func(s *Supervisor) { s.unknownReply = text }
}

// WithDispatcherOptions applies opts to every instance's Dispatcher.
func WithDispatcherOptions(opts ...core.DispatcherOption) Option {
	return func(s *Supervisor) { s.dispatcherOpts = append(s.dispatcherOpts, opts...) }
}

// WithClock overrides the clock used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor owns the roster and the running dispatchers. One instance's
// failure never affects another.
type Supervisor struct {
	store          *roster.Store
	newGateway     GatewayFactory
	logger         *slog.Logger
	unknownReply   string
	dispatcherOpts []core.DispatcherOption
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// rosterMu serializes read-modify-write of the roster file.
	rosterMu sync.Mutex

	mu        sync.RWMutex
	seq       int
	instances map[string]*instance
}

type instance struct {
	seq        int
	rec        roster.Record
	registry   *core.Registry
	dispatcher *core.Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}

	mu       sync.Mutex
	commands int
	finished bool
	err      error
}

// New creates a Supervisor. Dispatchers run under a context derived from
// ctx, so cancelling it stops every instance.
func New(ctx context.Context, store *roster.Store, newGateway GatewayFactory, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:        store,
		newGateway:   newGateway,
		logger:       logger,
		unknownReply: DefaultUnknownReply,
		now:          time.Now,
		instances:    make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

// AddInstance registers token for owner, persists the roster and starts a
// dispatcher. It returns false if the token is already registered.
func (s *Supervisor) AddInstance(token string, owner int64) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, errors.New("empty token")
	}

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	recs, err := s.store.Load()
	if err != nil {
		return false, err
	}
	if roster.Find(recs, token) >= 0 {
		return false, nil
	}

	rec := roster.NewRecord(token, owner, s.now())
	if err := s.store.Save(append(recs, rec)); err != nil {
		return false, fmt.Errorf("save roster: %w", err)
	}

	s.start(rec)
	s.logger.Info("bot added", "instance", rec.ID, "owner_id", owner)
	return true, nil
}

// RegisterCommand binds trigger to a static text response for token. A
// trigger already present is overwritten. The running dispatcher sees the
// change on its next update.
func (s *Supervisor) RegisterCommand(token, trigger, response string) error {
	if trigger == "" {
		return errors.New("empty trigger")
	}

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	recs, err := s.store.Load()
	if err != nil {
		return err
	}
	i := roster.Find(recs, token)
	if i < 0 {
		return ErrUnknownBot
	}

	cmds := recs[i].Commands
	j := slices.IndexFunc(cmds, func(c roster.Command) bool { return c.Trigger == trigger })
	if j >= 0 {
		cmds[j].Response = response
	} else {
		cmds = append(cmds, roster.Command{Trigger: trigger, Response: response})
	}
	recs[i].Commands = cmds
	if err := s.store.Save(recs); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}

	s.mu.RLock()
	inst := s.instances[token]
	s.mu.RUnlock()
	if inst != nil {
		inst.registry.When(core.ParseTrigger(trigger), core.Text(response))
		inst.mu.Lock()
		inst.commands = len(cmds)
		inst.mu.Unlock()
	}
	s.logger.Info("command registered", "instance", recs[i].ID, "trigger", trigger)
	return nil
}

// RemoveInstance stops token's dispatcher and deletes its record.
func (s *Supervisor) RemoveInstance(token string) error {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	recs, err := s.store.Load()
	if err != nil {
		return err
	}
	i := roster.Find(recs, token)
	if i < 0 {
		return ErrUnknownBot
	}
	id := recs[i].ID
	if err := s.store.Save(slices.Delete(recs, i, i+1)); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}

	s.mu.Lock()
	inst := s.instances[token]
	delete(s.instances, token)
	s.mu.Unlock()
	if inst != nil {
		inst.cancel()
		<-inst.done
	}
	s.logger.Info("bot removed", "instance", id)
	return nil
}

// RestartAll starts a dispatcher for every roster record that is not
// already running and returns how many were started.
func (s *Supervisor) RestartAll() (int, error) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	recs, err := s.store.Load()
	if err != nil {
		return 0, err
	}

	started := 0
	for _, rec := range recs {
		s.mu.RLock()
		inst := s.instances[rec.Token]
		s.mu.RUnlock()
		if inst != nil && !inst.stopped() {
			continue
		}
		s.start(rec)
		started++
	}
	s.logger.Info("roster restored", "path", s.store.Path(), "records", len(recs), "started", started)
	return started, nil
}

// Shutdown stops every dispatcher and waits for them to return.
func (s *Supervisor) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Instance returns the snapshot for token.
func (s *Supervisor) Instance(token string) (Info, bool) {
	s.mu.RLock()
	inst := s.instances[token]
	s.mu.RUnlock()
	if inst == nil {
		return Info{}, false
	}
	return inst.info(), true
}

// InstanceForOwner returns the first instance owned by owner.
func (s *Supervisor) InstanceForOwner(owner int64) (Info, bool) {
	for _, info := range s.Instances() {
		if info.OwnerID == owner {
			return info, true
		}
	}
	return Info{}, false
}

// Instances returns a snapshot of every instance in start order.
func (s *Supervisor) Instances() []Info {
	s.mu.RLock()
	list := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		list = append(list, inst)
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b *instance) int { return a.seq - b.seq })
	out := make([]Info, 0, len(list))
	for _, inst := range list {
		out = append(out, inst.info())
	}
	return out
}

// start launches a dispatcher for rec, replacing any stopped instance with
// the same token. Callers hold rosterMu.
func (s *Supervisor) start(rec roster.Record) {
	reg := core.NewRegistry()
	if s.unknownReply != "" {
		reg.When(core.Wildcard, core.Text(s.unknownReply))
	}
	for _, c := range rec.Commands {
		reg.When(core.ParseTrigger(c.Trigger), core.Text(c.Response))
	}

	logger := s.logger.With("instance", rec.ID)
	ctx, cancel := context.WithCancel(s.ctx)
	inst := &instance{
		rec:        rec,
		registry:   reg,
		dispatcher: core.NewDispatcher(s.newGateway(rec.Token), reg, logger, s.dispatcherOpts...),
		cancel:     cancel,
		done:       make(chan struct{}),
		commands:   len(rec.Commands),
	}

	s.mu.Lock()
	s.seq++
	inst.seq = s.seq
	s.instances[rec.Token] = inst
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(inst.done)
		defer cancel()
		inst.finish(run(ctx, inst.dispatcher))
		if err := inst.failure(); err != nil {
			logger.Error("bot instance failed", "error", err)
		}
	}()
}

// run contains a panic escaping the dispatcher to this instance.
func run(ctx context.Context, d *core.Dispatcher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return d.Run(ctx)
}

func (i *instance) finish(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.finished = true
	i.err = err
}

func (i *instance) failure() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

func (i *instance) stopped() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.finished
}

func (i *instance) info() Info {
	i.mu.Lock()
	defer i.mu.Unlock()

	info := Info{
		ID:        i.rec.ID,
		Token:     i.rec.Token,
		TokenHint: MaskToken(i.rec.Token),
		OwnerID:   i.rec.OwnerID,
		Username:  i.dispatcher.Identity().Username,
		Status:    StatusRunning,
		State:     i.dispatcher.State().String(),
		Commands:  i.commands,
	}
	switch {
	case i.finished && i.err != nil:
		info.Status = StatusFailed
		info.Error = i.err.Error()
	case i.finished:
		info.Status = StatusStopped
	}
	return info
}

// MaskToken keeps the numeric bot id of a token and hides the secret part.
func MaskToken(token string) string {
	id, _, ok := strings.Cut(token, ":")
	if !ok {
		if len(token) <= 4 {
			return "****"
		}
		return token[:4] + "****"
	}
	return id + ":****"
}
