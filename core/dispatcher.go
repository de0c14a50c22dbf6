package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// State is a Dispatcher lifecycle state.
type State int32

const (
	StateStarting State = iota
	StatePolling
	StateHandling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateHandling:
		return "handling"
	}
	return "stopped"
}

// Authorizer decides whether a message from chatID sent at sent is handled.
type Authorizer interface {
	Authorize(chatID int64, sent time.Time) error
}

// UserRecorder stores senders seen by a bot. Failures are logged and never
// stop handling.
type UserRecorder interface {
	RecordUser(ctx context.Context, u User) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAuthorizer filters incoming messages before handler resolution.
func WithAuthorizer(a Authorizer) DispatcherOption {
	return func(d *Dispatcher) { d.auth = a }
}

// WithUserRecorder records every message sender.
func WithUserRecorder(rec UserRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.users = rec }
}

// WithFallbackReply sends text when a handler fails instead of staying silent.
func WithFallbackReply(text string) DispatcherOption {
	return func(d *Dispatcher) { d.fallback = text }
}

// WithSendTimeout bounds each send call.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithOffset starts polling from offset instead of 0.
func WithOffset(offset int64) DispatcherOption {
	return func(d *Dispatcher) { d.offset.Store(offset) }
}

// Dispatcher drives one bot: it long-polls the gateway, resolves handlers
// from the registry and sends their replies.
//
// The offset is advanced to update_id+1 before an update is handled, so an
// update whose handling fails is never fetched again.
type Dispatcher struct {
	gateway     Gateway
	registry    *Registry
	logger      *slog.Logger
	auth        Authorizer
	users       UserRecorder
	fallback    string
	sendTimeout time.Duration

	offset atomic.Int64
	state  atomic.Int32

	mu       sync.RWMutex
	identity BotIdentity
}

// NewDispatcher creates a Dispatcher for one gateway and registry.
func NewDispatcher(gw Gateway, reg *Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gateway:     gw,
		registry:    reg,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Offset returns the next update id the dispatcher will ask for.
func (d *Dispatcher) Offset() int64 { return d.offset.Load() }

// State returns the current lifecycle state.
func (d *Dispatcher) State() State { return State(d.state.Load()) }

// Identity returns the bot identity recorded at startup.
func (d *Dispatcher) Identity() BotIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.identity
}

// Registry returns the registry the dispatcher resolves handlers from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Run checks the token with getMe and then polls until ctx is cancelled.
// A getMe failure is returned and the dispatcher never polls; cancellation
// returns nil. Cancellation is observed between updates, never in the middle
// of handling one.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.state.Store(int32(StateStarting))
	defer d.state.Store(int32(StateStopped))

	me, err := d.gateway.GetMe(ctx)
	if err != nil {
		d.logger.Error("bot identity check failed", "error", err)
		return fmt.Errorf("get me: %w", err)
	}
	d.mu.Lock()
	d.identity = me
	d.mu.Unlock()

	logger := d.logger.With("bot", me.Username)
	logger.Info("dispatcher started", "bot_id", me.ID, "offset", d.Offset())

	for {
		if ctx.Err() != nil {
			logger.Info("dispatcher stopped", "offset", d.Offset())
			return nil
		}

		d.state.Store(int32(StatePolling))
		updates := d.gateway.FetchUpdates(ctx, d.Offset())

		for _, u := range updates {
			if ctx.Err() != nil {
				break
			}
			d.advance(u.UpdateID)
			d.state.Store(int32(StateHandling))
			d.HandleUpdate(ctx, u)
		}
	}
}

func (d *Dispatcher) advance(updateID int64) {
	if next := updateID + 1; next > d.offset.Load() {
		d.offset.Store(next)
	}
}

// HandleUpdate resolves and dispatches a single update. Nothing escapes it:
// errors and panics are logged, optionally answered with the fallback reply.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u Update) {
	logger := d.logger.With("update_id", u.UpdateID)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("handler panicked", "panic", rec)
			d.replyFallback(ctx, u)
		}
	}()

	chatID := u.ChatID()
	if chatID == 0 {
		logger.Debug("update has no chat, skipping")
		return
	}

	if d.auth != nil {
		// Callbacks have no send time, so only the chat check applies to them.
		var sent time.Time
		if u.Message != nil {
			sent = u.Message.Time()
		}
		if err := d.auth.Authorize(chatID, sent); err != nil {
			logger.Debug("update rejected by policy", "chat_id", chatID, "error", err)
			return
		}
	}

	if msg := u.Message; msg != nil {
		if d.users != nil && msg.From != nil {
			if err := d.users.RecordUser(ctx, *msg.From); err != nil {
				logger.Warn("record user failed", "user_id", msg.From.ID, "error", err)
			}
		}
	}

	h, ok := d.registry.Resolve(u)
	if !ok {
		logger.Debug("no handler matched", "chat_id", chatID)
		return
	}

	p, render := h.Payload, Render
	if fn, ok := p.(Computed); ok {
		// Computed output is already built for this update.
		render = verbatim
		var err error
		p, err = fn(ctx, u)
		if err != nil {
			logger.Error("handler failed", "chat_id", chatID, "error", err)
			d.replyFallback(ctx, u)
			return
		}
		if p == nil {
			return
		}
	}

	if err := d.dispatch(ctx, u, chatID, p, render, SendOptions{ParseMode: h.ParseMode, ReplyMarkup: h.ReplyMarkup}); err != nil {
		logger.Error("dispatch failed", "chat_id", chatID, "error", err)
	}
}

func verbatim(s string, _ Update) string { return s }

// dispatch maps a payload to its gateway call, passing text fields through
// render.
func (d *Dispatcher) dispatch(ctx context.Context, u Update, chatID int64, p Payload, render func(string, Update) string, opts SendOptions) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	var err error
	switch v := p.(type) {
	case Text:
		_, err = d.gateway.SendText(ctx, chatID, render(string(v), u), opts)
	case Media:
		_, err = d.gateway.SendMedia(ctx, v.Kind, chatID, render(v.Source, u), render(v.Caption, u), opts)
	case Sticker:
		_, err = d.gateway.SendSticker(ctx, chatID, v.FileID, opts)
	case Edit:
		msgID := editTarget(u)
		if msgID == 0 {
			return fmt.Errorf("edit: update has no message to edit")
		}
		_, err = d.gateway.EditText(ctx, chatID, msgID, render(v.Text, u), opts)
	default:
		d.logger.Warn("unsupported payload", "update_id", u.UpdateID, "type", fmt.Sprintf("%T", p))
		return nil
	}
	if err != nil {
		return fmt.Errorf("send %T: %w", p, err)
	}
	return nil
}

func editTarget(u Update) int64 {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.MessageID
	case u.Message != nil:
		return u.Message.MessageID
	}
	return 0
}

func (d *Dispatcher) replyFallback(ctx context.Context, u Update) {
	if d.fallback == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	d.gateway.SendText(ctx, u.ChatID(), d.fallback, SendOptions{})
}
