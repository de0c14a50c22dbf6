package core

import "sync"

// Handler is a registered response for a trigger.
type Handler struct {
	Payload     Payload
	ParseMode   string
	ReplyMarkup Markup
	// Once removes the handler from the registry the first time it matches.
	Once bool

	seq uint64
}

// HandlerOption customizes a Handler at registration.
type HandlerOption func(*Handler)

// WithParseMode sets parse_mode (e.g. "HTML", "MarkdownV2"). Markup is passed
// through to the API verbatim.
func WithParseMode(mode string) HandlerOption {
	return func(h *Handler) { h.ParseMode = mode }
}

// WithMarkup attaches a keyboard to the reply.
func WithMarkup(m Markup) HandlerOption {
	return func(h *Handler) { h.ReplyMarkup = m }
}

// Once makes the handler deregister itself after its first match.
func Once() HandlerOption {
	return func(h *Handler) { h.Once = true }
}

// Registry maps triggers to handlers for one bot. Message triggers and
// callback data live in separate namespaces. It is safe for concurrent use;
// a registration racing a lookup resolves to either the old or new handler.
type Registry struct {
	mu        sync.RWMutex
	seq       uint64
	messages  map[Trigger]Handler
	callbacks map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		messages:  make(map[Trigger]Handler),
		callbacks: make(map[string]Handler),
	}
}

// When registers p for key, replacing any previous handler for it.
func (r *Registry) When(key Trigger, p Payload, opts ...HandlerOption) {
	r.WhenAny([]Trigger{key}, p, opts...)
}

// WhenAny registers the same handler under every key.
func (r *Registry) WhenAny(keys []Trigger, p Payload, opts ...HandlerOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.messages[k] = r.newHandlerLocked(p, opts)
	}
}

// OnCallback registers p for callback queries carrying data.
func (r *Registry) OnCallback(data string, p Payload, opts ...HandlerOption) {
	r.OnCallbacks([]string{data}, p, opts...)
}

// OnCallbacks registers the same callback handler under every data value.
func (r *Registry) OnCallbacks(data []string, p Payload, opts ...HandlerOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range data {
		r.callbacks[d] = r.newHandlerLocked(p, opts)
	}
}

func (r *Registry) newHandlerLocked(p Payload, opts []HandlerOption) Handler {
	h := Handler{Payload: p}
	for _, opt := range opts {
		opt(&h)
	}
	r.seq++
	h.seq = r.seq
	return h
}

// Binding is one handler registered under several triggers and callback
// data values.
type Binding struct {
	Triggers  []Trigger
	Callbacks []string
	Payload   Payload
	Options   []HandlerOption
}

// Rebind removes oldTriggers and oldCallbacks and registers binds under a
// single lock, so a concurrent Resolve sees either the old or the new set.
func (r *Registry) Rebind(oldTriggers []Trigger, oldCallbacks []string, binds []Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range oldTriggers {
		delete(r.messages, k)
	}
	for _, d := range oldCallbacks {
		delete(r.callbacks, d)
	}
	for _, b := range binds {
		for _, k := range b.Triggers {
			r.messages[k] = r.newHandlerLocked(b.Payload, b.Options)
		}
		for _, d := range b.Callbacks {
			r.callbacks[d] = r.newHandlerLocked(b.Payload, b.Options)
		}
	}
}

// Remove deletes the handler for key and reports whether one existed.
func (r *Registry) Remove(key Trigger) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.messages[key]
	delete(r.messages, key)
	return ok
}

// RemoveCallback deletes the callback handler for data.
func (r *Registry) RemoveCallback(data string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.callbacks[data]
	delete(r.callbacks, data)
	return ok
}

// Len returns the number of message and callback handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages) + len(r.callbacks)
}

// Resolve finds the handler for u. Callbacks match their data exactly.
// Messages with text match the exact trigger, then the wildcard; messages
// without text match their media kind only. A miss returns false.
func (r *Registry) Resolve(u Update) (Handler, bool) {
	if cq := u.CallbackQuery; cq != nil {
		return lookup(r, r.callbacks, cq.Data)
	}

	msg := u.Message
	switch {
	case msg == nil:
		return Handler{}, false
	case msg.Text != "":
		return lookup(r, r.messages, Exact(msg.Text), Wildcard)
	case msg.MediaKind() != MediaNone:
		return lookup(r, r.messages, OnMedia(msg.MediaKind()))
	}
	return Handler{}, false
}

// lookup returns the first handler found under keys. A one-shot handler is
// deleted before it is returned; if a concurrent lookup deleted or replaced
// it first, the lookup misses.
func lookup[K comparable](r *Registry, m map[K]Handler, keys ...K) (Handler, bool) {
	var (
		h     Handler
		key   K
		found bool
	)
	r.mu.RLock()
	for _, k := range keys {
		if h, found = m[k]; found {
			key = k
			break
		}
	}
	r.mu.RUnlock()

	if !found || !h.Once {
		return h, found
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := m[key]; !ok || cur.seq != h.seq {
		return Handler{}, false
	}
	delete(m, key)
	return h, true
}
