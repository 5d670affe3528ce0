package events

import (
	"log/slog"
	"sync"
)

// Handler consumes events delivered by the Bus.
type Handler func(Event)

// Bus is the in-process dispatcher behind every engine's emitter. Emit
// delivers the event synchronously on the calling goroutine, in subscription
// order, kind-scoped subscribers before catch-all subscribers. Engines emit
// only after their state mutations commit and their locks are released, so a
// slow subscriber delays the caller but can never block an engine lock. A
// panicking subscriber is recovered and logged; the remaining subscribers
// still observe the event.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	all    []subscription
	logger *slog.Logger
}

type subscription struct {
	id uint64
	fn Handler
}

// BusOption customises Bus construction.
type BusOption func(*Bus)

// WithLogger overrides the logger used to report recovered subscriber panics.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus constructs an empty dispatcher.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[string][]subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Emitter = (*Bus)(nil)

// Subscribe registers fn for a single event kind and returns a token that
// cancels the registration when passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, fn Handler) uint64 {
	if b == nil || fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// SubscribeAll registers fn for every event kind.
func (b *Bus) SubscribeAll(fn Handler) uint64 {
	if b == nil || fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.all = append(b.all, subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe cancels a registration. Unknown tokens are ignored.
func (b *Bus) Unsubscribe(token uint64) {
	if b == nil || token == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, subs := range b.subs {
		b.subs[kind] = removeSubscription(subs, token)
	}
	b.all = removeSubscription(b.all, token)
}

func removeSubscription(subs []subscription, token uint64) []subscription {
	for i, sub := range subs {
		if sub.id == token {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	matched := append([]subscription(nil), b.subs[evt.EventType()]...)
	global := append([]subscription(nil), b.all...)
	b.mu.RUnlock()
	for _, sub := range matched {
		b.dispatch(sub, evt)
	}
	for _, sub := range global {
		b.dispatch(sub, evt)
	}
}

func (b *Bus) dispatch(sub subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"eventType", evt.EventType(),
				"panic", r,
			)
		}
	}()
	sub.fn(evt)
}
