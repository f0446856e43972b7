package event

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler handles a published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

const wildcard = "*"

// Bus is a synchronous pub-sub event bus. Handlers run on the publishing
// goroutine, so they must not block. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID atomic.Uint64

	// OnPanic is called when a handler panics. Defaults to a stderr report.
	OnPanic func(eventType string, recovered any, stack []byte)
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for one event type and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) uint64 {
	id := b.nextID.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) uint64 {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription. It reports whether id was found.
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == id {
				b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish delivers e to type-specific handlers, then wildcard handlers, each
// in registration order. A panicking handler does not stop delivery.
// Publishing on a nil Bus is a no-op.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	specific := append([]subscription(nil), b.subs[e.EventType()]...)
	all := append([]subscription(nil), b.subs[wildcard]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.call(sub.handler, e)
	}
	for _, sub := range all {
		b.call(sub.handler, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.OnPanic != nil {
				b.OnPanic(e.EventType(), r, debug.Stack())
				return
			}
			fmt.Fprintf(os.Stderr, "event handler panicked for %s: %v\n%s", e.EventType(), r, debug.Stack())
		}
	}()
	h(e)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
