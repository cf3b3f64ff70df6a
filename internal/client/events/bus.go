// Package events carries application-wide notifications out of the client
// runtime: the session-expired signal and user-facing alerts.
//
// A Bus is typed by its payload, so a subscriber to Bus[SessionExpired] can
// only ever receive session-expiry events. Publish is synchronous; handlers
// run on the publishing goroutine in subscription order and must not block.
package events

import "sync"

// SessionExpired is published once per HTTP 401 seen by the gateway, after
// local session state has been cleared.
type SessionExpired struct {
	// RequestID correlates the event with the request that triggered it.
	RequestID string
	Path      string
}

// Alert is a generic user-facing error notice (a "toast").
type Alert struct {
	RequestID string
	Status    int
	Message   string
}

type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
	order  []uint64
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every current subscriber. A nil Bus drops events.
func (b *Bus[T]) Publish(ev T) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
