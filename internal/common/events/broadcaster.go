// Package events provides in-process change notification.
package events

import (
	"sort"
	"sync"
)

// Broadcaster fans a value out to subscribers in subscription order.
// The zero value is ready to use.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	listeners map[int]func(T)
	next      int
}

// Subscribe registers fn and returns the function that removes it. The
// returned function is safe to call more than once.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[int]func(T))
	}
	id := b.next
	b.next++
	b.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
		})
	}
}

// Publish calls every listener with v. Listeners run on the caller's
// goroutine without the broadcaster lock held, so they may subscribe,
// unsubscribe or call back into the publisher.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
