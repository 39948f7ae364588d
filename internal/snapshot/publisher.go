// Package snapshot publishes immutable copies of store state to subscribers.
package snapshot

import (
	"log/slog"
	"slices"
	"sync"
)

// Subscriber receives every snapshot published after it subscribed
type Subscriber[T any] func(T)

// Publisher keeps the latest snapshot of a store and fans it out. Stores
// call Publish after releasing their own lock, so subscribers may read back
// into the store. Each snapshot carries the store revision it was built at;
// Current and the subscribers only ever move forward in revision.
type Publisher[T any] struct {
	// delivery serializes Publish so subscribers see revisions in order.
	// A subscriber must not publish to the same Publisher.
	delivery sync.Mutex
	mu       sync.RWMutex
	current  T
	revision uint64
	nextID   int
	subs     map[int]Subscriber[T]
	logger   *slog.Logger
}

// NewPublisher creates a publisher seeded with initial
func NewPublisher[T any](initial T, logger *slog.Logger) *Publisher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher[T]{
		current: initial,
		subs:    make(map[int]Subscriber[T]),
		logger:  logger,
	}
}

// Current returns the latest snapshot
func (p *Publisher[T]) Current() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe registers fn and returns a function that removes it
func (p *Publisher[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Publish stores snap, built at store revision rev, as current and delivers
// it to all subscribers in registration order. A snapshot whose revision is
// not newer than the current one is dropped and Publish reports false. A
// panicking subscriber is logged and skipped.
func (p *Publisher[T]) Publish(rev uint64, snap T) bool {
	p.delivery.Lock()
	defer p.delivery.Unlock()

	p.mu.Lock()
	if rev <= p.revision {
		p.mu.Unlock()
		return false
	}
	p.revision = rev
	p.current = snap
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	fns := make([]Subscriber[T], 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		p.deliver(fn, snap)
	}
	return true
}

func (p *Publisher[T]) deliver(fn Subscriber[T], snap T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("snapshot subscriber panicked", slog.Any("panic", r))
		}
	}()
	fn(snap)
}

// Revision returns the store revision of the current snapshot
func (p *Publisher[T]) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revision
}

// Subscribers returns the number of registered subscribers
func (p *Publisher[T]) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
