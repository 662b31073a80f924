// Package pubsub keeps per-topic lists of single-use waiters. A publish wakes
// every waiter registered on the topic at that moment with the published
// record and empties the list; nothing is buffered or replayed.
package pubsub

import (
	"context"
	"errors"
	"sync"
)

// AnyChannel is the topic for channel-creation events.
const AnyChannel = "*"

var ErrClosed = errors.New("pubsub: registry closed")

type Registry[T any] struct {
	mu      sync.Mutex
	waiters map[string][]*Waiter[T]
	closed  bool

	// OnChange, when set, receives the change in the total number of
	// registered waiters. Called with the registry lock held.
	OnChange func(delta int)
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{waiters: make(map[string][]*Waiter[T])}
}

// Waiter receives at most one record.
type Waiter[T any] struct {
	registry *Registry[T]
	topic    string
	ch       chan T
	done     chan struct{}
}

// Subscribe registers a waiter on topic. On a closed registry the waiter is
// returned already failed.
func (r *Registry[T]) Subscribe(topic string) *Waiter[T] {
	w := &Waiter[T]{
		registry: r,
		topic:    topic,
		ch:       make(chan T, 1),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(w.done)
		return w
	}
	r.waiters[topic] = append(r.waiters[topic], w)
	r.changed(1)
	return w
}

// Publish hands record to every waiter currently on topic and clears the
// topic. It returns the number of waiters woken.
func (r *Registry[T]) Publish(topic string, record T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiters := r.waiters[topic]
	if len(waiters) == 0 {
		return 0
	}
	delete(r.waiters, topic)
	for _, w := range waiters {
		// Buffered with capacity one and each waiter is removed before it is
		// sent to, so this never blocks.
		w.ch <- record
	}
	r.changed(-len(waiters))
	return len(waiters)
}

// Len reports how many waiters are registered on topic.
func (r *Registry[T]) Len(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[topic])
}

// Close fails every pending and future waiter with ErrClosed.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for topic, waiters := range r.waiters {
		for _, w := range waiters {
			close(w.done)
		}
		delete(r.waiters, topic)
		r.changed(-len(waiters))
	}
}

// Wait blocks until a record is published on the waiter's topic, ctx ends or
// the registry closes. A cancelled waiter is unregistered.
func (w *Waiter[T]) Wait(ctx context.Context) (T, error) {
	select {
	case rec := <-w.ch:
		return rec, nil
	case <-w.done:
		var zero T
		return zero, ErrClosed
	case <-ctx.Done():
		if rec, ok := w.registry.remove(w); !ok {
			// Lost the race with Publish; the record is already ours.
			return rec, nil
		}
		var zero T
		return zero, ctx.Err()
	}
}

// remove unregisters w. It reports false, together with the delivered record,
// when a publish already took the waiter off its topic.
func (r *Registry[T]) remove(w *Waiter[T]) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiters := r.waiters[w.topic]
	for i, candidate := range waiters {
		if candidate != w {
			continue
		}
		waiters = append(waiters[:i:i], waiters[i+1:]...)
		if len(waiters) == 0 {
			delete(r.waiters, w.topic)
		} else {
			r.waiters[w.topic] = waiters
		}
		r.changed(-1)
		var zero T
		return zero, true
	}

	select {
	case rec := <-w.ch:
		return rec, false
	default:
		// Closed registry.
		var zero T
		return zero, true
	}
}

func (r *Registry[T]) changed(delta int) {
	if r.OnChange != nil {
		r.OnChange(delta)
	}
}
