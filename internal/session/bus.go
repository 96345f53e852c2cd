// ABOUTME: Synchronous event bus for session transitions
// ABOUTME: A single dispatch loop delivers events in emission order

package session

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

type subscriber struct {
	fn     func(Event)
	active atomic.Bool
}

// bus queues events and delivers them from whichever goroutine is
// dispatching. Publishing from inside a handler enqueues; the running
// loop delivers it after the current event. Once unsubscribe returns the
// handler is never called again, even for the event being delivered when
// another handler removed it.
type bus struct {
	mu          sync.Mutex
	subs        []*subscriber
	queue       []Event
	dispatching bool
}

func (b *bus) subscribe(fn func(Event)) func() {
	s := &subscriber{fn: fn}
	s.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(x *subscriber) bool { return x == s })
			b.mu.Unlock()
		})
	}
}

// enqueue must be called while the publisher still holds the lock that
// orders its state transitions.
func (b *bus) enqueue(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
}

func (b *bus) dispatch() {
	b.mu.Lock()
	if b.dispatching {
		b.mu.Unlock()
		return
	}
	b.dispatching = true
	for len(b.queue) > 0 {
		ev := b.queue[0]
		b.queue = b.queue[1:]
		subs := slices.Clone(b.subs)
		b.mu.Unlock()

		for _, s := range subs {
			if s.active.Load() {
				deliver(s, ev)
			}
		}

		b.mu.Lock()
	}
	b.dispatching = false
	b.mu.Unlock()
}

func deliver(s *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Session subscriber panicked", "event", ev.Type, "panic", r)
		}
	}()
	s.fn(ev)
}
