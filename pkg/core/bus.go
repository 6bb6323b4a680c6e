package core

import "sync"

// Bus is a non-blocking broadcast event stream shared by the scheduler,
// submission engine, and poller.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving events. Call Unsubscribe when done
// to prevent resource leaks.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Subscribe. The
// channel is not closed; callers must stop reading before unsubscribing.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit broadcasts an event to all subscribers without blocking.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	subs := make([]chan Event, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop rather than block on a slow consumer.
		}
	}
}
