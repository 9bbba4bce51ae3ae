package bus

import (
	"sync"
	"time"
)

// Update announces that a coordinator finished a refresh attempt. Consumers
// read the coordinator itself for the new state; the message only carries
// enough to log and route.
type Update struct {
	Hublot  string
	Success bool
	At      time.Time
}

// Bus provides fan-out pub/sub semantics for Update messages. Each Subscribe
// call gets its own channel that receives every future publication. Past
// messages are not replayed. The implementation is safe for concurrent
// publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Update
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a read-only channel that will receive all future updates.
func (b *Bus) Subscribe() <-chan Update {
	ch := make(chan Update, 1)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the update to all subscribers in a best-effort,
// non-blocking way. A subscriber whose buffer is full misses this update and
// gets the next one.
func (b *Bus) Publish(u Update) {
	b.mu.RLock()
	subs := make([]chan Update, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
	b.mu.Unlock()
}
