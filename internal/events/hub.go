// Package events fans tick results out to live watchers.
package events

import (
	"sync"

	"github.com/backscale/backscale/pkg/scaling"
)

const subscriberBuffer = 64

// Hub delivers every published tick result to all current subscribers.
// Publishing never blocks: a subscriber that stops draining its channel
// drops results instead of stalling the reconciliation loop.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan scaling.TickResult
	nextID int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan scaling.TickResult)}
}

// Subscribe registers a watcher and returns its channel plus a cancel
// function. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan scaling.TickResult, func()) {
	ch := make(chan scaling.TickResult, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Close under the same lock Publish sends under, so a concurrent
			// publish can never hit a closed channel.
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers res to every subscriber without blocking. Sends happen
// under the lock; they are non-blocking, so the lock is never held up by a
// slow subscriber.
func (h *Hub) Publish(res scaling.TickResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- res:
		default:
			// Subscriber is not draining; drop rather than block the loop.
		}
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
