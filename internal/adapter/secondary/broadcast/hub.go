package broadcast

import (
	"sync"

	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

// Hub logs lifecycle transitions and fans them out to subscribers.
// Slow subscribers miss events rather than blocking the controller.
type Hub struct {
	mu   sync.Mutex
	subs map[chan domain.LifecycleEvent]struct{}
	last domain.LifecycleEvent
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[chan domain.LifecycleEvent]struct{}{}}
}

func (h *Hub) Broadcast(event domain.LifecycleEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = event
	logging.Infof("service %s", event)
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of lifecycle events and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan domain.LifecycleEvent, func()) {
	ch := make(chan domain.LifecycleEvent, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Last returns the most recent event, or "" if none was broadcast.
func (h *Hub) Last() domain.LifecycleEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
