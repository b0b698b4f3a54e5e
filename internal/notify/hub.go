// Package notify fans out transaction and batch events to per-identity observers.
package notify

import (
	"log"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/observability"
)

// Observer receives events for one identity.
// Send must not block; Hub calls it while holding its lock.
type Observer interface {
	Send(ev domain.Event) error
	Connected() bool
}

// Publisher is the producer side of the hub.
type Publisher interface {
	Publish(identity string, ev domain.Event)
}

// Hub is the observer registry. Registration, removal and fan-out are
// serialized by a single mutex, so an observer never sees an event after
// Unsubscribe returns.
type Hub struct {
	mu        sync.Mutex
	observers map[string]map[Observer]struct{}
	count     int
	logger    *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		observers: make(map[string]map[Observer]struct{}),
		logger:    logger,
	}
}

// Subscribe registers obs for events of identity.
func (h *Hub) Subscribe(identity string, obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.observers[identity]
	if !ok {
		set = make(map[Observer]struct{})
		h.observers[identity] = set
	}
	if _, exists := set[obs]; exists {
		return
	}
	set[obs] = struct{}{}
	h.count++
	observability.UpdateObservers(h.count)
}

// Unsubscribe removes obs from every identity it is registered for.
func (h *Hub) Unsubscribe(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for identity, set := range h.observers {
		if _, ok := set[obs]; ok {
			h.removeLocked(identity, obs)
		}
	}
}

// Publish delivers ev to every live observer of identity. Observers that
// report disconnected or fail Send are dropped. There is no replay.
func (h *Hub) Publish(identity string, ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	observability.RecordEventPublished(string(ev.Type))

	for obs := range h.observers[identity] {
		if !obs.Connected() {
			h.removeLocked(identity, obs)
			observability.RecordObserverDropped()
			continue
		}
		if err := obs.Send(ev); err != nil {
			h.logger.Printf("dropping observer of %s: %v", identity, err)
			h.removeLocked(identity, obs)
			observability.RecordObserverDropped()
		}
	}
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Hub) removeLocked(identity string, obs Observer) {
	set := h.observers[identity]
	delete(set, obs)
	if len(set) == 0 {
		delete(h.observers, identity)
	}
	h.count--
	observability.UpdateObservers(h.count)
}

var _ Publisher = (*Hub)(nil)
