// Package realtime fans out search progress events to in-process listeners
// such as WebSocket sessions.
//
// Delivery is best effort: a listener whose buffer is full misses the event
// rather than stalling the search that produced it. Nothing is persisted or
// replayed.
package realtime

import (
	"sync"
	"time"

	"github.com/rubiojr/statsgrid/pkg/search"
)

// Event types carried by the hub besides search events.
const (
	TypeSearch    = "search"
	TypeHeartbeat = "heartbeat"
)

// InternalEvent is the hub envelope. Search is set when Type is "search".
type InternalEvent struct {
	Type   string        `json:"type"`
	Time   time.Time     `json:"time"`
	Search *search.Event `json:"search,omitempty"`
}

// Hub is an in-memory fan-out dispatcher. Each registered listener receives
// events on its own buffered channel. The hub is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan InternalEvent
	nextID    uint64
	bufSize   int
	dropped   uint64
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan InternalEvent),
		bufSize:   bufSize,
	}
}

// Register adds a new listener. Callers must Unregister the returned id.
func (h *Hub) Register() (uint64, <-chan InternalEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan InternalEvent, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers an event to all registered listeners.
// Accepted input types are InternalEvent and search.Event; anything else is
// ignored.
func (h *Hub) Broadcast(event any) {
	var ie InternalEvent
	switch v := event.(type) {
	case InternalEvent:
		ie = v
	case search.Event:
		ie = InternalEvent{Type: TypeSearch, Search: &v}
	default:
		return
	}
	if ie.Time.IsZero() {
		ie.Time = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ie:
		default:
			h.dropped++
		}
	}
}

// SearchEvent implements search.Listener.
func (h *Hub) SearchEvent(e search.Event) {
	h.Broadcast(e)
}

// Size returns the current number of listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Dropped returns how many deliveries were skipped because a listener was
// full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
