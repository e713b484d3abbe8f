package realtime

import (
	"maps"
	"slices"
	"sync"

	"github.com/screenleads/backend/pkg/observability"
)

// Registry records the sessions subscribed to each destination.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
	subs  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// Subscribe adds sessionID to destination.
func (r *Registry) Subscribe(destination, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[destination]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[destination] = room
	}
	if _, dup := room[sessionID]; dup {
		return
	}
	room[sessionID] = struct{}{}
	r.subs++
	observability.RealtimeSubscriptions.Set(float64(r.subs))
}

// Unsubscribe removes sessionID from destination, dropping the
// destination once nobody listens on it.
func (r *Registry) Unsubscribe(destination, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(destination, sessionID)
	observability.RealtimeSubscriptions.Set(float64(r.subs))
}

// Disconnect removes sessionID from every destination.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for destination := range r.rooms {
		r.remove(destination, sessionID)
	}
	observability.RealtimeSubscriptions.Set(float64(r.subs))
}

func (r *Registry) remove(destination, sessionID string) {
	room, ok := r.rooms[destination]
	if !ok {
		return
	}
	if _, ok := room[sessionID]; ok {
		delete(room, sessionID)
		r.subs--
	}
	if len(room) == 0 {
		delete(r.rooms, destination)
	}
}

// Subscribers returns the sessions listening on destination.
func (r *Registry) Subscribers(destination string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.rooms[destination]))
}

// Counts returns the number of subscribers per destination.
func (r *Registry) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.rooms))
	for destination, room := range r.rooms {
		out[destination] = len(room)
	}
	return out
}
