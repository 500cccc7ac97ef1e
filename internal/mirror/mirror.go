// Package mirror maintains the bidirectional source-pane -> mirror-pane
// relationship described in spec.md §4.11. Mirrors never own a PTY;
// they are pure subscribers to another pane's Output stream.
package mirror

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the bidirectional mirror map, guarded by one mutex since
// both directions must be updated together to preserve spec.md §3
// invariant 7 (the two maps always describe the same relation).
type Registry struct {
	mu        sync.RWMutex
	mirrors   map[uuid.UUID]map[uuid.UUID]struct{} // source -> set of mirrors
	sourceOf  map[uuid.UUID]uuid.UUID              // mirror -> source
}

// New returns an empty mirror registry.
func New() *Registry {
	return &Registry{
		mirrors:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		sourceOf: make(map[uuid.UUID]uuid.UUID),
	}
}

// Register makes mirrorID a mirror of sourceID. It returns false
// without changing anything if mirrorID is already registered as a
// mirror of any source.
func (r *Registry) Register(sourceID, mirrorID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sourceOf[mirrorID]; exists {
		return false
	}

	if r.mirrors[sourceID] == nil {
		r.mirrors[sourceID] = make(map[uuid.UUID]struct{})
	}
	r.mirrors[sourceID][mirrorID] = struct{}{}
	r.sourceOf[mirrorID] = sourceID
	return true
}

// Unregister removes mirrorID from both maps.
func (r *Registry) Unregister(mirrorID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sourceID, ok := r.sourceOf[mirrorID]
	if !ok {
		return
	}
	delete(r.sourceOf, mirrorID)
	if set, ok := r.mirrors[sourceID]; ok {
		delete(set, mirrorID)
		if len(set) == 0 {
			delete(r.mirrors, sourceID)
		}
	}
}

// HasMirrors reports whether sourceID currently has any mirror panes
// following it, per spec.md §4.4 step 8.
func (r *Registry) HasMirrors(sourceID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mirrors[sourceID]) > 0
}

// MirrorsOf returns the set of mirror pane IDs currently following
// sourceID.
func (r *Registry) MirrorsOf(sourceID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.mirrors[sourceID]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// SourceOf returns the source pane ID mirrorID is following, if any.
func (r *Registry) SourceOf(mirrorID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sourceOf[mirrorID]
	return id, ok
}

// CloseSource removes sourceID and every one of its mirrors from the
// registry, returning the orphaned mirror IDs so a handler can notify
// and close them, per spec.md §4.11.
func (r *Registry) CloseSource(sourceID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.mirrors[sourceID]
	if !ok {
		return nil
	}
	orphans := make([]uuid.UUID, 0, len(set))
	for id := range set {
		orphans = append(orphans, id)
		delete(r.sourceOf, id)
	}
	delete(r.mirrors, sourceID)
	return orphans
}
