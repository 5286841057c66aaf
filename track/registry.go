package track

import "sync"

// Registry is the set of tracks a client currently knows.
//
// Any number of Snapshot calls run concurrently. Insert and RemoveWhere take
// the write lock only for the in-memory mutation. Predicates run under the
// lock and must not call back into the registry.
type Registry struct {
	mu     sync.RWMutex
	tracks []*Track
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert adds t.
func (r *Registry) Insert(t *Track) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
}

// InsertIfAbsent adds t unless a present track matches conflict.
// The check and the insert happen under one write lock.
func (r *Registry) InsertIfAbsent(t *Track, conflict Predicate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, x := range r.tracks {
		if conflict(x) {
			return false
		}
	}
	r.tracks = append(r.tracks, t)
	return true
}

// Snapshot returns the tracks matching pred at one instant.
func (r *Registry) Snapshot(pred Predicate) []*Track {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Track
	for _, t := range r.tracks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// RemoveWhere removes every track matching pred in one pass and returns them.
func (r *Registry) RemoveWhere(pred Predicate) []*Track {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Track
	survivors := make([]*Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		if pred(t) {
			removed = append(removed, t)
		} else {
			survivors = append(survivors, t)
		}
	}
	if len(removed) > 0 {
		r.tracks = survivors
	}
	return removed
}

// Contains reports whether t is present.
func (r *Registry) Contains(t *Track) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, x := range r.tracks {
		if x == t {
			return true
		}
	}
	return false
}

// Len returns the number of tracks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracks)
}
