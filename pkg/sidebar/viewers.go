package sidebar

import (
	"sync"

	"github.com/google/uuid"
)

// viewerSet is a concurrency-safe membership set. Title ticks, periodic
// refreshes, and attach/detach calls all race on it, so every operation
// takes the lock and iteration happens over snapshots only.
type viewerSet struct {
	mu      sync.RWMutex
	members map[uuid.UUID]struct{}
}

func newViewerSet() *viewerSet {
	return &viewerSet{members: make(map[uuid.UUID]struct{})}
}

// Add inserts id and reports whether it was absent. This is the
// linearization point for idempotent attach.
func (s *viewerSet) Add(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; ok {
		return false
	}
	s.members[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s *viewerSet) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false
	}
	delete(s.members, id)
	return true
}

func (s *viewerSet) Contains(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id]
	return ok
}

func (s *viewerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Snapshot returns the current membership. Order carries no meaning.
func (s *viewerSet) Snapshot() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	return out
}

// Prune drops every member for which resolve returns false and reports how
// many were dropped. Best effort: a viewer can still vanish between prune
// and send.
func (s *viewerSet) Prune(resolve func(uuid.UUID) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id := range s.members {
		if !resolve(id) {
			delete(s.members, id)
			dropped++
		}
	}
	return dropped
}
