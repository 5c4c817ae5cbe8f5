package core

import (
	"maps"
	"sync"
)

// StateMap is the key/value store shared by every context derived from the
// same root. The mutex only guards map memory safety; the semantics remain
// deliberately last-write-wins with no cross-key coordination. Concurrent
// branches that need deterministic output must namespace their keys rather
// than rely on locking.
type StateMap struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewStateMap creates an empty StateMap.
func NewStateMap() *StateMap {
	return &StateMap{m: map[string]any{}}
}

// Get returns the value stored under k and whether it was present.
func (s *StateMap) Get(k string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[k]

	return v, ok
}

// Set stores v under k, replacing any previous value.
func (s *StateMap) Set(k string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[k] = v
}

// Delete removes k.
func (s *StateMap) Delete(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, k)
}

// Len returns the number of stored keys.
func (s *StateMap) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.m)
}

// Snapshot returns a shallow copy of the current contents. The copy is
// point-in-time; concurrent writers may race past it.
func (s *StateMap) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.m))
	maps.Copy(out, s.m)

	return out
}
