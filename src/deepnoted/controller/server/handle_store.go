package server

import (
	"sync"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
)

// handleStore keeps the live process handles, which stay private to this
// controller; the repository only tracks the serializable facts.
type handleStore struct {
	mu      sync.Mutex
	handles map[string]executor.Handle
}

func newHandleStore() *handleStore {
	return &handleStore{handles: make(map[string]executor.Handle)}
}

func (s *handleStore) set(environmentID string, h executor.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handles[environmentID] = h
}

// take removes and returns the handle for the environment.
func (s *handleStore) take(environmentID string) (executor.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[environmentID]
	if ok {
		delete(s.handles, environmentID)
	}
	return h, ok
}

func (s *handleStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handles = make(map[string]executor.Handle)
}
