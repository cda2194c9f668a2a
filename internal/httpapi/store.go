package httpapi

import (
	"sync"

	"github.com/joelkehle/inventavault/internal/pipeline"
)

type storedRun struct {
	run  pipeline.Run
	busy bool
}

// RunStore keeps session runs in memory. A run being advanced is checked out
// and cannot be touched by another request until it is checked back in.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*storedRun
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*storedRun)}
}

func (s *RunStore) Put(run pipeline.Run) {
	s.mu.Lock()
	s.runs[run.ID] = &storedRun{run: run}
	s.mu.Unlock()
}

func (s *RunStore) Get(id string) (pipeline.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.runs[id]
	if !ok {
		return pipeline.Run{}, false
	}
	return sr.run, true
}

// Checkout marks a run busy and returns it.
func (s *RunStore) Checkout(id string) (pipeline.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.runs[id]
	if !ok {
		return pipeline.Run{}, errNotFound("run not found")
	}
	if sr.busy {
		return pipeline.Run{}, errConflict("run is busy")
	}
	sr.busy = true
	return sr.run, nil
}

// Checkin stores the result of a checked-out run. A run deleted meanwhile
// stays deleted.
func (s *RunStore) Checkin(run pipeline.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.runs[run.ID]; ok {
		sr.run = run
		sr.busy = false
	}
}

func (s *RunStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.runs[id]
	if !ok {
		return errNotFound("run not found")
	}
	if sr.busy {
		return errConflict("run is busy")
	}
	delete(s.runs, id)
	return nil
}

func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
