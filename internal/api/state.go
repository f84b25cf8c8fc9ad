package api

import (
	"sync"

	"github.com/asynkron/protoactor-go/actor"
)

// runsCache maps a task id to the runner actor driving it.
type runsCache struct {
	mu  sync.RWMutex
	ids map[string]*actor.PID
}

func newRunsCache() *runsCache {
	return &runsCache{
		ids: map[string]*actor.PID{},
	}
}

func (s *runsCache) remove(id string) (*actor.PID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.ids[id]
	delete(s.ids, id)
	return pid, ok
}

func (s *runsCache) add(id string, pid *actor.PID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = pid
}

func (s *runsCache) get(id string) (*actor.PID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.ids[id]
	return pid, ok
}

func (s *runsCache) all() []*actor.PID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*actor.PID, 0, len(s.ids))
	for _, pid := range s.ids {
		out = append(out, pid)
	}
	return out
}
