package storage

import (
	"sync"

	"github.com/corpcraft/swarmengine/pkg/errs"
	"github.com/corpcraft/swarmengine/pkg/types"
)

// MemStore is the default in-process Store. It is the backend the Event
// Bus uses when no durable option is configured.
type MemStore struct {
	mu        sync.RWMutex
	events    map[string]*types.Event
	dlq       []*types.DeadLetterEntry
	manifests map[string]*types.SkillManifest
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		events:    make(map[string]*types.Event),
		manifests: make(map[string]*types.SkillManifest),
	}
}

func (s *MemStore) PutEvent(e *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.EventID] = e.Clone()
	return nil
}

func (s *MemStore) GetEvent(id string) (*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemStore) ListEvents() ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *MemStore) PutDeadLetter(entry *types.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, entry)
	const maxDLQ = 1000
	if len(s.dlq) > maxDLQ {
		s.dlq = s.dlq[len(s.dlq)-maxDLQ:]
	}
	return nil
}

func (s *MemStore) ListDeadLetters() ([]*types.DeadLetterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.DeadLetterEntry, len(s.dlq))
	copy(out, s.dlq)
	return out, nil
}

func (s *MemStore) PutSkillManifest(m *types.SkillManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.manifests[m.SkillID] = &cp
	return nil
}

func (s *MemStore) GetSkillManifest(id string) (*types.SkillManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) ListSkillManifests() ([]*types.SkillManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.SkillManifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }
