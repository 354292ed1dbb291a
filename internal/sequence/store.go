package sequence

import (
	"sync"

	"github.com/ronappleton/caseflow/internal/faults"
)

type Store interface {
	Create(seq Sequence) (Sequence, error)
	Get(tenantID, id string) (Sequence, error)
	Update(seq Sequence) error
	ActiveByCase(tenantID, caseID string) (Sequence, error)
	ListActive() ([]Sequence, error)
}

type MemoryStore struct {
	mu        sync.RWMutex
	sequences map[string]Sequence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sequences: map[string]Sequence{}}
}

func (s *MemoryStore) Create(seq Sequence) (Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[seq.ID] = seq
	return seq, nil
}

func (s *MemoryStore) Get(tenantID, id string) (Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.sequences[id]
	if !ok || seq.TenantID != tenantID {
		return Sequence{}, faults.NotFound("sequence %s", id)
	}
	return seq, nil
}

func (s *MemoryStore) Update(seq Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[seq.ID]; !ok {
		return faults.NotFound("sequence %s", seq.ID)
	}
	s.sequences[seq.ID] = seq
	return nil
}

func (s *MemoryStore) ActiveByCase(tenantID, caseID string) (Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seq := range s.sequences {
		if seq.TenantID == tenantID && seq.CaseID == caseID && seq.Status == StatusActive {
			return seq, nil
		}
	}
	return Sequence{}, faults.NotFound("no active sequence for case %s", caseID)
}

func (s *MemoryStore) ListActive() ([]Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Sequence
	for _, seq := range s.sequences {
		if seq.Status == StatusActive {
			out = append(out, seq)
		}
	}
	return out, nil
}
