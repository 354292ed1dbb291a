package approval

import (
	"sort"
	"sync"

	"github.com/ronappleton/caseflow/internal/faults"
)

type Store interface {
	CreateBatch(workflows []Workflow) ([]Workflow, error)
	Get(tenantID, id string) (Workflow, error)
	Update(w Workflow) error
	ListByCase(tenantID, caseID string) ([]Workflow, error)
	ListPending(tenantID, approverID string) ([]Workflow, error)
	AppendHistory(h History) error
	ListHistoryByCase(tenantID, caseID string) ([]History, error)
}

type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
	history   []History
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: map[string]Workflow{}}
}

func (s *MemoryStore) CreateBatch(workflows []Workflow) ([]Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range workflows {
		s.workflows[w.ID] = w
	}
	return workflows, nil
}

func (s *MemoryStore) Get(tenantID, id string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok || w.TenantID != tenantID {
		return Workflow{}, faults.NotFound("approval workflow %s", id)
	}
	return w, nil
}

func (s *MemoryStore) Update(w Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; !ok {
		return faults.NotFound("approval workflow %s", w.ID)
	}
	s.workflows[w.ID] = w
	return nil
}

func (s *MemoryStore) ListByCase(tenantID, caseID string) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.TenantID == tenantID && w.CaseID == caseID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) ListPending(tenantID, approverID string) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.TenantID == tenantID && w.ApproverID == approverID && w.Status == StatusPending {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *MemoryStore) AppendHistory(h History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, h)
	return nil
}

func (s *MemoryStore) ListHistoryByCase(tenantID, caseID string) ([]History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := map[string]bool{}
	for _, w := range s.workflows {
		if w.TenantID == tenantID && w.CaseID == caseID {
			ids[w.ID] = true
		}
	}
	var out []History
	for _, h := range s.history {
		if ids[h.WorkflowID] {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PerformedAt.Before(out[j].PerformedAt) })
	return out, nil
}
