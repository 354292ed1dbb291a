package workflow

import (
	"sort"
	"sync"

	"github.com/ronappleton/caseflow/internal/faults"
)

type Store interface {
	CreateState(s State) (State, error)
	UpdateState(s State) error
	CurrentState(tenantID, caseID string) (State, error)
	ListStates(tenantID, caseID string) ([]State, error)
	// ListCurrent returns every current state across tenants, for the sweep.
	ListCurrent() ([]State, error)

	CreateTransition(t Transition) (Transition, error)
	GetTransition(tenantID, id string) (Transition, error)
	// ListTransitionsFrom returns enabled transitions out of a state name,
	// ordered by descending priority. kind empty matches all kinds.
	ListTransitionsFrom(tenantID, from string, kind TransitionKind) ([]Transition, error)
}

type MemoryStore struct {
	mu          sync.RWMutex
	states      map[string]State
	transitions map[string]Transition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      map[string]State{},
		transitions: map[string]Transition{},
	}
}

func (s *MemoryStore) CreateState(st State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID] = st
	return st, nil
}

func (s *MemoryStore) UpdateState(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[st.ID]; !ok {
		return faults.NotFound("workflow state %s", st.ID)
	}
	s.states[st.ID] = st
	return nil
}

func (s *MemoryStore) CurrentState(tenantID, caseID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.states {
		if st.TenantID == tenantID && st.CaseID == caseID && st.IsCurrent {
			return st, nil
		}
	}
	return State{}, faults.NotFound("current state for case %s", caseID)
}

func (s *MemoryStore) ListStates(tenantID, caseID string) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []State
	for _, st := range s.states {
		if st.TenantID == tenantID && st.CaseID == caseID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) ListCurrent() ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []State
	for _, st := range s.states {
		if st.IsCurrent {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateTransition(t Transition) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[t.ID] = t
	return t, nil
}

func (s *MemoryStore) GetTransition(tenantID, id string) (Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transitions[id]
	if !ok || t.TenantID != tenantID {
		return Transition{}, faults.NotFound("transition %s", id)
	}
	return t, nil
}

func (s *MemoryStore) ListTransitionsFrom(tenantID, from string, kind TransitionKind) ([]Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transition
	for _, t := range s.transitions {
		if t.TenantID != tenantID || t.From != from || !t.Enabled {
			continue
		}
		if kind != "" && t.Kind != kind {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
