package cases

import (
	"fmt"
	"sync"
	"time"

	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/ids"
)

type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]Case
	seq   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: map[string]Case{}}
}

func (s *MemoryStore) Create(c Case) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New("case")
	}
	if c.CaseNumber == "" {
		s.seq++
		c.CaseNumber = fmt.Sprintf("COL-%s-%04d", time.Now().UTC().Format("200601"), s.seq)
	}
	if c.Status == "" {
		c.Status = StatusOpen
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.cases[key(c.TenantID, c.ID)] = c
	return c, nil
}

func (s *MemoryStore) Get(tenantID, caseID string) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[key(tenantID, caseID)]
	if !ok {
		return Case{}, faults.NotFound("case %s", caseID)
	}
	return c, nil
}

func (s *MemoryStore) Save(c Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[key(c.TenantID, c.ID)]; !ok {
		return faults.NotFound("case %s", c.ID)
	}
	c.UpdatedAt = time.Now().UTC()
	s.cases[key(c.TenantID, c.ID)] = c
	return nil
}

func (s *MemoryStore) UpdateStatus(tenantID, caseID string, status Status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[key(tenantID, caseID)]
	if !ok {
		return faults.NotFound("case %s", caseID)
	}
	c.Status = status
	if note != "" {
		if c.Notes != "" {
			c.Notes += "\n"
		}
		c.Notes += note
	}
	now := time.Now().UTC()
	c.UpdatedAt = now
	if status == StatusClosed || status == StatusPaid {
		c.ClosedAt = &now
	}
	s.cases[key(tenantID, caseID)] = c
	return nil
}

func key(tenantID, caseID string) string {
	return tenantID + "/" + caseID
}
