package events

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store remembers which event ids have already been applied, so redelivered
// webhooks do not double-apply their effects.
type Store interface {
	Seen(tenantID, eventID string) (bool, error)
	Mark(tenantID, eventID string) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]struct{}{}}
}

func (s *MemoryStore) Seen(tenantID, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[tenantID+"/"+eventID]
	return ok, nil
}

func (s *MemoryStore) Mark(tenantID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[tenantID+"/"+eventID] = struct{}{}
	return nil
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &PGStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists caseflow_event_keys (
  tenant_id text not null,
  event_id text not null,
  seen_at timestamptz not null,
  primary key (tenant_id, event_id)
);
`)
	return err
}

func (s *PGStore) Seen(tenantID, eventID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`select count(*) from caseflow_event_keys where tenant_id=$1 and event_id=$2`,
		tenantID, eventID).Scan(&n)
	return n > 0, err
}

func (s *PGStore) Mark(tenantID, eventID string) error {
	_, err := s.db.Exec(`insert into caseflow_event_keys (tenant_id, event_id, seen_at)
values ($1,$2,$3) on conflict do nothing`, tenantID, eventID, time.Now().UTC())
	return err
}
