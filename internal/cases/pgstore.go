package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/ids"
)

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
create table if not exists caseflow_cases (
  id text primary key,
  tenant_id text not null,
  status text not null,
  payload jsonb not null,
  created_at timestamptz not null,
  updated_at timestamptz not null
);
create index if not exists caseflow_cases_tenant on caseflow_cases (tenant_id);
`)
	return err
}

func (s *PGStore) Create(c Case) (Case, error) {
	if c.ID == "" {
		c.ID = ids.New("case")
	}
	if c.CaseNumber == "" {
		c.CaseNumber = newCaseNumber(s, c.TenantID)
	}
	if c.Status == "" {
		c.Status = StatusOpen
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	b, _ := json.Marshal(c)
	_, err := s.db.Exec(`insert into caseflow_cases (id, tenant_id, status, payload, created_at, updated_at)
values ($1,$2,$3,$4,$5,$6)`, c.ID, c.TenantID, c.Status, b, c.CreatedAt, c.UpdatedAt)
	return c, err
}

func (s *PGStore) Get(tenantID, caseID string) (Case, error) {
	var raw []byte
	err := s.db.QueryRow(`select payload from caseflow_cases where id=$1 and tenant_id=$2`, caseID, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, faults.NotFound("case %s", caseID)
		}
		return Case{}, err
	}
	var c Case
	if err := json.Unmarshal(raw, &c); err != nil {
		return Case{}, err
	}
	return c, nil
}

func (s *PGStore) Save(c Case) error {
	c.UpdatedAt = time.Now().UTC()
	b, _ := json.Marshal(c)
	res, err := s.db.Exec(`update caseflow_cases set status=$3, payload=$4, updated_at=$5 where id=$1 and tenant_id=$2`,
		c.ID, c.TenantID, c.Status, b, c.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NotFound("case %s", c.ID)
	}
	return nil
}

func (s *PGStore) UpdateStatus(tenantID, caseID string, status Status, note string) error {
	c, err := s.Get(tenantID, caseID)
	if err != nil {
		return err
	}
	c.Status = status
	if note != "" {
		if c.Notes != "" {
			c.Notes += "\n"
		}
		c.Notes += note
	}
	now := time.Now().UTC()
	if status == StatusClosed || status == StatusPaid {
		c.ClosedAt = &now
	}
	return s.Save(c)
}

func newCaseNumber(s *PGStore, tenantID string) string {
	prefix := "COL-" + time.Now().UTC().Format("200601")
	var count int
	_ = s.db.QueryRow(`select count(*) from caseflow_cases where tenant_id=$1 and payload->>'case_number' like $2`,
		tenantID, prefix+"%").Scan(&count)
	return fmt.Sprintf("%s-%04d", prefix, count+1)
}
