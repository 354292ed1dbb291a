package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ronappleton/caseflow/internal/faults"
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
create table if not exists caseflow_approval_workflows (
  id text primary key,
  tenant_id text not null,
  case_id text not null,
  approver_id text not null,
  status text not null,
  sequence int not null,
  requested_at timestamptz not null,
  payload jsonb not null
);
create index if not exists caseflow_approval_workflows_case on caseflow_approval_workflows (tenant_id, case_id);
create index if not exists caseflow_approval_workflows_approver on caseflow_approval_workflows (tenant_id, approver_id, status);
create table if not exists caseflow_approval_history (
  id text primary key,
  tenant_id text not null,
  workflow_id text not null,
  performed_at timestamptz not null,
  payload jsonb not null
);
create index if not exists caseflow_approval_history_workflow on caseflow_approval_history (workflow_id);
`)
	return err
}

func (s *PGStore) CreateBatch(workflows []Workflow) ([]Workflow, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range workflows {
		b, _ := json.Marshal(w)
		if _, err := tx.Exec(`insert into caseflow_approval_workflows
(id, tenant_id, case_id, approver_id, status, sequence, requested_at, payload)
values ($1,$2,$3,$4,$5,$6,$7,$8)`,
			w.ID, w.TenantID, w.CaseID, w.ApproverID, w.Status, w.Sequence, w.RequestedAt, b); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (s *PGStore) Get(tenantID, id string) (Workflow, error) {
	var raw []byte
	err := s.db.QueryRow(`select payload from caseflow_approval_workflows where id=$1 and tenant_id=$2`, id, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, faults.NotFound("approval workflow %s", id)
		}
		return Workflow{}, err
	}
	var w Workflow
	if err := json.Unmarshal(raw, &w); err != nil {
		return Workflow{}, err
	}
	return w, nil
}

func (s *PGStore) Update(w Workflow) error {
	b, _ := json.Marshal(w)
	res, err := s.db.Exec(`update caseflow_approval_workflows
set approver_id=$2, status=$3, payload=$4 where id=$1`, w.ID, w.ApproverID, w.Status, b)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NotFound("approval workflow %s", w.ID)
	}
	return nil
}

func (s *PGStore) ListByCase(tenantID, caseID string) ([]Workflow, error) {
	rows, err := s.db.Query(`select payload from caseflow_approval_workflows
where tenant_id=$1 and case_id=$2 order by sequence asc`, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

func (s *PGStore) ListPending(tenantID, approverID string) ([]Workflow, error) {
	rows, err := s.db.Query(`select payload from caseflow_approval_workflows
where tenant_id=$1 and approver_id=$2 and status=$3 order by requested_at asc`,
		tenantID, approverID, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

func (s *PGStore) AppendHistory(h History) error {
	b, _ := json.Marshal(h)
	_, err := s.db.Exec(`insert into caseflow_approval_history (id, tenant_id, workflow_id, performed_at, payload)
values ($1,$2,$3,$4,$5)`, h.ID, h.TenantID, h.WorkflowID, h.PerformedAt, b)
	return err
}

func (s *PGStore) ListHistoryByCase(tenantID, caseID string) ([]History, error) {
	rows, err := s.db.Query(`select h.payload from caseflow_approval_history h
join caseflow_approval_workflows w on w.id = h.workflow_id
where w.tenant_id=$1 and w.case_id=$2 order by h.performed_at asc`, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []History
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var h History
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanWorkflows(rows *sql.Rows) ([]Workflow, error) {
	var out []Workflow
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var w Workflow
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
