package workflow

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
create table if not exists caseflow_workflow_states (
  id text primary key,
  tenant_id text not null,
  case_id text not null,
  is_current boolean not null,
  sequence int not null,
  payload jsonb not null
);
create index if not exists caseflow_workflow_states_case on caseflow_workflow_states (tenant_id, case_id);
create index if not exists caseflow_workflow_states_current on caseflow_workflow_states (is_current) where is_current;
create table if not exists caseflow_workflow_transitions (
  id text primary key,
  tenant_id text not null,
  from_state text not null,
  kind text not null,
  enabled boolean not null,
  priority int not null,
  payload jsonb not null
);
create index if not exists caseflow_workflow_transitions_from on caseflow_workflow_transitions (tenant_id, from_state);
`)
	return err
}

func (s *PGStore) CreateState(st State) (State, error) {
	b, _ := json.Marshal(st)
	_, err := s.db.Exec(`insert into caseflow_workflow_states (id, tenant_id, case_id, is_current, sequence, payload)
values ($1,$2,$3,$4,$5,$6)`, st.ID, st.TenantID, st.CaseID, st.IsCurrent, st.Sequence, b)
	return st, err
}

func (s *PGStore) UpdateState(st State) error {
	b, _ := json.Marshal(st)
	res, err := s.db.Exec(`update caseflow_workflow_states set is_current=$2, payload=$3 where id=$1`,
		st.ID, st.IsCurrent, b)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NotFound("workflow state %s", st.ID)
	}
	return nil
}

func (s *PGStore) CurrentState(tenantID, caseID string) (State, error) {
	var raw []byte
	err := s.db.QueryRow(`select payload from caseflow_workflow_states
where tenant_id=$1 and case_id=$2 and is_current`, tenantID, caseID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, faults.NotFound("current state for case %s", caseID)
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *PGStore) ListStates(tenantID, caseID string) ([]State, error) {
	rows, err := s.db.Query(`select payload from caseflow_workflow_states
where tenant_id=$1 and case_id=$2 order by sequence asc`, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStates(rows)
}

func (s *PGStore) ListCurrent() ([]State, error) {
	rows, err := s.db.Query(`select payload from caseflow_workflow_states where is_current order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStates(rows)
}

func (s *PGStore) CreateTransition(t Transition) (Transition, error) {
	b, _ := json.Marshal(t)
	_, err := s.db.Exec(`insert into caseflow_workflow_transitions (id, tenant_id, from_state, kind, enabled, priority, payload)
values ($1,$2,$3,$4,$5,$6,$7)
on conflict (id) do update set from_state = excluded.from_state, kind = excluded.kind,
  enabled = excluded.enabled, priority = excluded.priority, payload = excluded.payload`,
		t.ID, t.TenantID, t.From, t.Kind, t.Enabled, t.Priority, b)
	return t, err
}

func (s *PGStore) GetTransition(tenantID, id string) (Transition, error) {
	var raw []byte
	err := s.db.QueryRow(`select payload from caseflow_workflow_transitions where id=$1 and tenant_id=$2`, id, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transition{}, faults.NotFound("transition %s", id)
		}
		return Transition{}, err
	}
	var t Transition
	if err := json.Unmarshal(raw, &t); err != nil {
		return Transition{}, err
	}
	return t, nil
}

func (s *PGStore) ListTransitionsFrom(tenantID, from string, kind TransitionKind) ([]Transition, error) {
	query := `select payload from caseflow_workflow_transitions
where tenant_id=$1 and from_state=$2 and enabled`
	args := []any{tenantID, from}
	if kind != "" {
		query += ` and kind=$3`
		args = append(args, kind)
	}
	query += ` order by priority desc, id asc`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var t Transition
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanStates(rows *sql.Rows) ([]State, error) {
	var out []State
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
