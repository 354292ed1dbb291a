package sequence

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
create table if not exists caseflow_sequences (
  id text primary key,
  tenant_id text not null,
  case_id text not null,
  status text not null,
  payload jsonb not null,
  started_at timestamptz not null
);
create index if not exists caseflow_sequences_case on caseflow_sequences (tenant_id, case_id);
create index if not exists caseflow_sequences_status on caseflow_sequences (status);
`)
	return err
}

func (s *PGStore) Create(seq Sequence) (Sequence, error) {
	b, _ := json.Marshal(seq)
	_, err := s.db.Exec(`insert into caseflow_sequences (id, tenant_id, case_id, status, payload, started_at)
values ($1,$2,$3,$4,$5,$6)`, seq.ID, seq.TenantID, seq.CaseID, seq.Status, b, seq.StartedAt)
	return seq, err
}

func (s *PGStore) Get(tenantID, id string) (Sequence, error) {
	var raw []byte
	err := s.db.QueryRow(`select payload from caseflow_sequences where id=$1 and tenant_id=$2`, id, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sequence{}, faults.NotFound("sequence %s", id)
		}
		return Sequence{}, err
	}
	return decode(raw)
}

func (s *PGStore) Update(seq Sequence) error {
	b, _ := json.Marshal(seq)
	res, err := s.db.Exec(`update caseflow_sequences set status=$3, payload=$4 where id=$1 and tenant_id=$2`,
		seq.ID, seq.TenantID, seq.Status, b)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NotFound("sequence %s", seq.ID)
	}
	return nil
}

func (s *PGStore) ActiveByCase(tenantID, caseID string) (Sequence, error) {
	var raw []byte
	err := s.db.QueryRow(`select payload from caseflow_sequences where tenant_id=$1 and case_id=$2 and status=$3 limit 1`,
		tenantID, caseID, StatusActive).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sequence{}, faults.NotFound("no active sequence for case %s", caseID)
		}
		return Sequence{}, err
	}
	return decode(raw)
}

func (s *PGStore) ListActive() ([]Sequence, error) {
	rows, err := s.db.Query(`select payload from caseflow_sequences where status=$1 order by started_at asc`, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sequence
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		seq, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

func decode(raw []byte) (Sequence, error) {
	var seq Sequence
	if err := json.Unmarshal(raw, &seq); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}
