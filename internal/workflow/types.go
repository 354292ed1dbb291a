// Package workflow owns the named business state of a case and the declared
// transitions between states.
package workflow

import "time"

type StateKind string

const (
	KindInitial    StateKind = "initial"
	KindInProgress StateKind = "in_progress"
	KindWaiting    StateKind = "waiting"
	KindCompleted  StateKind = "completed"
	KindFailed     StateKind = "failed"
	KindCancelled  StateKind = "cancelled"
)

// State is one point-in-time occupancy record. Rows are superseded on
// transition, never deleted; at most one row per case is current.
type State struct {
	ID        string         `json:"id"`
	CaseID    string         `json:"case_id"`
	TenantID  string         `json:"tenant_id"`
	Name      string         `json:"name"`
	Kind      StateKind      `json:"kind"`
	IsCurrent bool           `json:"is_current"`
	Sequence  int            `json:"sequence"`
	EnteredAt time.Time      `json:"entered_at"`
	EnteredBy string         `json:"entered_by"`
	ExitedAt  *time.Time     `json:"exited_at,omitempty"`
	ExitedBy  string         `json:"exited_by,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type TransitionKind string

const (
	TransitionManual    TransitionKind = "manual"
	TransitionAutomatic TransitionKind = "automatic"
	TransitionCondition TransitionKind = "conditional"
	TransitionScheduled TransitionKind = "scheduled"
)

type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

type ActionKind string

const (
	ActionNotify         ActionKind = "notify"
	ActionUpdateCase     ActionKind = "update_case"
	ActionWebhook        ActionKind = "webhook"
	ActionStartSequence  ActionKind = "start_sequence"
	ActionCancelSequence ActionKind = "cancel_sequence"
)

type Action struct {
	Kind   ActionKind     `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// Transition is a declared edge between two state names. Authored as
// configuration, read-only at execution time.
type Transition struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Name       string         `json:"name"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	ToKind     StateKind      `json:"to_kind,omitempty"`
	Kind       TransitionKind `json:"kind"`
	Conditions []Condition    `json:"conditions,omitempty"`
	Actions    []Action       `json:"actions,omitempty"`
	Priority   int            `json:"priority"`
	Enabled    bool           `json:"enabled"`
}
