// Package approval gates high-value cases behind ordered monetary
// approval chains.
package approval

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

type Level string

const (
	LevelManager  Level = "L1_MANAGER"
	LevelDirector Level = "L2_DIRECTOR"
	LevelLegal    Level = "L3_LEGAL"
	LevelCFO      Level = "L4_CFO"
	LevelBoard    Level = "L5_BOARD"
)

// Workflow is one approval slot in a case's chain. Delegation reassigns the
// slot to the delegate; the slot keeps its single decision record.
type Workflow struct {
	ID                string     `json:"id"`
	CaseID            string     `json:"case_id"`
	TenantID          string     `json:"tenant_id"`
	Level             Level      `json:"level"`
	Status            Status     `json:"status"`
	Sequence          int        `json:"sequence"`
	Parallel          bool       `json:"parallel"`
	ApproverID        string     `json:"approver_id"`
	ApproverName      string     `json:"approver_name"`
	DelegatedFromID   string     `json:"delegated_from_id,omitempty"`
	DelegatedFromName string     `json:"delegated_from_name,omitempty"`
	Comments          string     `json:"comments,omitempty"`
	RequestedAt       time.Time  `json:"requested_at"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionDelegate    Decision = "delegate"
	DecisionRequestInfo Decision = "request_info"
)

// History rows are append-only; they are never mutated after insert.
type History struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	TenantID    string    `json:"tenant_id"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	Decision    Decision  `json:"decision"`
	Comments    string    `json:"comments,omitempty"`
	PerformedAt time.Time `json:"performed_at"`
}
