// Package sequence runs time-offset outreach cadences against open cases.
package sequence

import (
	"time"

	"github.com/ronappleton/caseflow/internal/notify"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepSent    StepStatus = "sent"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type Step struct {
	ID          string            `json:"id"`
	Index       int               `json:"index"`
	Channel     notify.Channel    `json:"channel"`
	Template    string            `json:"template"`
	DelayDays   int               `json:"delay_days"`
	Status      StepStatus        `json:"status"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	ExecutedAt  *time.Time        `json:"executed_at,omitempty"`
	Attempts    int               `json:"attempts"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sequence is one outreach run. The cursor points at the next step to
// execute; it never exceeds the step count and never moves backwards.
type Sequence struct {
	ID          string     `json:"id"`
	CaseID      string     `json:"case_id"`
	TenantID    string     `json:"tenant_id"`
	Template    string     `json:"template"`
	Status      Status     `json:"status"`
	Steps       []Step     `json:"steps"`
	Cursor      int        `json:"cursor"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
