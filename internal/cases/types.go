// Package cases holds the dispute/collection case record the engines act on.
// The engines themselves depend only on the Reader and Writer contracts.
package cases

import "time"

type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusInProgress  Status = "in_progress"
	StatusPaid        Status = "paid"
	StatusClosed      Status = "closed"
)

type Case struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	CaseNumber        string     `json:"case_number"`
	CustomerID        string     `json:"customer_id"`
	CustomerName      string     `json:"customer_name"`
	DisputedAmount    float64    `json:"disputed_amount"`
	OutstandingAmount float64    `json:"outstanding_amount"`
	RecoveredAmount   float64    `json:"recovered_amount"`
	Status            Status     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

// Reader is the read side the engines consume for threshold lookups
// and condition evaluation.
type Reader interface {
	Get(tenantID, caseID string) (Case, error)
}

// Writer updates case status as a side effect of engine decisions.
type Writer interface {
	UpdateStatus(tenantID, caseID string, status Status, note string) error
}

type Store interface {
	Reader
	Writer
	Create(c Case) (Case, error)
	Save(c Case) error
}
