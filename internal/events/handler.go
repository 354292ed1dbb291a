// Package events applies external billing and payment events to cases,
// driving sequence starts and payment recovery.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/locking"
	"github.com/ronappleton/caseflow/internal/sequence"
)

const (
	TypeInvoiceOverdue  = "invoice.overdue"
	TypePaymentReceived = "payment.received"
	TypePaymentFailed   = "payment.failed"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id"`
	CaseID     string    `json:"case_id"`
	Amount     float64   `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

type Handler struct {
	store     Store
	cases     cases.Store
	sequences *sequence.Service
	locks     *locking.Keyed
	logger    *zap.Logger
}

func NewHandler(store Store, caseStore cases.Store, sequences *sequence.Service, logger *zap.Logger) *Handler {
	return &Handler{
		store:     store,
		cases:     caseStore,
		sequences: sequences,
		locks:     locking.NewKeyed(),
		logger:    logger,
	}
}

// Handle applies one event. The event id is the idempotency key; a key is
// only marked after the event applied cleanly, so a failed delivery is
// retried rather than swallowed.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	if ev.TenantID == "" || ev.CaseID == "" {
		return faults.Validation("event requires tenant_id and case_id")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	seen, err := h.store.Seen(ev.TenantID, ev.ID)
	if err != nil {
		return err
	}
	if seen {
		h.logger.Info("duplicate event ignored",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type))
		return nil
	}

	switch ev.Type {
	case TypeInvoiceOverdue:
		err = h.handleInvoiceOverdue(ctx, ev)
	case TypePaymentReceived:
		err = h.handlePaymentReceived(ev)
	case TypePaymentFailed:
		err = h.handlePaymentFailed(ctx, ev)
	default:
		return faults.Validation("unknown event type %q", ev.Type)
	}
	if err != nil {
		return err
	}

	if err := h.store.Mark(ev.TenantID, ev.ID); err != nil {
		return err
	}
	h.logger.Info("event applied",
		zap.String("event_id", ev.ID),
		zap.String("type", ev.Type),
		zap.String("case_id", ev.CaseID))
	return nil
}

func (h *Handler) handleInvoiceOverdue(ctx context.Context, ev Event) error {
	_, err := h.sequences.Start(ctx, ev.TenantID, ev.CaseID, "friendly")
	return err
}

// handlePaymentReceived records a recovery against the case. Full recovery
// marks the case paid and cancels any active outreach run.
func (h *Handler) handlePaymentReceived(ev Event) error {
	if ev.Amount <= 0 {
		return faults.Validation("payment amount must be positive")
	}

	unlock := h.locks.Lock(ev.TenantID + "/" + ev.CaseID)
	defer unlock()

	c, err := h.cases.Get(ev.TenantID, ev.CaseID)
	if err != nil {
		return err
	}
	c.RecoveredAmount += ev.Amount
	if err := h.cases.Save(c); err != nil {
		return err
	}

	if c.RecoveredAmount >= c.OutstandingAmount {
		if err := h.cases.UpdateStatus(ev.TenantID, ev.CaseID, cases.StatusPaid, "fully recovered"); err != nil {
			return err
		}
		if err := h.sequences.CancelActiveByCase(ev.TenantID, ev.CaseID); err != nil {
			h.logger.Warn("cancelling sequence after full recovery failed",
				zap.String("case_id", ev.CaseID), zap.Error(err))
		}
		h.logger.Info("case fully recovered",
			zap.String("case_id", ev.CaseID),
			zap.Float64("recovered", c.RecoveredAmount))
	}
	return nil
}

func (h *Handler) handlePaymentFailed(ctx context.Context, ev Event) error {
	if _, err := h.cases.Get(ev.TenantID, ev.CaseID); err != nil {
		return err
	}
	_, err := h.sequences.Start(ctx, ev.TenantID, ev.CaseID, "formal")
	return err
}
