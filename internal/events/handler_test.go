package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/notify"
	"github.com/ronappleton/caseflow/internal/sequence"
)

const testTenant = "acme"

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, notify.Dispatch) error { return nil }

func newTestHandler(t *testing.T) (*Handler, cases.Store, *sequence.Service) {
	t.Helper()
	caseStore := cases.NewMemoryStore()
	seqSvc := sequence.NewService(sequence.NewMemoryStore(), caseStore, noopDispatcher{}, config.Default(), zap.NewNop())
	h := NewHandler(NewMemoryStore(), caseStore, seqSvc, zap.NewNop())
	return h, caseStore, seqSvc
}

func createCase(t *testing.T, store cases.Store, outstanding float64) cases.Case {
	t.Helper()
	c, err := store.Create(cases.Case{
		TenantID:          testTenant,
		CustomerID:        "cust-1",
		DisputedAmount:    outstanding,
		OutstandingAmount: outstanding,
	})
	require.NoError(t, err)
	return c
}

func TestInvoiceOverdueStartsFriendlySequence(t *testing.T) {
	h, caseStore, seqSvc := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	err := h.Handle(context.Background(), Event{
		ID: "ev-1", Type: TypeInvoiceOverdue, TenantID: testTenant, CaseID: c.ID,
	})
	require.NoError(t, err)

	seq, err := seqSvc.Start(context.Background(), testTenant, c.ID, "legal")
	require.NoError(t, err)
	assert.Equal(t, "friendly", seq.Template, "overdue event must have started the friendly run already")
}

func TestDuplicateEventIgnored(t *testing.T) {
	h, caseStore, _ := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	ev := Event{ID: "ev-1", Type: TypePaymentReceived, TenantID: testTenant, CaseID: c.ID, Amount: 1000}
	require.NoError(t, h.Handle(context.Background(), ev))
	require.NoError(t, h.Handle(context.Background(), ev))

	got, err := caseStore.Get(testTenant, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.RecoveredAmount, "redelivery must not double-apply")
}

func TestPartialPaymentKeepsCaseOpen(t *testing.T) {
	h, caseStore, _ := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	err := h.Handle(context.Background(), Event{
		ID: "ev-1", Type: TypePaymentReceived, TenantID: testTenant, CaseID: c.ID, Amount: 2000,
	})
	require.NoError(t, err)

	got, err := caseStore.Get(testTenant, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.StatusOpen, got.Status)
	assert.Equal(t, 2000.0, got.RecoveredAmount)
}

func TestFullRecoveryMarksPaidAndCancelsSequence(t *testing.T) {
	h, caseStore, seqSvc := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	seq, err := seqSvc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), Event{
		ID: "ev-1", Type: TypePaymentReceived, TenantID: testTenant, CaseID: c.ID, Amount: 3000,
	}))
	require.NoError(t, h.Handle(context.Background(), Event{
		ID: "ev-2", Type: TypePaymentReceived, TenantID: testTenant, CaseID: c.ID, Amount: 2000,
	}))

	got, err := caseStore.Get(testTenant, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.StatusPaid, got.Status)

	gotSeq, err := seqSvc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, sequence.StatusCancelled, gotSeq.Status)
}

func TestPaymentFailedStartsFormalSequence(t *testing.T) {
	h, caseStore, seqSvc := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	err := h.Handle(context.Background(), Event{
		ID: "ev-1", Type: TypePaymentFailed, TenantID: testTenant, CaseID: c.ID,
	})
	require.NoError(t, err)

	seq, err := seqSvc.Start(context.Background(), testTenant, c.ID, "legal")
	require.NoError(t, err)
	assert.Equal(t, "formal", seq.Template)
}

func TestUnknownEventTypeNotMarked(t *testing.T) {
	h, caseStore, _ := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	ev := Event{ID: "ev-1", Type: "invoice.created", TenantID: testTenant, CaseID: c.ID}
	err := h.Handle(context.Background(), ev)
	assert.ErrorIs(t, err, faults.ErrValidation)

	seen, err := h.store.Seen(testTenant, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen, "a rejected event must stay unmarked")
}

func TestEventRequiresTenantAndCase(t *testing.T) {
	h, _, _ := newTestHandler(t)

	err := h.Handle(context.Background(), Event{Type: TypeInvoiceOverdue})
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestMissingEventIDGetsGenerated(t *testing.T) {
	h, caseStore, _ := newTestHandler(t)
	c := createCase(t, caseStore, 5000)

	err := h.Handle(context.Background(), Event{
		Type: TypePaymentReceived, TenantID: testTenant, CaseID: c.ID, Amount: 100,
	})
	require.NoError(t, err)
}
