package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/notify"
)

const testTenant = "acme"

// stubDispatcher records dispatches and can be told to fail.
type stubDispatcher struct {
	mu       sync.Mutex
	sent     []notify.Dispatch
	failNext int
}

func (d *stubDispatcher) Dispatch(_ context.Context, payload notify.Dispatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return faults.External("dispatch refused")
	}
	d.sent = append(d.sent, payload)
	return nil
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newTestService(t *testing.T) (*Service, *stubDispatcher, cases.Store) {
	t.Helper()
	caseStore := cases.NewMemoryStore()
	dispatcher := &stubDispatcher{}
	svc := NewService(NewMemoryStore(), caseStore, dispatcher, config.Default(), zap.NewNop())
	return svc, dispatcher, caseStore
}

func createCase(t *testing.T, store cases.Store) cases.Case {
	t.Helper()
	c, err := store.Create(cases.Case{
		TenantID:          testTenant,
		CustomerID:        "cust-1",
		DisputedAmount:    10000,
		OutstandingAmount: 10000,
	})
	require.NoError(t, err)
	return c
}

func TestStartExpandsTemplate(t *testing.T) {
	svc, _, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	assert.Equal(t, StatusActive, seq.Status)
	assert.Equal(t, 0, seq.Cursor)
	require.Len(t, seq.Steps, 3)
	assert.Equal(t, start, seq.Steps[0].ScheduledAt)
	assert.Equal(t, start.Add(7*24*time.Hour), seq.Steps[1].ScheduledAt)
	assert.Equal(t, start.Add(14*24*time.Hour), seq.Steps[2].ScheduledAt)
	for _, step := range seq.Steps {
		assert.Equal(t, StepPending, step.Status)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	svc, _, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	first, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)
	second, err := svc.Start(context.Background(), testTenant, c.ID, "formal")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "friendly", second.Template)
}

func TestStartUnknownCase(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Start(context.Background(), testTenant, "missing", "friendly")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestStartUnknownTemplate(t *testing.T) {
	svc, _, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	_, err := svc.Start(context.Background(), testTenant, c.ID, "aggressive")
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestSweepOneStepPerTick(t *testing.T) {
	svc, dispatcher, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	// Tick at T0 sends step 0 only; step 1 is not yet due.
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 1, dispatcher.count())

	got, err := svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)
	assert.Equal(t, StepSent, got.Steps[0].Status)
	assert.Equal(t, StepPending, got.Steps[1].Status)

	// Another tick at T0 sends nothing.
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 1, dispatcher.count())

	// A tick at T0+7d sends the second step, a tick at T0+14d the third.
	svc.now = func() time.Time { return start.Add(7 * 24 * time.Hour) }
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 2, dispatcher.count())

	svc.now = func() time.Time { return start.Add(14 * 24 * time.Hour) }
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 3, dispatcher.count())

	got, err = svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestSweepOverdueStepsStillOnePerTick(t *testing.T) {
	svc, dispatcher, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	_, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	// All three steps are overdue, yet each tick fires only the head step.
	svc.now = func() time.Time { return start.Add(30 * 24 * time.Hour) }
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 1, dispatcher.count())
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 2, dispatcher.count())
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 3, dispatcher.count())
}

func TestSweepFailureKeepsCursor(t *testing.T) {
	svc, dispatcher, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	dispatcher.failNext = 1
	svc.Sweep(context.Background(), 2)

	got, err := svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cursor)
	assert.Equal(t, StepFailed, got.Steps[0].Status)
	assert.Equal(t, 1, got.Steps[0].Attempts)
	assert.Contains(t, got.Steps[0].Metadata["error"], "dispatch refused")

	// The failed step is retried on the next tick.
	svc.Sweep(context.Background(), 2)
	got, err = svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)
	assert.Equal(t, StepSent, got.Steps[0].Status)
	assert.Equal(t, 2, got.Steps[0].Attempts)
}

func TestSweepAttemptCapPausesSequence(t *testing.T) {
	svc, dispatcher, caseStore := newTestService(t)
	svc.maxAttempts = 3
	c := createCase(t, caseStore)

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	dispatcher.failNext = 10
	for i := 0; i < 3; i++ {
		svc.Sweep(context.Background(), 2)
	}

	got, err := svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)
	assert.Equal(t, 3, got.Steps[0].Attempts)
	assert.Equal(t, 0, got.Cursor)

	// A paused run is skipped even though the step is due.
	svc.Sweep(context.Background(), 2)
	got, err = svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Steps[0].Attempts)
}

func TestCancelMidRunLeavesStepsPending(t *testing.T) {
	svc, dispatcher, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)
	svc.Sweep(context.Background(), 2)
	require.Equal(t, 1, dispatcher.count())

	cancelled, err := svc.Cancel(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)
	assert.Equal(t, StepPending, cancelled.Steps[1].Status)
	assert.Equal(t, StepPending, cancelled.Steps[2].Status)

	// Cancelled runs are terminal: no further ticks fire and cancel again fails.
	svc.now = func() time.Time { return time.Now().UTC().Add(30 * 24 * time.Hour) }
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 1, dispatcher.count())

	_, err = svc.Cancel(testTenant, seq.ID)
	assert.ErrorIs(t, err, faults.ErrInvalidState)
}

func TestPauseAndResume(t *testing.T) {
	svc, dispatcher, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "friendly")
	require.NoError(t, err)

	_, err = svc.Pause(testTenant, seq.ID)
	require.NoError(t, err)
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 0, dispatcher.count())

	// Resume requires paused.
	_, err = svc.Resume(testTenant, seq.ID)
	require.NoError(t, err)
	_, err = svc.Resume(testTenant, seq.ID)
	assert.ErrorIs(t, err, faults.ErrInvalidState)

	// The already-due head step fires on the next tick after resume.
	svc.Sweep(context.Background(), 2)
	assert.Equal(t, 1, dispatcher.count())
}

func TestCancelActiveByCase(t *testing.T) {
	svc, _, caseStore := newTestService(t)
	c := createCase(t, caseStore)

	seq, err := svc.Start(context.Background(), testTenant, c.ID, "legal")
	require.NoError(t, err)

	require.NoError(t, svc.CancelActiveByCase(testTenant, c.ID))
	got, err := svc.Get(testTenant, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// No active run is a no-op.
	require.NoError(t, svc.CancelActiveByCase(testTenant, c.ID))
}
