package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/faults"
)

type recordingRunner struct {
	mu   sync.Mutex
	ran  []Action
	fail map[ActionKind]error
}

func (r *recordingRunner) Run(_ context.Context, _, _ string, action Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, action)
	if r.fail != nil {
		if err := r.fail[action.Kind]; err != nil {
			return err
		}
	}
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *recordingRunner) {
	t.Helper()
	store := NewMemoryStore()
	runner := &recordingRunner{}
	engine := NewEngine(store, runner, zap.NewNop())
	return engine, store, runner
}

func mustTransition(t *testing.T, store Store, tr Transition) Transition {
	t.Helper()
	created, err := store.CreateTransition(tr)
	require.NoError(t, err)
	return created
}

func TestInitializeCreatesInitialState(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	st, err := engine.Initialize(context.Background(), "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	assert.Equal(t, KindInitial, st.Kind)
	assert.Equal(t, 0, st.Sequence)
	assert.True(t, st.IsCurrent)
	assert.Equal(t, "alice", st.EnteredBy)
}

func TestInitializeTwiceFails(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Initialize(context.Background(), "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	_, err = engine.Initialize(context.Background(), "t1", "case-1", "draft", "alice")
	assert.ErrorIs(t, err, faults.ErrInvalidState)
}

func TestInitializeValidatesInput(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Initialize(context.Background(), "t1", "", "draft", "alice")
	assert.ErrorIs(t, err, faults.ErrValidation)
	_, err = engine.Initialize(context.Background(), "t1", "case-1", " ", "alice")
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestTransitionAdvancesAndSupersedes(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Initialize(ctx, "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	tr := mustTransition(t, store, Transition{
		ID: "tr-file", TenantID: "t1", Name: "file", From: "draft", To: "filed",
		Kind: TransitionManual, Enabled: true,
	})

	next, err := engine.Transition(ctx, "t1", "case-1", tr.ID, "alice", map[string]any{"note": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "filed", next.Name)
	assert.Equal(t, KindInProgress, next.Kind)
	assert.Equal(t, first.Sequence+1, next.Sequence)
	assert.True(t, next.IsCurrent)

	states, err := store.ListStates("t1", "case-1")
	require.NoError(t, err)
	require.Len(t, states, 2)

	currentCount := 0
	for _, st := range states {
		if st.IsCurrent {
			currentCount++
		}
	}
	assert.Equal(t, 1, currentCount, "at most one current state per case")

	old := states[0]
	assert.False(t, old.IsCurrent)
	require.NotNil(t, old.ExitedAt)
	assert.Equal(t, "alice", old.ExitedBy)
}

func TestTransitionSequenceStrictlyIncreasing(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Initialize(ctx, "t1", "case-1", "a", "sys")
	require.NoError(t, err)
	mustTransition(t, store, Transition{ID: "ab", TenantID: "t1", From: "a", To: "b", Kind: TransitionManual, Enabled: true})
	mustTransition(t, store, Transition{ID: "bc", TenantID: "t1", From: "b", To: "c", Kind: TransitionManual, Enabled: true})

	_, err = engine.Transition(ctx, "t1", "case-1", "ab", "sys", nil)
	require.NoError(t, err)
	_, err = engine.Transition(ctx, "t1", "case-1", "bc", "sys", nil)
	require.NoError(t, err)

	states, err := store.ListStates("t1", "case-1")
	require.NoError(t, err)
	require.Len(t, states, 3)
	for i, st := range states {
		assert.Equal(t, i, st.Sequence)
	}
}

func TestTransitionFromMismatchFailsWithoutMutation(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Initialize(ctx, "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	mustTransition(t, store, Transition{
		ID: "wrong", TenantID: "t1", From: "filed", To: "closed", Kind: TransitionManual, Enabled: true,
	})

	_, err = engine.Transition(ctx, "t1", "case-1", "wrong", "alice", nil)
	assert.ErrorIs(t, err, faults.ErrInvalidState)

	current, err := engine.CurrentState("t1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, "draft", current.Name)
	assert.Nil(t, current.ExitedAt)

	states, err := store.ListStates("t1", "case-1")
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestTransitionDisabledFails(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Initialize(ctx, "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	mustTransition(t, store, Transition{
		ID: "off", TenantID: "t1", From: "draft", To: "filed", Kind: TransitionManual, Enabled: false,
	})

	_, err = engine.Transition(ctx, "t1", "case-1", "off", "alice", nil)
	assert.ErrorIs(t, err, faults.ErrInvalidState)
}

func TestTransitionWithoutCurrentStateFails(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	mustTransition(t, store, Transition{
		ID: "tr", TenantID: "t1", From: "a", To: "b", Kind: TransitionManual, Enabled: true,
	})

	_, err := engine.Transition(context.Background(), "t1", "ghost", "tr", "alice", nil)
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestTransitionUnmetConditionsFail(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Initialize(ctx, "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	mustTransition(t, store, Transition{
		ID: "gated", TenantID: "t1", From: "draft", To: "filed", Kind: TransitionManual, Enabled: true,
		Conditions: []Condition{{Field: "amount", Operator: OpGreater, Value: 1000}},
	})

	_, err = engine.Transition(ctx, "t1", "case-1", "gated", "alice", map[string]any{"amount": 500})
	assert.ErrorIs(t, err, faults.ErrValidation)

	_, err = engine.Transition(ctx, "t1", "case-1", "gated", "alice", map[string]any{"amount": 5000})
	require.NoError(t, err)
}

func TestTransitionActionFailureDoesNotAbort(t *testing.T) {
	engine, store, runner := newTestEngine(t)
	runner.fail = map[ActionKind]error{ActionWebhook: fmt.Errorf("boom")}
	ctx := context.Background()

	_, err := engine.Initialize(ctx, "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	mustTransition(t, store, Transition{
		ID: "acts", TenantID: "t1", From: "draft", To: "filed", Kind: TransitionManual, Enabled: true,
		Actions: []Action{
			{Kind: ActionWebhook},
			{Kind: ActionNotify},
		},
	})

	next, err := engine.Transition(ctx, "t1", "case-1", "acts", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "filed", next.Name)
	require.Len(t, runner.ran, 2, "all actions attempted despite failure")
}

func TestAvailableTransitionsOrderedByPriority(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Initialize(ctx, "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	mustTransition(t, store, Transition{ID: "low", TenantID: "t1", From: "draft", To: "x", Kind: TransitionManual, Enabled: true, Priority: 1})
	mustTransition(t, store, Transition{ID: "high", TenantID: "t1", From: "draft", To: "y", Kind: TransitionManual, Enabled: true, Priority: 10})
	mustTransition(t, store, Transition{ID: "off", TenantID: "t1", From: "draft", To: "z", Kind: TransitionManual, Enabled: false, Priority: 99})

	transitions, err := engine.AvailableTransitions("t1", "case-1")
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, "high", transitions[0].ID)
	assert.Equal(t, "low", transitions[1].ID)
}

func TestAvailableTransitionsEmptyForUnknownCase(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	transitions, err := engine.AvailableTransitions("t1", "nope")
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestSweepAdvancesEligibleRecords(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustTransition(t, store, Transition{
		ID: "auto", TenantID: "t1", From: "waiting", To: "ready", Kind: TransitionAutomatic, Enabled: true,
		Conditions: []Condition{{Field: "verified", Operator: OpEqual, Value: true}},
	})

	_, err := engine.Initialize(ctx, "t1", "case-eligible", "waiting", "sys")
	require.NoError(t, err)
	// Seed metadata on the current state so the sweep can evaluate it.
	cur, err := store.CurrentState("t1", "case-eligible")
	require.NoError(t, err)
	cur.Metadata = map[string]any{"verified": true}
	require.NoError(t, store.UpdateState(cur))

	_, err = engine.Initialize(ctx, "t1", "case-ineligible", "waiting", "sys")
	require.NoError(t, err)

	engine.Sweep(ctx, 4)

	advanced, err := engine.CurrentState("t1", "case-eligible")
	require.NoError(t, err)
	assert.Equal(t, "ready", advanced.Name)
	assert.Equal(t, systemActor, advanced.EnteredBy)

	held, err := engine.CurrentState("t1", "case-ineligible")
	require.NoError(t, err)
	assert.Equal(t, "waiting", held.Name)
}

func TestSweepPicksHighestPriorityAutomatic(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustTransition(t, store, Transition{ID: "slow", TenantID: "t1", From: "s", To: "low-road", Kind: TransitionAutomatic, Enabled: true, Priority: 1})
	mustTransition(t, store, Transition{ID: "fast", TenantID: "t1", From: "s", To: "high-road", Kind: TransitionAutomatic, Enabled: true, Priority: 5})

	_, err := engine.Initialize(ctx, "t1", "case-1", "s", "sys")
	require.NoError(t, err)

	engine.Sweep(ctx, 2)

	current, err := engine.CurrentState("t1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, "high-road", current.Name)
}

func TestLoadTransitionsValidatesSchema(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	good := []byte(`[
		{"name": "file", "from": "draft", "to": "filed", "kind": "manual", "enabled": true,
		 "conditions": [{"field": "amount", "operator": ">", "value": 0}],
		 "actions": [{"kind": "notify", "params": {"template": "case_filed"}}]}
	]`)
	loaded, err := engine.LoadTransitions("t1", good)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.NotEmpty(t, loaded[0].ID)
	assert.Equal(t, "t1", loaded[0].TenantID)

	stored, err := store.GetTransition("t1", loaded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "filed", stored.To)

	bad := []byte(`[{"name": "broken", "from": "a", "to": "b", "kind": "psychic"}]`)
	_, err = engine.LoadTransitions("t1", bad)
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestEngineNowOverride(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return frozen }

	st, err := engine.Initialize(context.Background(), "t1", "case-1", "draft", "alice")
	require.NoError(t, err)
	assert.Equal(t, frozen, st.EnteredAt)
	_ = store
}
