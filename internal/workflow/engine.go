package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/ids"
	"github.com/ronappleton/caseflow/internal/locking"
)

const systemActor = "SYSTEM"

// ActionRunner executes a transition's declared side effects. Failures are
// the runner's to report; the engine logs them and moves on.
type ActionRunner interface {
	Run(ctx context.Context, tenantID, caseID string, action Action) error
}

type Engine struct {
	store  Store
	runner ActionRunner
	locks  *locking.Keyed
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store Store, runner ActionRunner, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		runner: runner,
		locks:  locking.NewKeyed(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Initialize creates the first occupancy record for a case. A case carries
// exactly one workflow; a second initialize fails.
func (e *Engine) Initialize(ctx context.Context, tenantID, caseID, stateName, actor string) (State, error) {
	if strings.TrimSpace(caseID) == "" || strings.TrimSpace(tenantID) == "" {
		return State{}, faults.Validation("case id and tenant id are required")
	}
	if strings.TrimSpace(stateName) == "" {
		return State{}, faults.Validation("initial state name is required")
	}

	unlock := e.locks.Lock(lockKey(tenantID, caseID))
	defer unlock()

	if _, err := e.store.CurrentState(tenantID, caseID); err == nil {
		return State{}, faults.InvalidState("workflow already initialized for case %s", caseID)
	}

	st := State{
		ID:        ids.New("wfs"),
		CaseID:    caseID,
		TenantID:  tenantID,
		Name:      stateName,
		Kind:      KindInitial,
		IsCurrent: true,
		Sequence:  0,
		EnteredAt: e.now(),
		EnteredBy: actor,
	}
	created, err := e.store.CreateState(st)
	if err != nil {
		return State{}, err
	}
	e.logger.Info("workflow initialized",
		zap.String("case_id", caseID),
		zap.String("state", stateName))
	return created, nil
}

// Transition validates and executes a declared edge from the case's current
// state. The old occupancy row is exited, a new one becomes current, and the
// edge's actions run best-effort afterwards.
func (e *Engine) Transition(ctx context.Context, tenantID, caseID, transitionID, actor string, metadata map[string]any) (State, error) {
	unlock := e.locks.Lock(lockKey(tenantID, caseID))
	defer unlock()

	current, err := e.store.CurrentState(tenantID, caseID)
	if err != nil {
		return State{}, err
	}
	tr, err := e.store.GetTransition(tenantID, transitionID)
	if err != nil {
		return State{}, err
	}
	if !tr.Enabled {
		return State{}, faults.InvalidState("transition %s is disabled", tr.ID)
	}
	if tr.From != current.Name {
		return State{}, faults.InvalidState("transition %s expects state %q, case %s is in %q",
			tr.ID, tr.From, caseID, current.Name)
	}
	if !EvalConditions(tr.Conditions, metadata) {
		return State{}, faults.Validation("transition %s conditions not met", tr.ID)
	}

	now := e.now()
	current.IsCurrent = false
	current.ExitedAt = &now
	current.ExitedBy = actor
	if err := e.store.UpdateState(current); err != nil {
		return State{}, err
	}

	kind := tr.ToKind
	if kind == "" {
		kind = KindInProgress
	}
	next := State{
		ID:        ids.New("wfs"),
		CaseID:    caseID,
		TenantID:  tenantID,
		Name:      tr.To,
		Kind:      kind,
		IsCurrent: true,
		Sequence:  current.Sequence + 1,
		EnteredAt: now,
		EnteredBy: actor,
		Metadata:  metadata,
	}
	created, err := e.store.CreateState(next)
	if err != nil {
		return State{}, err
	}

	for _, action := range tr.Actions {
		if err := e.runner.Run(ctx, tenantID, caseID, action); err != nil {
			e.logger.Warn("transition action failed",
				zap.String("case_id", caseID),
				zap.String("transition_id", tr.ID),
				zap.String("action", string(action.Kind)),
				zap.Error(err))
		}
	}

	e.logger.Info("workflow transitioned",
		zap.String("case_id", caseID),
		zap.String("from", tr.From),
		zap.String("to", tr.To),
		zap.String("actor", actor))
	return created, nil
}

func (e *Engine) CurrentState(tenantID, caseID string) (State, error) {
	return e.store.CurrentState(tenantID, caseID)
}

func (e *Engine) History(tenantID, caseID string) ([]State, error) {
	return e.store.ListStates(tenantID, caseID)
}

// AvailableTransitions lists enabled edges out of the case's current state,
// highest priority first. A case with no current state (or a terminal state
// with no outgoing edges) yields an empty list.
func (e *Engine) AvailableTransitions(tenantID, caseID string) ([]Transition, error) {
	current, err := e.store.CurrentState(tenantID, caseID)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e.store.ListTransitionsFrom(tenantID, current.Name, "")
}

// Sweep attempts automatic transitions for every current state. Records are
// fanned out across a bounded worker group; one record's failure is logged
// and never stops the rest.
func (e *Engine) Sweep(ctx context.Context, workers int) {
	states, err := e.store.ListCurrent()
	if err != nil {
		e.logger.Error("workflow sweep: listing current states failed", zap.Error(err))
		return
	}
	if workers <= 0 {
		workers = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, st := range states {
		st := st
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("workflow sweep: record panicked",
						zap.String("case_id", st.CaseID), zap.Any("panic", r))
				}
			}()
			if err := e.autoAdvance(ctx, st); err != nil {
				e.logger.Warn("workflow sweep: record failed",
					zap.String("case_id", st.CaseID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) autoAdvance(ctx context.Context, st State) error {
	transitions, err := e.store.ListTransitionsFrom(st.TenantID, st.Name, TransitionAutomatic)
	if err != nil {
		return err
	}
	for _, tr := range transitions {
		if !EvalConditions(tr.Conditions, st.Metadata) {
			continue
		}
		if _, err := e.Transition(ctx, st.TenantID, st.CaseID, tr.ID, systemActor, st.Metadata); err != nil {
			e.logger.Warn("automatic transition rejected",
				zap.String("case_id", st.CaseID),
				zap.String("transition_id", tr.ID),
				zap.Error(err))
			continue
		}
		return nil
	}
	return nil
}

// LoadTransitions validates an authored transition document and upserts its
// entries into the store.
func (e *Engine) LoadTransitions(tenantID string, doc []byte) ([]Transition, error) {
	transitions, err := ParseTransitionDoc(doc)
	if err != nil {
		return nil, err
	}
	out := make([]Transition, 0, len(transitions))
	for _, tr := range transitions {
		if tr.ID == "" {
			tr.ID = ids.New("wft")
		}
		tr.TenantID = tenantID
		created, err := e.store.CreateTransition(tr)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func lockKey(tenantID, caseID string) string {
	return tenantID + "/" + caseID
}
