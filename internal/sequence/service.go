package sequence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/ids"
	"github.com/ronappleton/caseflow/internal/locking"
	"github.com/ronappleton/caseflow/internal/notify"
)

type Service struct {
	store       Store
	cases       cases.Reader
	dispatcher  notify.Dispatcher
	locks       *locking.Keyed
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

func NewService(store Store, caseReader cases.Reader, dispatcher notify.Dispatcher, cfg config.Config, logger *zap.Logger) *Service {
	max := cfg.Sequence.MaxStepAttempts
	if max <= 0 {
		max = 5
	}
	return &Service{
		store:       store,
		cases:       caseReader,
		dispatcher:  dispatcher,
		locks:       locking.NewKeyed(),
		logger:      logger,
		maxAttempts: max,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start expands the named template into scheduled steps. Starting a case that
// already has an active run returns that run unchanged.
func (s *Service) Start(ctx context.Context, tenantID, caseID, templateName string) (Sequence, error) {
	if _, err := s.cases.Get(tenantID, caseID); err != nil {
		return Sequence{}, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, caseID))
	defer unlock()

	if existing, err := s.store.ActiveByCase(tenantID, caseID); err == nil {
		return existing, nil
	}

	now := s.now()
	steps, err := expandTemplate(templateName, now)
	if err != nil {
		return Sequence{}, err
	}
	seq := Sequence{
		ID:        ids.New("seq"),
		CaseID:    caseID,
		TenantID:  tenantID,
		Template:  templateName,
		Status:    StatusActive,
		Steps:     steps,
		Cursor:    0,
		StartedAt: now,
	}
	created, err := s.store.Create(seq)
	if err != nil {
		return Sequence{}, err
	}
	s.logger.Info("sequence started",
		zap.String("sequence_id", created.ID),
		zap.String("case_id", caseID),
		zap.String("template", templateName),
		zap.Int("steps", len(steps)))
	return created, nil
}

func (s *Service) Get(tenantID, id string) (Sequence, error) {
	return s.store.Get(tenantID, id)
}

func (s *Service) Pause(tenantID, id string) (Sequence, error) {
	return s.setStatus(tenantID, id, StatusActive, StatusPaused)
}

// Resume reactivates a paused run. Steps whose scheduled time has already
// passed fire on the next tick; nothing is re-scheduled.
func (s *Service) Resume(tenantID, id string) (Sequence, error) {
	return s.setStatus(tenantID, id, StatusPaused, StatusActive)
}

func (s *Service) Cancel(tenantID, id string) (Sequence, error) {
	seq, err := s.store.Get(tenantID, id)
	if err != nil {
		return Sequence{}, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, seq.CaseID))
	defer unlock()

	seq, err = s.store.Get(tenantID, id)
	if err != nil {
		return Sequence{}, err
	}
	if seq.Status == StatusCompleted || seq.Status == StatusCancelled {
		return Sequence{}, faults.InvalidState("sequence %s is already %s", id, seq.Status)
	}
	now := s.now()
	seq.Status = StatusCancelled
	seq.CompletedAt = &now
	if err := s.store.Update(seq); err != nil {
		return Sequence{}, err
	}
	s.logger.Info("sequence cancelled", zap.String("sequence_id", id), zap.String("case_id", seq.CaseID))
	return seq, nil
}

// CancelActiveByCase cancels the case's active run if one exists. Used when
// a payment fully recovers the outstanding amount or a workflow action asks
// for it; a case with no active run is a no-op.
func (s *Service) CancelActiveByCase(tenantID, caseID string) error {
	seq, err := s.store.ActiveByCase(tenantID, caseID)
	if err != nil {
		return nil
	}
	_, err = s.Cancel(tenantID, seq.ID)
	return err
}

func (s *Service) setStatus(tenantID, id string, from, to Status) (Sequence, error) {
	seq, err := s.store.Get(tenantID, id)
	if err != nil {
		return Sequence{}, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, seq.CaseID))
	defer unlock()

	seq, err = s.store.Get(tenantID, id)
	if err != nil {
		return Sequence{}, err
	}
	if seq.Status != from {
		return Sequence{}, faults.InvalidState("sequence %s is %s, not %s", id, seq.Status, from)
	}
	seq.Status = to
	if err := s.store.Update(seq); err != nil {
		return Sequence{}, err
	}
	s.logger.Info("sequence status changed",
		zap.String("sequence_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return seq, nil
}

// Sweep executes at most one due step per active sequence. Each run is
// processed under its case lock and isolated from the others.
func (s *Service) Sweep(ctx context.Context, workers int) {
	active, err := s.store.ListActive()
	if err != nil {
		s.logger.Error("sequence sweep listing failed", zap.Error(err))
		return
	}
	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, seq := range active {
		seq := seq
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("sequence sweep panic",
						zap.String("sequence_id", seq.ID),
						zap.Any("panic", r))
				}
			}()
			if err := s.processOne(ctx, seq.TenantID, seq.ID); err != nil {
				s.logger.Warn("sequence tick failed",
					zap.String("sequence_id", seq.ID),
					zap.String("case_id", seq.CaseID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) processOne(ctx context.Context, tenantID, id string) error {
	seq, err := s.store.Get(tenantID, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(lockKey(tenantID, seq.CaseID))
	defer unlock()

	seq, err = s.store.Get(tenantID, id)
	if err != nil {
		return err
	}
	if seq.Status != StatusActive {
		return nil
	}

	now := s.now()
	if seq.Cursor >= len(seq.Steps) {
		seq.Status = StatusCompleted
		seq.CompletedAt = &now
		if err := s.store.Update(seq); err != nil {
			return err
		}
		s.logger.Info("sequence completed", zap.String("sequence_id", seq.ID), zap.String("case_id", seq.CaseID))
		return nil
	}

	step := seq.Steps[seq.Cursor]
	if step.Status != StepPending && step.Status != StepFailed {
		return nil
	}
	if step.ScheduledAt.After(now) {
		return nil
	}

	step.Attempts++
	err = s.dispatcher.Dispatch(ctx, notify.Dispatch{
		TenantID: tenantID,
		CaseID:   seq.CaseID,
		Channel:  step.Channel,
		Template: step.Template,
		Data: map[string]string{
			"sequence_id": seq.ID,
			"step_index":  fmt.Sprintf("%d", step.Index),
		},
	})
	if err != nil {
		step.Status = StepFailed
		if step.Metadata == nil {
			step.Metadata = map[string]string{}
		}
		step.Metadata["error"] = err.Error()
		seq.Steps[seq.Cursor] = step
		if step.Attempts >= s.maxAttempts {
			seq.Status = StatusPaused
			s.logger.Warn("sequence paused, step retry cap reached",
				zap.String("sequence_id", seq.ID),
				zap.String("case_id", seq.CaseID),
				zap.Int("step", step.Index),
				zap.Int("attempts", step.Attempts))
		}
		if uerr := s.store.Update(seq); uerr != nil {
			return uerr
		}
		return err
	}

	step.Status = StepSent
	step.ExecutedAt = &now
	delete(step.Metadata, "error")
	seq.Steps[seq.Cursor] = step
	seq.Cursor++
	if seq.Cursor >= len(seq.Steps) {
		seq.Status = StatusCompleted
		seq.CompletedAt = &now
	}
	if err := s.store.Update(seq); err != nil {
		return err
	}
	s.logger.Info("sequence step sent",
		zap.String("sequence_id", seq.ID),
		zap.String("case_id", seq.CaseID),
		zap.Int("step", step.Index),
		zap.String("channel", string(step.Channel)))
	return nil
}

func lockKey(tenantID, caseID string) string {
	return tenantID + "/" + caseID
}
