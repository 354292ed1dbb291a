// Package scheduler drives the periodic engine sweeps on their configured
// cron cadences.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/sequence"
	"github.com/ronappleton/caseflow/internal/workflow"
)

type Scheduler struct {
	cron    *cron.Cron
	workers int
	logger  *zap.Logger
}

func New(cfg config.Config, wf *workflow.Engine, seq *sequence.Service, logger *zap.Logger) (*Scheduler, error) {
	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 8
	}
	s := &Scheduler{
		cron:    cron.New(),
		workers: workers,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(cfg.Scheduler.WorkflowSweep, func() {
		wf.Sweep(context.Background(), s.workers)
	}); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.Scheduler.SequenceSweep, func() {
		seq.Sweep(context.Background(), s.workers)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("workers", s.workers))
}

// Stop halts new tick dispatch and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func Module() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}
