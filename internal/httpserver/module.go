// Package httpserver is the thin HTTP front door over the case engines.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/approval"
	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/events"
	"github.com/ronappleton/caseflow/internal/sequence"
	"github.com/ronappleton/caseflow/internal/workflow"
)

type Server struct {
	logger    *zap.Logger
	srv       *http.Server
	cases     cases.Store
	wf        *workflow.Engine
	approvals *approval.Service
	sequences *sequence.Service
	eventsIn  *events.Handler
}

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewServer),
		fx.Invoke(RegisterHooks),
	)
}

func NewServer(
	cfg config.Config,
	logger *zap.Logger,
	caseStore cases.Store,
	wf *workflow.Engine,
	approvals *approval.Service,
	sequences *sequence.Service,
	eventsIn *events.Handler,
) *Server {
	s := &Server{
		logger:    logger,
		cases:     caseStore,
		wf:        wf,
		approvals: approvals,
		sequences: sequences,
		eventsIn:  eventsIn,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/cases", s.handleCases)
	mux.HandleFunc("/v1/cases/", s.handleCaseRoutes)
	mux.HandleFunc("/v1/approvals/pending", s.handlePendingApprovals)
	mux.HandleFunc("/v1/approvals/", s.handleApprovalRoutes)
	mux.HandleFunc("/v1/sequences/", s.handleSequenceRoutes)
	mux.HandleFunc("/v1/events", s.handleEvents)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func RegisterHooks(lc fx.Lifecycle, server *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			server.logger.Info("http server starting", zap.String("addr", server.srv.Addr))
			go func() {
				if err := server.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					server.logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			server.logger.Info("http server stopping")
			return server.srv.Shutdown(shutdownCtx)
		},
	})
}
