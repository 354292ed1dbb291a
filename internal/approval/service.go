package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/ids"
	"github.com/ronappleton/caseflow/internal/locking"
	"github.com/ronappleton/caseflow/internal/notify"
)

type Service struct {
	store  Store
	cases  cases.Store
	sender *notify.Sender
	rules  []Rule
	locks  *locking.Keyed
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, caseStore cases.Store, sender *notify.Sender, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cases:  caseStore,
		sender: sender,
		rules:  rulesFromConfig(cfg.Approval),
		locks:  locking.NewKeyed(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InitializeWorkflow maps the case's disputed amount onto the configured
// rules and pre-creates one pending slot per required level, all in one
// batch. An amount below the lowest gated floor needs no approvals and
// yields an empty chain.
func (s *Service) InitializeWorkflow(ctx context.Context, tenantID, caseID string) ([]Workflow, error) {
	c, err := s.cases.Get(tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.DisputedAmount <= 0 {
		return nil, faults.Validation("case %s has non-positive disputed amount", caseID)
	}

	rule, ok := matchRule(s.rules, c.DisputedAmount)
	if !ok || len(rule.Levels) == 0 {
		s.logger.Info("case auto-approved, no levels required",
			zap.String("case_id", caseID),
			zap.Float64("amount", c.DisputedAmount))
		return []Workflow{}, nil
	}

	now := s.now()
	var expires *time.Time
	if rule.ExpiryHours > 0 {
		t := now.Add(time.Duration(rule.ExpiryHours) * time.Hour)
		expires = &t
	}

	workflows := make([]Workflow, 0, len(rule.Levels))
	for i, level := range rule.Levels {
		workflows = append(workflows, Workflow{
			ID:           ids.New("apr"),
			CaseID:       caseID,
			TenantID:     tenantID,
			Level:        level,
			Status:       StatusPending,
			Sequence:     i,
			Parallel:     rule.Parallel,
			ApproverID:   "approver-" + string(level),
			ApproverName: "Approver for " + string(level),
			RequestedAt:  now,
			ExpiresAt:    expires,
		})
	}

	created, err := s.store.CreateBatch(workflows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("approval chain created",
		zap.String("case_id", caseID),
		zap.Int("levels", len(created)))

	for _, w := range created {
		s.sender.Send(ctx, notify.Message{
			TenantID: tenantID,
			To:       w.ApproverID,
			Channel:  notify.ChannelEmail,
			Template: "approval_requested",
			Data: map[string]string{
				"case_id": caseID,
				"level":   string(w.Level),
				"amount":  fmt.Sprintf("%.2f", c.DisputedAmount),
			},
		})
	}
	return created, nil
}

// Approve records one level's sign-off and re-evaluates the chain. Expiry is
// checked lazily here: an over-deadline slot flips to expired and the call
// fails.
func (s *Service) Approve(ctx context.Context, tenantID, workflowID, actorID, actorName, comments string) (Workflow, error) {
	w, err := s.store.Get(tenantID, workflowID)
	if err != nil {
		return Workflow{}, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, w.CaseID))
	defer unlock()

	w, err = s.store.Get(tenantID, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	if w.Status != StatusPending {
		return Workflow{}, faults.InvalidState("approval workflow %s is %s, not pending", workflowID, w.Status)
	}
	now := s.now()
	if w.ExpiresAt != nil && now.After(*w.ExpiresAt) {
		w.Status = StatusExpired
		if err := s.store.Update(w); err != nil {
			return Workflow{}, err
		}
		return Workflow{}, faults.InvalidState("approval workflow %s has expired", workflowID)
	}

	w.Status = StatusApproved
	w.RespondedAt = &now
	w.Comments = comments
	if err := s.store.Update(w); err != nil {
		return Workflow{}, err
	}
	if err := s.recordHistory(w, actorID, actorName, DecisionApprove, comments); err != nil {
		return Workflow{}, err
	}
	s.logger.Info("approval recorded",
		zap.String("workflow_id", w.ID),
		zap.String("case_id", w.CaseID),
		zap.String("level", string(w.Level)),
		zap.String("actor", actorName))

	if err := s.evaluateChain(ctx, tenantID, w.CaseID); err != nil {
		s.logger.Warn("chain evaluation failed",
			zap.String("case_id", w.CaseID), zap.Error(err))
	}
	return w, nil
}

// Reject vetoes the whole chain: a single rejection at any level closes the
// owning case, no further levels are consulted.
func (s *Service) Reject(ctx context.Context, tenantID, workflowID, actorID, actorName, comments string) (Workflow, error) {
	if strings.TrimSpace(comments) == "" {
		return Workflow{}, faults.Validation("a rejection reason is required")
	}

	w, err := s.store.Get(tenantID, workflowID)
	if err != nil {
		return Workflow{}, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, w.CaseID))
	defer unlock()

	w, err = s.store.Get(tenantID, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	if w.Status != StatusPending {
		return Workflow{}, faults.InvalidState("approval workflow %s is %s, not pending", workflowID, w.Status)
	}

	now := s.now()
	w.Status = StatusRejected
	w.RespondedAt = &now
	w.Comments = comments
	if err := s.store.Update(w); err != nil {
		return Workflow{}, err
	}
	if err := s.recordHistory(w, actorID, actorName, DecisionReject, comments); err != nil {
		return Workflow{}, err
	}

	note := fmt.Sprintf("Rejected by %s: %s", actorName, comments)
	if err := s.cases.UpdateStatus(tenantID, w.CaseID, cases.StatusClosed, note); err != nil {
		s.logger.Warn("closing rejected case failed",
			zap.String("case_id", w.CaseID), zap.Error(err))
	}
	s.notifyCase(ctx, tenantID, w.CaseID, "dispute_rejected", map[string]string{"reason": comments})

	s.logger.Info("approval rejected, case closed",
		zap.String("workflow_id", w.ID),
		zap.String("case_id", w.CaseID),
		zap.String("actor", actorName))
	return w, nil
}

// Delegate reassigns a pending slot to another approver. The slot stays
// pending under the same workflow id and the hand-off is captured in history.
func (s *Service) Delegate(ctx context.Context, tenantID, workflowID, actorID, actorName, delegateID, delegateName, comments string) (Workflow, error) {
	if strings.TrimSpace(delegateID) == "" {
		return Workflow{}, faults.Validation("a delegate id is required")
	}

	w, err := s.store.Get(tenantID, workflowID)
	if err != nil {
		return Workflow{}, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, w.CaseID))
	defer unlock()

	w, err = s.store.Get(tenantID, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	if w.Status != StatusPending {
		return Workflow{}, faults.InvalidState("approval workflow %s is %s, not pending", workflowID, w.Status)
	}

	w.DelegatedFromID = w.ApproverID
	w.DelegatedFromName = w.ApproverName
	w.ApproverID = delegateID
	w.ApproverName = delegateName
	w.Comments = comments
	if err := s.store.Update(w); err != nil {
		return Workflow{}, err
	}
	if err := s.recordHistory(w, actorID, actorName, DecisionDelegate, comments); err != nil {
		return Workflow{}, err
	}

	s.sender.Send(ctx, notify.Message{
		TenantID: tenantID,
		To:       delegateID,
		Channel:  notify.ChannelEmail,
		Template: "approval_delegated",
		Data: map[string]string{
			"case_id":   w.CaseID,
			"level":     string(w.Level),
			"delegator": actorName,
		},
	})
	s.logger.Info("approval delegated",
		zap.String("workflow_id", w.ID),
		zap.String("from", w.DelegatedFromID),
		zap.String("to", delegateID))
	return w, nil
}

func (s *Service) PendingApprovals(tenantID, approverID string) ([]Workflow, error) {
	return s.store.ListPending(tenantID, approverID)
}

func (s *Service) ChainByCase(tenantID, caseID string) ([]Workflow, error) {
	return s.store.ListByCase(tenantID, caseID)
}

func (s *Service) HistoryByCase(tenantID, caseID string) ([]History, error) {
	return s.store.ListHistoryByCase(tenantID, caseID)
}

// evaluateChain applies the aggregate verdict: every level approved advances
// the case to under review, any rejection closes it. Anything in between is
// a no-op, which keeps re-evaluation idempotent.
func (s *Service) evaluateChain(ctx context.Context, tenantID, caseID string) error {
	chain, err := s.store.ListByCase(tenantID, caseID)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return nil
	}

	allApproved := true
	anyRejected := false
	for _, w := range chain {
		if w.Status != StatusApproved {
			allApproved = false
		}
		if w.Status == StatusRejected {
			anyRejected = true
		}
	}

	switch {
	case allApproved:
		if err := s.cases.UpdateStatus(tenantID, caseID, cases.StatusUnderReview, ""); err != nil {
			return err
		}
		s.notifyCase(ctx, tenantID, caseID, "dispute_under_review", nil)
		s.logger.Info("approval chain complete", zap.String("case_id", caseID))
	case anyRejected:
		if err := s.cases.UpdateStatus(tenantID, caseID, cases.StatusClosed, "approval chain rejected"); err != nil {
			return err
		}
		s.logger.Info("approval chain rejected", zap.String("case_id", caseID))
	}
	return nil
}

func (s *Service) recordHistory(w Workflow, actorID, actorName string, decision Decision, comments string) error {
	return s.store.AppendHistory(History{
		ID:          ids.New("aph"),
		WorkflowID:  w.ID,
		TenantID:    w.TenantID,
		ActorID:     actorID,
		ActorName:   actorName,
		Decision:    decision,
		Comments:    comments,
		PerformedAt: s.now(),
	})
}

func (s *Service) notifyCase(ctx context.Context, tenantID, caseID, template string, data map[string]string) {
	c, err := s.cases.Get(tenantID, caseID)
	if err != nil {
		s.logger.Warn("case lookup for notification failed",
			zap.String("case_id", caseID), zap.Error(err))
		return
	}
	if data == nil {
		data = map[string]string{}
	}
	data["case_number"] = c.CaseNumber
	s.sender.Send(ctx, notify.Message{
		TenantID: tenantID,
		To:       c.CustomerID,
		Channel:  notify.ChannelEmail,
		Template: template,
		Data:     data,
	})
}

func lockKey(tenantID, caseID string) string {
	return tenantID + "/" + caseID
}
