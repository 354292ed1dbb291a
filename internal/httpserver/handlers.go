package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/events"
	"github.com/ronappleton/caseflow/internal/faults"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("content-type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var body cases.Case
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	body.TenantID = tenantID
	created, err := s.cases.Create(body)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, created)
}

// handleCaseRoutes splits /v1/cases/{id}/... into the workflow, approval and
// sequence sub-resources.
func (s *Server) handleCaseRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cases/")
	parts := strings.SplitN(rest, "/", 2)
	caseID := parts[0]
	if caseID == "" {
		http.Error(w, "case id required", http.StatusBadRequest)
		return
	}
	tail := ""
	if len(parts) == 2 {
		tail = parts[1]
	}

	switch tail {
	case "":
		s.handleGetCase(w, r, caseID)
	case "workflow/initialize":
		s.handleWorkflowInitialize(w, r, caseID)
	case "workflow/transition":
		s.handleWorkflowTransition(w, r, caseID)
	case "workflow/state":
		s.handleWorkflowState(w, r, caseID)
	case "workflow/transitions":
		s.handleWorkflowTransitions(w, r, caseID)
	case "workflow/history":
		s.handleWorkflowHistory(w, r, caseID)
	case "approvals/initialize":
		s.handleApprovalInitialize(w, r, caseID)
	case "approvals":
		s.handleApprovalChain(w, r, caseID)
	case "approvals/history":
		s.handleApprovalHistory(w, r, caseID)
	case "sequence/start":
		s.handleSequenceStart(w, r, caseID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	c, err := s.cases.Get(tenantID, caseID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleWorkflowInitialize(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var body struct {
		State string `json:"state"`
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	st, err := s.wf.Initialize(r.Context(), tenantID, caseID, body.State, body.Actor)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleWorkflowTransition(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var body struct {
		TransitionID string         `json:"transition_id"`
		Actor        string         `json:"actor"`
		Metadata     map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.TransitionID) == "" {
		http.Error(w, "transition_id required", http.StatusBadRequest)
		return
	}
	st, err := s.wf.Transition(r.Context(), tenantID, caseID, body.TransitionID, body.Actor, body.Metadata)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleWorkflowState(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	st, err := s.wf.CurrentState(tenantID, caseID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleWorkflowTransitions(w http.ResponseWriter, r *http.Request, caseID string) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := s.wf.AvailableTransitions(tenantID, caseID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, map[string]any{"items": items})
	case http.MethodPost:
		// Load an authored transition-set document for the tenant. The case
		// segment is ignored; transitions are tenant-scoped configuration.
		doc, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		items, err := s.wf.LoadTransitions(tenantID, doc)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWorkflowHistory(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	items, err := s.wf.History(tenantID, caseID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handleApprovalInitialize(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	chain, err := s.approvals.InitializeWorkflow(r.Context(), tenantID, caseID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": chain})
}

func (s *Server) handleApprovalChain(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	items, err := s.approvals.ChainByCase(tenantID, caseID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handleApprovalHistory(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	items, err := s.approvals.HistoryByCase(tenantID, caseID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	approver := r.URL.Query().Get("approver")
	if approver == "" {
		http.Error(w, "approver query param required", http.StatusBadRequest)
		return
	}
	items, err := s.approvals.PendingApprovals(tenantID, approver)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

// handleApprovalRoutes serves /v1/approvals/{id}/approve|reject|delegate.
func (s *Server) handleApprovalRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/approvals/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	workflowID, verb := parts[0], parts[1]

	var body struct {
		ActorID      string `json:"actor_id"`
		ActorName    string `json:"actor_name"`
		Comments     string `json:"comments"`
		DelegateID   string `json:"delegate_id"`
		DelegateName string `json:"delegate_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	switch verb {
	case "approve":
		wf, err := s.approvals.Approve(r.Context(), tenantID, workflowID, body.ActorID, body.ActorName, body.Comments)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, wf)
	case "reject":
		wf, err := s.approvals.Reject(r.Context(), tenantID, workflowID, body.ActorID, body.ActorName, body.Comments)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, wf)
	case "delegate":
		wf, err := s.approvals.Delegate(r.Context(), tenantID, workflowID, body.ActorID, body.ActorName, body.DelegateID, body.DelegateName, body.Comments)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, wf)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleSequenceStart(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var body struct {
		Template string `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	seq, err := s.sequences.Start(r.Context(), tenantID, caseID, body.Template)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, seq)
}

// handleSequenceRoutes serves /v1/sequences/{id} and its pause/resume/cancel
// verbs.
func (s *Server) handleSequenceRoutes(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sequences/")
	parts := strings.SplitN(rest, "/", 2)
	sequenceID := parts[0]
	if sequenceID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		seq, err := s.sequences.Get(tenantID, sequenceID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, seq)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var (
		seq any
		err error
	)
	switch parts[1] {
	case "pause":
		seq, err = s.sequences.Pause(tenantID, sequenceID)
	case "resume":
		seq, err = s.sequences.Resume(tenantID, sequenceID)
	case "cancel":
		seq, err = s.sequences.Cancel(tenantID, sequenceID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, seq)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var ev events.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	ev.TenantID = tenantID
	if err := s.eventsIn.Handle(r.Context(), ev); err != nil {
		writeFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if tenantID == "" {
		http.Error(w, "X-Tenant-ID header required", http.StatusBadRequest)
		return "", false
	}
	return tenantID, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, faults.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, faults.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, faults.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, faults.ErrExternal):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
