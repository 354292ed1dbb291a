// Package actions executes the side effects a workflow transition declares,
// bridging the workflow engine to the case store, notifier and sequence
// engine without the engine importing them directly.
package actions

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/notify"
	"github.com/ronappleton/caseflow/internal/sequence"
	"github.com/ronappleton/caseflow/internal/workflow"
)

type Runner struct {
	cases     cases.Store
	sender    *notify.Sender
	sequences *sequence.Service
	client    *http.Client
}

func NewRunner(caseStore cases.Store, sender *notify.Sender, sequences *sequence.Service) *Runner {
	return &Runner{
		cases:     caseStore,
		sender:    sender,
		sequences: sequences,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *Runner) Run(ctx context.Context, tenantID, caseID string, action workflow.Action) error {
	switch action.Kind {
	case workflow.ActionNotify:
		return r.runNotify(ctx, tenantID, caseID, action)
	case workflow.ActionUpdateCase:
		return r.runUpdateCase(tenantID, caseID, action)
	case workflow.ActionWebhook:
		return r.runWebhook(ctx, action)
	case workflow.ActionStartSequence:
		return r.runStartSequence(ctx, tenantID, caseID, action)
	case workflow.ActionCancelSequence:
		return r.sequences.CancelActiveByCase(tenantID, caseID)
	default:
		return faults.Validation("unknown action kind %q", action.Kind)
	}
}

func (r *Runner) runNotify(ctx context.Context, tenantID, caseID string, action workflow.Action) error {
	c, err := r.cases.Get(tenantID, caseID)
	if err != nil {
		return err
	}
	to := stringParam(action, "to")
	if to == "" {
		to = c.CustomerID
	}
	data := map[string]string{"case_number": c.CaseNumber}
	for k, v := range action.Params {
		if s, ok := v.(string); ok && k != "to" && k != "channel" && k != "template" {
			data[k] = s
		}
	}
	r.sender.Send(ctx, notify.Message{
		TenantID: tenantID,
		To:       to,
		Channel:  notify.Channel(stringParamDefault(action, "channel", string(notify.ChannelEmail))),
		Template: stringParam(action, "template"),
		Data:     data,
	})
	return nil
}

func (r *Runner) runUpdateCase(tenantID, caseID string, action workflow.Action) error {
	status := stringParam(action, "status")
	if status == "" {
		return faults.Validation("update_case action requires a status param")
	}
	return r.cases.UpdateStatus(tenantID, caseID, cases.Status(status), stringParam(action, "note"))
}

func (r *Runner) runWebhook(ctx context.Context, action workflow.Action) error {
	url := stringParam(action, "url")
	if url == "" {
		return faults.Validation("webhook action requires a url param")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return faults.External("webhook %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return faults.External("webhook %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

func (r *Runner) runStartSequence(ctx context.Context, tenantID, caseID string, action workflow.Action) error {
	template := stringParamDefault(action, "template", "friendly")
	_, err := r.sequences.Start(ctx, tenantID, caseID, template)
	return err
}

func stringParam(action workflow.Action, key string) string {
	if v, ok := action.Params[key].(string); ok {
		return v
	}
	return ""
}

func stringParamDefault(action workflow.Action, key, fallback string) string {
	if v := stringParam(action, key); v != "" {
		return v
	}
	return fallback
}
