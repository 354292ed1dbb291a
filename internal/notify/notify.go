// Package notify carries engine side effects out to the notification service
// and the per-channel outreach adapters.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/faults"
)

type Channel string

const (
	ChannelEmail       Channel = "email"
	ChannelSMS         Channel = "sms"
	ChannelCall        Channel = "call"
	ChannelWhatsApp    Channel = "whatsapp"
	ChannelLegalNotice Channel = "legal_notice"
)

type Message struct {
	TenantID string            `json:"tenant_id"`
	To       string            `json:"to"`
	Channel  Channel           `json:"channel"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// Sender is the fire-and-forget contract: delivery failures are logged and
// never surfaced into engine control flow.
type Sender struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewSender(cfg config.Config, logger *zap.Logger) *Sender {
	return &Sender{
		baseURL: cfg.Notify.BaseURL,
		client:  newClient(cfg.Notify.Timeout),
		logger:  logger,
	}
}

func (s *Sender) Send(ctx context.Context, msg Message) {
	if s == nil || s.baseURL == "" {
		return
	}
	if err := postJSON(ctx, s.client, s.baseURL+"/v1/notifications", msg); err != nil {
		s.logger.Warn("notification send failed",
			zap.String("tenant_id", msg.TenantID),
			zap.String("channel", string(msg.Channel)),
			zap.String("template", msg.Template),
			zap.Error(err))
	}
}

// Dispatch is one scheduled outreach action. Unlike Sender, a Dispatcher
// failure is the step's primary outcome and is returned to the caller.
type Dispatch struct {
	TenantID string            `json:"tenant_id"`
	CaseID   string            `json:"case_id"`
	Channel  Channel           `json:"channel"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, d Dispatch) error
}

type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDispatcher(cfg config.Config) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: cfg.Notify.BaseURL,
		client:  newClient(cfg.Notify.Timeout),
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, payload Dispatch) error {
	if d.baseURL == "" {
		return faults.External("dispatcher has no endpoint configured")
	}
	url := d.baseURL + "/v1/dispatch/" + string(payload.Channel)
	if err := postJSON(ctx, d.client, url, payload); err != nil {
		return faults.External("dispatch %s for case %s: %v", payload.Channel, payload.CaseID, err)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	raw, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return faults.External("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func newClient(timeout string) *http.Client {
	dur, err := time.ParseDuration(timeout)
	if err != nil || dur <= 0 {
		dur = 5 * time.Second
	}
	return &http.Client{
		Timeout:   dur,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
