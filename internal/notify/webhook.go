package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/probe"
)

const webhookTimeout = 10 * time.Second

// Webhook posts alerts as JSON to a single URL.
type Webhook struct {
	URL    string
	Server string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook notifier. An empty url disables delivery.
func NewWebhook(url, server string, logger *zap.Logger) *Webhook {
	return &Webhook{
		URL:    url,
		Server: server,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w.URL != ""
}

// Notify sends an alert for result and reports whether the webhook
// confirmed it with HTTP 200. Failures are logged, never returned.
func (w *Webhook) Notify(ctx context.Context, check string, result *probe.Result) bool {
	if w.URL == "" {
		w.logger.Debug("no webhook configured, alert dropped", zap.String("check", check))
		return false
	}

	if err := w.Send(ctx, FormatAlert(w.Server, check, result)); err != nil {
		w.logger.Error("failed to send alert", zap.String("check", check), zap.Error(err))
		return false
	}
	return true
}

// Send posts one alert.
func (w *Webhook) Send(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
