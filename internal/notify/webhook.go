package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/resilience"
)

// Webhook POSTs each event as JSON to a configured URL. Transient failures
// are retried under the resilience policy.
type Webhook struct {
	url    string
	client *http.Client
	policy resilience.Policy
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, policy resilience.Policy) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, policy: policy}
}

func (w *Webhook) Progress(ctx context.Context, ev model.ProgressEvent) error {
	return w.post(ctx, progressEnvelope(ev))
}

func (w *Webhook) Complete(ctx context.Context, s model.CompletionSummary) error {
	return w.post(ctx, completeEnvelope(s))
}

func (w *Webhook) Error(ctx context.Context, reportID, message string) error {
	return w.post(ctx, errorEnvelope(reportID, message))
}

func (w *Webhook) post(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return eris.Wrap(err, "notify: marshal webhook payload")
	}

	return resilience.Retry(ctx, w.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent(eris.Wrap(err, "notify: create webhook request"))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Regintel-Event", env.Kind)

		resp, err := w.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "notify: webhook request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &resilience.StatusError{Service: "notify: webhook", StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil
	})
}
