package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/types"
)

// Notifier delivers a one-shot notification of a terminal job transition.
// The core fires it and forgets: delivery failure is logged, never retried,
// and never surfaces to the job path.
type Notifier interface {
	Notify(ctx context.Context, payload types.NotificationPayload) error
}

// WebhookNotifier POSTs the payload as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: log.WithComponent("notify"),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, payload types.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	n.logger.Debug().
		Str("job_id", payload.JobID).
		Str("status", string(payload.Status)).
		Msg("notification delivered")
	return nil
}

// NopNotifier discards every notification. Used when no webhook URL is
// configured.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, payload types.NotificationPayload) error {
	return nil
}
