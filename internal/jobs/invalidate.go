package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Invalidator is notified once every job of a submission has succeeded so
// that downstream caches of the outputs can be purged.
type Invalidator interface {
	Invalidate(ctx context.Context, jobs []string) error
}

// NopInvalidator does nothing.
type NopInvalidator struct{}

// Invalidate implements Invalidator.
func (NopInvalidator) Invalidate(context.Context, []string) error { return nil }

// Invalidation is the webhook payload.
type Invalidation struct {
	Jobs        []string  `json:"jobs"`
	Paths       []string  `json:"paths,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// WebhookInvalidator posts an Invalidation to a URL.
type WebhookInvalidator struct {
	url    string
	paths  []string
	client *http.Client
	now    func() time.Time
}

// NewWebhookInvalidator creates an invalidator posting to url. Paths, when
// given, are passed through to the receiver.
func NewWebhookInvalidator(url string, paths ...string) *WebhookInvalidator {
	return &WebhookInvalidator{
		url:    url,
		paths:  paths,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Invalidate implements Invalidator.
func (w *WebhookInvalidator) Invalidate(ctx context.Context, jobs []string) error {
	payload, err := json.Marshal(Invalidation{Jobs: jobs, Paths: w.paths, CompletedAt: w.now().UTC()})
	if err != nil {
		return eris.Wrap(err, "jobs: marshal invalidation")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "jobs: create invalidation request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "jobs: invalidation request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("jobs: invalidation webhook returned status %d", resp.StatusCode)
	}
	zap.L().Info("jobs: invalidation sent", zap.Int("jobs", len(jobs)))
	return nil
}
