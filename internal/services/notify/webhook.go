package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	svcmetrics "FinCoord/internal/service/metrics"
	xhttp "FinCoord/pkg/http"
)

// WebhookNotifier posts each coordination result as JSON to a fixed URL.
type WebhookNotifier struct {
	url      string
	client   *xhttp.Client
	attempts int
	backoff  time.Duration
}

var _ domrepo.ResultSink = (*WebhookNotifier)(nil)

// NewWebhookNotifier builds a notifier. attempts below 1 means a single try.
func NewWebhookNotifier(url string, timeout time.Duration, attempts int) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	return &WebhookNotifier{
		url:      url,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("User-Agent", "fincoord-webhook")),
		attempts: attempts,
		backoff:  50 * time.Millisecond,
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Send posts r, retrying transport failures, 5xx and 429 with a linear backoff.
func (n *WebhookNotifier) Send(ctx context.Context, r *models.CoordinationResult) error {
	if n.url == "" {
		return errors.New("webhook url not configured")
	}
	start := time.Now()
	defer func() { svcmetrics.NotifyLatency.WithLabelValues(n.Name()).Observe(time.Since(start).Seconds()) }()

	var err error
	for i := 1; i <= n.attempts; i++ {
		err = n.post(ctx, r)
		if err == nil {
			return nil
		}
		if i == n.attempts || !xhttp.IsRetryable(err) {
			break
		}
		select {
		case <-time.After(time.Duration(i) * n.backoff):
		case <-ctx.Done():
			svcmetrics.NotifyErrors.WithLabelValues(n.Name()).Inc()
			return ctx.Err()
		}
	}
	svcmetrics.NotifyErrors.WithLabelValues(n.Name()).Inc()
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, r *models.CoordinationResult) error {
	err := n.client.PostJSON(ctx, n.url, r, map[string]string{
		"X-Coordination-Id":   r.ID,
		"X-Coordination-Mode": string(r.CoordinationMode),
	}, nil)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	return nil
}

func (n *WebhookNotifier) Close() error { return nil }
