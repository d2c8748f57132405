package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/metrics"
	"diagnosys-poller/internal/report"
)

// DefaultWebhookTimeout bounds each delivery.
const DefaultWebhookTimeout = 2 * time.Second

// WebhookSink POSTs every report to a set of URLs
type WebhookSink struct {
	urls    []string
	client  *http.Client
	metrics *metrics.Registry
	logger  *zap.SugaredLogger
	wg      sync.WaitGroup
}

// NewWebhookSink creates a webhook sink. reg may be nil.
func NewWebhookSink(
	urls []string,
	timeout time.Duration,
	reg *metrics.Registry,
	l *zap.SugaredLogger,
) *WebhookSink {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookSink{
		urls:    append([]string(nil), urls...),
		client:  &http.Client{Timeout: timeout},
		metrics: reg,
		logger:  logger.OrNop(l),
	}
}

// Name implements report.Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Publish sends the report to every URL asynchronously. It does not block
// the cycle; delivery failures are logged and counted.
func (s *WebhookSink) Publish(ctx context.Context, r report.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	for _, url := range s.urls {
		s.wg.Add(1)
		go s.send(context.WithoutCancel(ctx), url, r, body)
	}
	return nil
}

// Wait blocks until every delivery in flight has finished.
func (s *WebhookSink) Wait() {
	s.wg.Wait()
}

func (s *WebhookSink) send(ctx context.Context, url string, r report.Report, body []byte) {
	defer s.wg.Done()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.fail("Failed to create webhook request", url, r, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.fail("Failed to deliver webhook", url, r, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.fail("Unexpected webhook response", url, r, resp.Status)
		return
	}
	s.logger.Debugw("Webhook delivered", "url", url, "cycle_id", r.CycleID)
}

func (s *WebhookSink) fail(msg, url string, r report.Report, cause interface{}) {
	if s.metrics != nil {
		s.metrics.Inc(metrics.SinkFailuresTotal)
	}
	s.logger.Warnw(msg, "url", url, "asset", r.Asset, "cycle_id", r.CycleID, "error", cause)
}
