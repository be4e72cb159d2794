package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	obsmetrics "github.com/smallparish/offertory/internal/observability/metrics"
	"go.uber.org/zap"
)

// ContributionEvent is the analytics record emitted when a gift settles.
type ContributionEvent struct {
	ID             string       `json:"id"`
	Type           string       `json:"type"`
	TenantID       snowflake.ID `json:"tenant_id"`
	ContributionID snowflake.ID `json:"contribution_id"`
	FundID         string       `json:"fund_id"`
	AmountCents    int64        `json:"amount_cents"`
	Currency       string       `json:"currency"`
	Recurring      bool         `json:"recurring"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

// Sink accepts fire-and-forget analytics events. Delivery failures are
// logged and counted, never surfaced: analytics must not fail a payment.
type Sink interface {
	Record(ctx context.Context, event ContributionEvent)
}

type httpSink struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
}

func NewHTTPSink(endpoint string, timeout time.Duration, log *zap.Logger, metrics *obsmetrics.Metrics) Sink {
	if endpoint == "" {
		return &noopSink{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &httpSink{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log.Named("analytics.sink"),
		metrics:  metrics,
	}
}

func (s *httpSink) Record(ctx context.Context, event ContributionEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.drop(ctx, event, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.drop(ctx, event, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		s.drop(ctx, event, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.Warn("analytics sink rejected event",
			zap.String("event_id", event.ID),
			zap.Int("status", resp.StatusCode),
		)
		s.metrics.RecordAnalyticsDropped(ctx)
	}
}

func (s *httpSink) drop(ctx context.Context, event ContributionEvent, err error) {
	s.log.Warn("analytics event dropped", zap.String("event_id", event.ID), zap.Error(err))
	s.metrics.RecordAnalyticsDropped(ctx)
}

type noopSink struct{}

func (noopSink) Record(ctx context.Context, event ContributionEvent) {}
