package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents    metric.Int64Counter
	handlerFailures  metric.Int64Counter
	receiptsSent     metric.Int64Counter
	noticesSent      metric.Int64Counter
	analyticsDropped metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "offertory"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("offertory_webhook_events_total")
	if err != nil {
		return nil, err
	}
	handlerFailures, err := meter.Int64Counter("offertory_handler_failures_total")
	if err != nil {
		return nil, err
	}
	receiptsSent, err := meter.Int64Counter("offertory_receipts_sent_total")
	if err != nil {
		return nil, err
	}
	noticesSent, err := meter.Int64Counter("offertory_payment_notices_sent_total")
	if err != nil {
		return nil, err
	}
	analyticsDropped, err := meter.Int64Counter("offertory_analytics_dropped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:    webhookEvents,
		handlerFailures:  handlerFailures,
		receiptsSent:     receiptsSent,
		noticesSent:      noticesSent,
		analyticsDropped: analyticsDropped,
	}, nil
}

// RecordWebhookEvent counts one resolved inbound delivery.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordHandlerFailure counts a handler error that left the event unprocessed.
func (m *Metrics) RecordHandlerFailure(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.handlerFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
	))
}

// RecordReceiptSent counts one donor receipt dispatch.
func (m *Metrics) RecordReceiptSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.receiptsSent.Add(ctx, 1)
}

// RecordNoticeSent counts one payment-issue notice dispatch.
func (m *Metrics) RecordNoticeSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.noticesSent.Add(ctx, 1)
}

// RecordAnalyticsDropped counts a fire-and-forget analytics emission that
// could not be delivered.
func (m *Metrics) RecordAnalyticsDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.analyticsDropped.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
