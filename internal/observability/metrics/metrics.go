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
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	usageActions     metric.Int64Counter
	secondsCharged   metric.Int64Counter
	paymentCredits   metric.Int64Counter
	secondsCredited  metric.Int64Counter
	webhookEvents    metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the ledger counters on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditledger"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		opts   []metric.Int64CounterOption
	}{
		{&m.usageActions, "creditledger_usage_actions_total", nil},
		{&m.secondsCharged, "creditledger_usage_seconds_charged_total", []metric.Int64CounterOption{metric.WithUnit("s")}},
		{&m.paymentCredits, "creditledger_payment_credits_total", nil},
		{&m.secondsCredited, "creditledger_payment_seconds_credited_total", []metric.Int64CounterOption{metric.WithUnit("s")}},
		{&m.webhookEvents, "creditledger_webhook_events_total", nil},
		{&m.rateLimitAllowed, "creditledger_rate_limit_allowed_total", nil},
		{&m.rateLimitDenied, "creditledger_rate_limit_denied_total", nil},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// RecordUsageAction counts one applied or rejected meter action.
func (m *Metrics) RecordUsageAction(ctx context.Context, serviceKind, actionKind, outcome string, secondsApplied int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("service_kind", strings.TrimSpace(serviceKind)),
		attribute.String("action_kind", strings.TrimSpace(actionKind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.usageActions.Add(ctx, 1, metric.WithAttributes(attrs...))
	if secondsApplied > 0 {
		m.secondsCharged.Add(ctx, secondsApplied, metric.WithAttributes(attrs[:min(2, len(attrs))]...))
	}
}

// RecordPaymentCredit counts a reconciled payment; replays carry outcome "replayed".
func (m *Metrics) RecordPaymentCredit(ctx context.Context, provider, outcome string, secondsCredited int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentCredits.Add(ctx, 1, metric.WithAttributes(attrs...))
	if secondsCredited > 0 {
		m.secondsCredited.Add(ctx, secondsCredited, metric.WithAttributes(
			FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))...,
		))
	}
}

// RecordWebhookEvent increments inbound webhook counts.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"service_kind": {},
	"action_kind":  {},
	"outcome":      {},
	"endpoint":     {},
	"status_code":  {},
	"provider":     {},
	"event_type":   {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
