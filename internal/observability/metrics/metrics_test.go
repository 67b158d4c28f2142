package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("service_kind", "chatbot"),
		attribute.String("user_id", "firebase-uid-1"),
		attribute.String("session_id", "01HZX"),
		attribute.String("action_kind", "increment"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" || attr.Key == "session_id" {
			t.Fatalf("expected %s to be dropped", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordUsageAction(ctx, "tools", "increment", "applied", 30)
	m.RecordPaymentCredit(ctx, "stripe", "credited", 3600)
	m.RecordWebhookEvent(ctx, "stripe", "checkout.session.completed")
	m.RecordRateLimitAllowed(ctx, "usage_actions")
	m.RecordRateLimitDenied(ctx, "usage_actions", "user_rate")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "creditledger-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordUsageAction(context.Background(), "chatbot", "end", "applied", 5)
	m.RecordPaymentCredit(context.Background(), "stripe", "replayed", 0)
}

func TestRecordUsageActionCountsSeconds(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordUsageAction(ctx, "chatbot", "increment", "applied", 30)
	m.RecordUsageAction(ctx, "chatbot", "increment", "applied", 15)
	m.RecordUsageAction(ctx, "chatbot", "increment", "insufficient_balance", 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, record := range scope.Metrics {
			sum, ok := record.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				totals[record.Name] += point.Value
			}
		}
	}
	if totals["creditledger_usage_actions_total"] != 3 {
		t.Fatalf("expected 3 actions, got %d", totals["creditledger_usage_actions_total"])
	}
	if totals["creditledger_usage_seconds_charged_total"] != 45 {
		t.Fatalf("expected 45 charged seconds, got %d", totals["creditledger_usage_seconds_charged_total"])
	}
}
