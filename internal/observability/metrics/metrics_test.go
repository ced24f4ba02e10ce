package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("plan", "monthly_premium"),
		attribute.String("user_id", "user_456"),
		attribute.String("payer_email", "a@b.com"),
		attribute.String("provider", "xendit"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" || attr.Key == "payer_email" {
			t.Fatalf("expected %s to be dropped", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvoice(context.Background(), "monthly_premium", "created")
	m.RecordWebhookEvent(context.Background(), "xendit", "paid")
	m.RecordNotification(context.Background(), "failed")
	m.RecordCheckoutLimited(context.Background(), "rate_limited")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "nclexprep"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordInvoice(context.Background(), "annual_premium", "created")
}
