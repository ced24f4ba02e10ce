package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyErrorReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("mark paid: %w", context.DeadlineExceeded), want: ErrorReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ErrorReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: ErrorReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ErrorReasonUniqueViolation},
		{name: "other_pg", err: &pgconn.PgError{Code: "08006"}, want: ErrorReasonDB},
		{name: "unknown", err: errors.New("boom"), want: ErrorReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyErrorReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWebhookOutcomeCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPaymentMetrics(registry, Config{ServiceName: "nclexprep", Environment: "test"})

	m.IncWebhookOutcome("xendit", WebhookOutcomeProcessed)
	m.IncWebhookOutcome("xendit", WebhookOutcomeProcessed)
	m.IncWebhookOutcome("xendit", WebhookOutcomeDuplicate)

	if got := testutil.ToFloat64(m.webhookOutcomes.WithLabelValues("xendit", WebhookOutcomeProcessed)); got != 2 {
		t.Fatalf("expected processed count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookOutcomes.WithLabelValues("xendit", WebhookOutcomeDuplicate)); got != 1 {
		t.Fatalf("expected duplicate count 1, got %v", got)
	}
}

func TestObserveGatewayCallCountsErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPaymentMetrics(registry, Config{})

	m.ObserveGatewayCall(GatewayOperationCreateInvoice, "", 120*time.Millisecond)
	m.ObserveGatewayCall(GatewayOperationCreateInvoice, "NETWORK_ERROR", time.Second)

	if got := testutil.ToFloat64(m.gatewayErrors.WithLabelValues(GatewayOperationCreateInvoice, "NETWORK_ERROR")); got != 1 {
		t.Fatalf("expected one gateway error, got %v", got)
	}
}

func TestCollectorsRegisterOnInjectedRegistry(t *testing.T) {
	first := prometheus.NewRegistry()
	second := prometheus.NewRegistry()

	a := NewPaymentMetrics(first, Config{})
	b := NewPaymentMetrics(second, Config{})
	NewHTTPMetrics(first, Config{})

	a.IncWebhookOutcome("xendit", WebhookOutcomeProcessed)

	if got := testutil.ToFloat64(a.webhookOutcomes.WithLabelValues("xendit", WebhookOutcomeProcessed)); got != 1 {
		t.Fatalf("expected first registry count 1, got %v", got)
	}
	if got := testutil.ToFloat64(b.webhookOutcomes.WithLabelValues("xendit", WebhookOutcomeProcessed)); got != 0 {
		t.Fatalf("expected second registry untouched, got %v", got)
	}

	count, err := testutil.GatherAndCount(first, "nclexprep_webhook_outcomes_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected webhook outcome series on the injected registry")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected duplicate registration on one registry to panic")
			}
		}()
		NewPaymentMetrics(first, Config{})
	}()
}
