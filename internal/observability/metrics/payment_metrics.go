package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WebhookOutcomeProcessed        = "processed"
	WebhookOutcomeDuplicate        = "duplicate"
	WebhookOutcomeUnauthorized     = "unauthorized"
	WebhookOutcomeInvalidPayload   = "invalid_payload"
	WebhookOutcomeOrderNotFound    = "order_not_found"
	WebhookOutcomeProcessingFailed = "processing_failed"
)

const (
	GatewayOperationCreateInvoice = "create_invoice"
	GatewayOperationGetInvoice    = "get_invoice"
)

const (
	ErrorReasonDeadlineExceeded     = "deadline_exceeded"
	ErrorReasonDBLockTimeout        = "db_lock_timeout"
	ErrorReasonSerializationFailure = "serialization_failure"
	ErrorReasonUniqueViolation      = "unique_violation"
	ErrorReasonDB                   = "db"
	ErrorReasonUnknown              = "unknown"
)

// PaymentMetrics captures webhook and gateway health signals.
type PaymentMetrics struct {
	webhookOutcomes *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	webhookFailures *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayErrors   *prometheus.CounterVec
	outcomeCounters map[string]map[string]prometheus.Counter
}

// NewPaymentMetrics registers the payment collectors on registerer. Call it
// once per registry; a second registration on the same registry panics.
func NewPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	constLabels := constLabelsFor(cfg)

	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nclexprep_webhook_outcomes_total",
		Help:        "Provider webhook deliveries by outcome.",
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "nclexprep_webhook_processing_seconds",
		Help:        "Webhook reconciliation latency from receipt to acknowledgement.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"provider"})
	webhookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nclexprep_webhook_failures_total",
		Help:        "Webhook processing failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"provider", "reason"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "nclexprep_gateway_request_seconds",
		Help:        "Payment gateway call latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		ConstLabels: constLabels,
	}, []string{"operation", "result"})
	gatewayErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nclexprep_gateway_errors_total",
		Help:        "Payment gateway failures by error code.",
		ConstLabels: constLabels,
	}, []string{"operation", "code"})

	registerer.MustRegister(
		webhookOutcomes,
		webhookDuration,
		webhookFailures,
		gatewayDuration,
		gatewayErrors,
	)

	outcomeCounters := map[string]map[string]prometheus.Counter{}
	for _, provider := range []string{"xendit"} {
		counters := map[string]prometheus.Counter{}
		for _, outcome := range []string{
			WebhookOutcomeProcessed,
			WebhookOutcomeDuplicate,
			WebhookOutcomeUnauthorized,
			WebhookOutcomeInvalidPayload,
			WebhookOutcomeOrderNotFound,
			WebhookOutcomeProcessingFailed,
		} {
			counters[outcome] = webhookOutcomes.WithLabelValues(provider, outcome)
		}
		outcomeCounters[provider] = counters
	}

	return &PaymentMetrics{
		webhookOutcomes: webhookOutcomes,
		webhookDuration: webhookDuration,
		webhookFailures: webhookFailures,
		gatewayDuration: gatewayDuration,
		gatewayErrors:   gatewayErrors,
		outcomeCounters: outcomeCounters,
	}
}

// IncWebhookOutcome increments the webhook outcome counter.
func (m *PaymentMetrics) IncWebhookOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	if counters, ok := m.outcomeCounters[provider]; ok {
		if counter, ok := counters[outcome]; ok {
			counter.Inc()
			return
		}
	}
	m.webhookOutcomes.WithLabelValues(provider, outcome).Inc()
}

func (m *PaymentMetrics) ObserveWebhookDuration(provider string, duration time.Duration) {
	if m == nil || m.webhookDuration == nil {
		return
	}
	m.webhookDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncWebhookFailure records a processing failure with its classified reason.
func (m *PaymentMetrics) IncWebhookFailure(provider string, err error) {
	if m == nil || err == nil || m.webhookFailures == nil {
		return
	}
	m.webhookFailures.WithLabelValues(provider, ClassifyErrorReason(err)).Inc()
}

// ObserveGatewayCall records latency of an outbound gateway call. A non-empty
// code marks the call as failed.
func (m *PaymentMetrics) ObserveGatewayCall(operation, code string, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if code != "" {
		result = "error"
		if m.gatewayErrors != nil {
			m.gatewayErrors.WithLabelValues(operation, code).Inc()
		}
	}
	if m.gatewayDuration != nil {
		m.gatewayDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// ClassifyErrorReason maps processing errors to low-cardinality reasons.
func ClassifyErrorReason(err error) string {
	if err == nil {
		return ErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ErrorReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ErrorReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ErrorReasonUniqueViolation
	}
	if isDBError(err) {
		return ErrorReasonDB
	}
	return ErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "nclexprep"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
