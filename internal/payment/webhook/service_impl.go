package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nclexprep/internal/clock"
	"github.com/smallbiznis/nclexprep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nclexprep/internal/observability/metrics"
	"github.com/smallbiznis/nclexprep/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	paymentservice "github.com/smallbiznis/nclexprep/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           paymentdomain.Repository
	Adapters       *adapters.Registry
	PaymentSvc     *paymentservice.Service
	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	PaymentMetrics *obsmetrics.PaymentMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           paymentdomain.Repository
	adapters       *adapters.Registry
	paymentSvc     *paymentservice.Service
	obsMetrics     *obsmetrics.Metrics
	paymentMetrics *obsmetrics.PaymentMetrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.webhook"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		adapters:       p.Adapters,
		paymentSvc:     p.PaymentSvc,
		obsMetrics:     p.ObsMetrics,
		paymentMetrics: p.PaymentMetrics,
	}
}

// HandleWebhook authenticates, records and reconciles one provider callback.
// Nothing touches the database before the callback is authenticated. The
// ledger entry is marked processed only after reconciliation succeeded, so a
// failed delivery is retried by the provider.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Result, error) {
	start := s.clock.Now()
	provider = strings.ToLower(strings.TrimSpace(provider))
	defer func() {
		s.paymentMetrics.ObserveWebhookDuration(provider, s.clock.Now().Sub(start))
	}()

	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		log.Warn("webhook.unknown_provider")
		return "", err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeUnauthorized)
		log.Warn("webhook.unauthorized", zap.Error(err))
		return "", paymentdomain.ErrUnauthorized
	}

	if !json.Valid(payload) {
		s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeInvalidPayload)
		return "", fmt.Errorf("%w: %w", paymentdomain.ErrInvalidRequest, paymentdomain.ErrInvalidPayload)
	}
	event, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeInvalidPayload)
		log.Warn("webhook.invalid_payload", zap.Error(err))
		return "", fmt.Errorf("%w: %w", paymentdomain.ErrInvalidRequest, err)
	}

	log = log.With(
		zap.String("webhook_id", event.WebhookID),
		zap.String("external_id", event.ExternalID),
		zap.String("status", string(event.Status)),
	)
	log.Info("webhook.received")

	entry := &paymentdomain.WebhookLog{
		ID:         s.genID.Generate(),
		Provider:   provider,
		WebhookID:  event.WebhookID,
		EventType:  event.EventType,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: start,
	}
	inserted, err := s.repo.InsertLog(ctx, s.db, entry)
	if err != nil {
		return "", s.fail(log, provider, "insert webhook log", err)
	}
	stored := entry
	if !inserted {
		stored, err = s.repo.FindLog(ctx, s.db, provider, event.WebhookID)
		if err != nil {
			return "", s.fail(log, provider, "find webhook log", err)
		}
		if stored == nil {
			return "", s.fail(log, provider, "find webhook log", errors.New("webhook_log_missing"))
		}
		if stored.Processed {
			s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeDuplicate)
			log.Info("webhook.already_processed")
			return paymentdomain.ResultAlreadyProcessed, nil
		}
		log.Info("webhook.retrying_unprocessed")
	}

	if err := s.paymentSvc.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, paymentdomain.ErrOrderNotFound) {
			log.Warn("webhook.order_not_found")
			if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
				return "", s.fail(log, provider, "mark processed", err)
			}
			s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeOrderNotFound)
			return "", paymentdomain.ErrOrderNotFound
		}
		return "", s.fail(log, provider, "apply event", err)
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return "", s.fail(log, provider, "mark processed", err)
	}

	s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeProcessed)
	if inserted {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.EventType)
	}
	log.Info("webhook.processed")
	return paymentdomain.ResultProcessed, nil
}

func (s *Service) fail(log *zap.Logger, provider, step string, err error) error {
	s.paymentMetrics.IncWebhookOutcome(provider, obsmetrics.WebhookOutcomeProcessingFailed)
	s.paymentMetrics.IncWebhookFailure(provider, err)
	log.Error("webhook.processing_failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", paymentdomain.ErrProcessingFailed, step, err)
}
