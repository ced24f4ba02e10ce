package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/nclexprep/internal/clock"
	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/observability/logger"
	orderdomain "github.com/smallbiznis/nclexprep/internal/order/domain"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	"github.com/smallbiznis/nclexprep/internal/payment/notification"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultFailureCode = "PAYMENT_FAILED"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Catalog         *config.PlanCatalogHolder
	OrderRepo       orderdomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	Notifier        notification.Notifier `optional:"true"`
}

// Service applies verified invoice events to orders and subscriptions.
type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	catalog         *config.PlanCatalogHolder
	orderRepo       orderdomain.Repository
	subscriptionSvc subscriptiondomain.Service
	notifier        notification.Notifier
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		clock:           p.Clock,
		catalog:         p.Catalog,
		orderRepo:       p.OrderRepo,
		subscriptionSvc: p.SubscriptionSvc,
		notifier:        p.Notifier,
	}
}

// ApplyEvent reconciles one invoice event. It returns ErrOrderNotFound when the
// event references no known order. Every other error leaves the order and the
// subscription as they were.
func (s *Service) ApplyEvent(ctx context.Context, event *paymentdomain.WebhookEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidPayload
	}
	externalID := strings.TrimSpace(event.ExternalID)

	order, err := s.orderRepo.FindByOrderID(ctx, s.db, externalID)
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return paymentdomain.ErrOrderNotFound
	}

	log := logger.WithUser(logger.WithContext(ctx, s.log), order.UserID).With(
		zap.String("order_id", order.OrderID),
		zap.String("webhook_id", event.WebhookID),
		zap.String("invoice_id", event.InvoiceID),
	)

	if event.Status == paymentdomain.EventStatusUnknown {
		log.Warn("webhook.unhandled_status", zap.String("raw_status", event.RawStatus))
		return nil
	}

	now := s.clock.Now()
	var confirmation *notification.PaymentConfirmation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orderRepo.FindByOrderIDForUpdate(ctx, tx, order.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if locked == nil {
			return paymentdomain.ErrOrderNotFound
		}
		if locked.Status.IsTerminal() {
			log.Info("webhook.order_already_final",
				zap.String("status", string(locked.Status)),
				zap.String("event_status", string(event.Status)),
			)
			return nil
		}

		switch event.Status {
		case paymentdomain.EventStatusPaid:
			confirmation, err = s.applyPaid(ctx, tx, log, locked, event, now)
			return err
		case paymentdomain.EventStatusExpired:
			if _, err := s.orderRepo.MarkExpired(ctx, tx, locked.OrderID, now); err != nil {
				return fmt.Errorf("mark expired: %w", err)
			}
			log.Info("webhook.order_expired")
			return nil
		case paymentdomain.EventStatusFailed:
			code := strings.TrimSpace(event.FailureCode)
			if code == "" {
				code = defaultFailureCode
			}
			if _, err := s.orderRepo.MarkFailed(ctx, tx, locked.OrderID, code, now); err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			log.Info("webhook.order_failed", zap.String("failure_code", code))
			return nil
		}
		return nil
	})
	if err != nil {
		return err
	}

	if confirmation != nil {
		s.notify(ctx, log, *confirmation)
	}
	return nil
}

func (s *Service) applyPaid(
	ctx context.Context,
	tx *gorm.DB,
	log *zap.Logger,
	order *orderdomain.Order,
	event *paymentdomain.WebhookEvent,
	now time.Time,
) (*notification.PaymentConfirmation, error) {
	// paid_at is recorded on the order only; a clock-skewed future value is clamped.
	paidAt := now
	if event.PaidAt != nil && !event.PaidAt.IsZero() && event.PaidAt.Before(now) {
		paidAt = event.PaidAt.UTC()
	}
	paidAmount := order.Amount
	if event.PaidAmount != nil {
		paidAmount = *event.PaidAmount
		if paidAmount != order.Amount {
			log.Warn("webhook.paid_amount_mismatch",
				zap.Int64("amount", order.Amount),
				zap.Int64("paid_amount", paidAmount),
			)
		}
	}

	if _, err := s.orderRepo.SupersedeLapsed(ctx, tx, order.UserID, now); err != nil {
		return nil, fmt.Errorf("supersede lapsed orders: %w", err)
	}
	active, err := s.orderRepo.FindActivePaidByUser(ctx, tx, order.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("find active paid order: %w", err)
	}
	if active != nil && active.OrderID != order.OrderID {
		if _, err := s.orderRepo.MarkPaid(ctx, tx, order.OrderID, orderdomain.PaidUpdate{
			PaidAmount:    paidAmount,
			PaidAt:        paidAt,
			PaymentMethod: event.PaymentMethod,
			Superseded:    true,
		}, now); err != nil {
			return nil, fmt.Errorf("mark paid: %w", err)
		}
		log.Error("webhook.duplicate_purchase",
			zap.String("active_order_id", active.OrderID),
			zap.Int64("paid_amount", paidAmount),
		)
		return nil, nil
	}

	// entitlement is anchored at processing time, never at the provider paid_at
	activation, err := subscriptiondomain.ComputeActivation(order.PlanType, s.catalog.Get(), now)
	if err != nil {
		return nil, fmt.Errorf("compute activation: %w", err)
	}

	updated, err := s.orderRepo.MarkPaid(ctx, tx, order.OrderID, orderdomain.PaidUpdate{
		PaidAmount:           paidAmount,
		PaidAt:               paidAt,
		PaymentMethod:        event.PaymentMethod,
		EntitlementExpiresAt: &activation.ExpiresAt,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	if !updated {
		return nil, nil
	}

	if err := s.subscriptionSvc.Activate(ctx, tx, order.UserID, activation); err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	log.Info("webhook.subscription_activated",
		zap.String("plan", string(activation.Plan)),
		zap.Time("expires_at", activation.ExpiresAt),
		zap.Bool("auto_renew", activation.AutoRenew),
	)

	planName := string(order.PlanType)
	if plan, ok := s.catalog.Get().Lookup(string(order.PlanType)); ok && plan.Name != "" {
		planName = plan.Name
	}
	return &notification.PaymentConfirmation{
		UserID:        order.UserID,
		Email:         order.UserEmail,
		OrderID:       order.OrderID,
		PlanType:      order.PlanType,
		PlanName:      planName,
		Amount:        order.Amount,
		Currency:      order.Currency,
		PaymentMethod: event.PaymentMethod,
		ExpiresAt:     &activation.ExpiresAt,
		AutoRenew:     activation.AutoRenew,
	}, nil
}

// notify never fails the reconciliation.
func (s *Service) notify(ctx context.Context, log *zap.Logger, confirmation notification.PaymentConfirmation) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPaymentConfirmed(ctx, confirmation); err != nil {
		log.Warn("webhook.notification_failed", zap.Error(err))
	}
}
