package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nclexprep/internal/clock"
	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nclexprep/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/nclexprep/internal/order/domain"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 20

// Identity is the authenticated buyer.
type Identity struct {
	UserID string
	Email  string
}

// CheckoutResult is returned to the client after an invoice was issued.
// Amount is in minor units.
type CheckoutResult struct {
	OrderID     string                      `json:"orderId"`
	CheckoutURL string                      `json:"checkoutUrl"`
	PlanType    subscriptiondomain.PlanType `json:"planType"`
	Amount      int64                       `json:"amount"`
	InvoiceID   string                      `json:"invoiceId"`
	ExpiresAt   *time.Time                  `json:"expiresAt,omitempty"`
}

// OrderView is an order together with the provider's view of its invoice,
// when one could be fetched.
type OrderView struct {
	Order   *orderdomain.Order           `json:"order"`
	Invoice *paymentdomain.InvoiceStatus `json:"invoice,omitempty"`
}

// Limiter guards checkout against bursts and concurrent attempts per user.
type Limiter interface {
	AllowCheckout(ctx context.Context, userID string) (bool, error)
	TryLockCheckout(ctx context.Context, userID string) (string, bool, error)
	ReleaseCheckout(ctx context.Context, userID, token string) error
}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Catalog         *config.PlanCatalogHolder
	OrderRepo       orderdomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	Gateway         paymentdomain.Gateway
	Limiter         Limiter             `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	catalog         *config.PlanCatalogHolder
	orderRepo       orderdomain.Repository
	subscriptionSvc subscriptiondomain.Service
	gateway         paymentdomain.Gateway
	limiter         Limiter
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.checkout"),
		genID:           p.GenID,
		clock:           p.Clock,
		catalog:         p.Catalog,
		orderRepo:       p.OrderRepo,
		subscriptionSvc: p.SubscriptionSvc,
		gateway:         p.Gateway,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}
}

// CreateInvoice opens a pending order for the plan and issues a hosted
// invoice for it. A gateway failure marks the order failed and is returned
// wrapped in ErrPaymentGateway.
func (s *Service) CreateInvoice(ctx context.Context, identity Identity, rawPlanType string) (*CheckoutResult, error) {
	identity.UserID = strings.TrimSpace(identity.UserID)
	identity.Email = strings.TrimSpace(identity.Email)
	if identity.UserID == "" || identity.Email == "" {
		return nil, paymentdomain.ErrUnauthorized
	}

	planType, ok := subscriptiondomain.ParsePlanType(rawPlanType)
	if !ok {
		return nil, fmt.Errorf("%w: plan must be %s or %s", paymentdomain.ErrInvalidPlan,
			subscriptiondomain.PlanMonthlyPremium, subscriptiondomain.PlanAnnualPremium)
	}
	catalog := s.catalog.Get()
	plan, ok := catalog.Lookup(string(planType))
	if !ok {
		return nil, fmt.Errorf("%w: plan %s is not offered", paymentdomain.ErrInvalidPlan, planType)
	}

	log := logger.WithUser(logger.WithContext(ctx, s.log), identity.UserID).With(zap.String("plan", string(planType)))

	release, err := s.guard(ctx, log, identity.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	if err := s.ensureNoActiveSubscription(ctx, identity.UserID, now); err != nil {
		return nil, err
	}

	order := &orderdomain.Order{
		ID:          s.genID.Generate(),
		OrderID:     orderdomain.NewOrderID(now),
		UserID:      identity.UserID,
		UserEmail:   identity.Email,
		PlanType:    planType,
		IsRecurring: planType.IsRecurring(),
		Amount:      plan.Amount,
		Currency:    catalog.Currency,
		Status:      orderdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orderRepo.Insert(ctx, s.db, order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	log = log.With(zap.String("order_id", order.OrderID))
	log.Info("checkout.initiated", zap.Int64("amount", order.Amount))

	invoice, err := s.gateway.CreateInvoice(ctx, paymentdomain.CreateInvoiceRequest{
		OrderID:   order.OrderID,
		PlanType:  planType,
		UserEmail: identity.Email,
	})
	if err != nil {
		return nil, s.compensate(ctx, log, order, err)
	}

	if err := s.orderRepo.AttachInvoice(ctx, s.db, order.OrderID, invoice.ID, invoice.CheckoutURL, invoice.ExpiresAt, s.clock.Now()); err != nil {
		s.obsMetrics.RecordInvoice(ctx, string(planType), "error")
		return nil, fmt.Errorf("attach invoice: %w", err)
	}

	s.obsMetrics.RecordInvoice(ctx, string(planType), "created")
	log.Info("checkout.invoice_created", zap.String("invoice_id", invoice.ID))

	return &CheckoutResult{
		OrderID:     order.OrderID,
		CheckoutURL: invoice.CheckoutURL,
		PlanType:    planType,
		Amount:      order.Amount,
		InvoiceID:   invoice.ID,
		ExpiresAt:   invoice.ExpiresAt,
	}, nil
}

// GetOrderStatus returns the caller's order. While the order is pending the
// live invoice status is attached; provider errors only degrade the view.
func (s *Service) GetOrderStatus(ctx context.Context, identity Identity, orderID string) (*OrderView, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return nil, paymentdomain.ErrUnauthorized
	}
	order, err := s.orderRepo.FindByOrderID(ctx, s.db, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != strings.TrimSpace(identity.UserID) {
		return nil, paymentdomain.ErrOrderNotFound
	}

	view := &OrderView{Order: order}
	if order.Status != orderdomain.StatusPending || order.ProviderInvoiceID == nil {
		return view, nil
	}

	status, err := s.gateway.CheckInvoiceStatus(ctx, *order.ProviderInvoiceID)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("checkout.invoice_status_unavailable",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return view, nil
	}
	view.Invoice = status
	return view, nil
}

func (s *Service) ListOrders(ctx context.Context, identity Identity, limit int) ([]orderdomain.Order, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return nil, paymentdomain.ErrUnauthorized
	}
	if limit <= 0 || limit > 100 {
		limit = defaultListLimit
	}
	return s.orderRepo.ListByUser(ctx, s.db, userID, limit)
}

func (s *Service) ensureNoActiveSubscription(ctx context.Context, userID string, now time.Time) error {
	active, err := s.subscriptionSvc.HasActive(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if active {
		return paymentdomain.ErrSubscriptionExists
	}
	paid, err := s.orderRepo.FindActivePaidByUser(ctx, s.db, userID, now)
	if err != nil {
		return fmt.Errorf("check paid orders: %w", err)
	}
	if paid != nil {
		return paymentdomain.ErrSubscriptionExists
	}
	return nil
}

// guard applies the optional per-user throttle and lock. Limiter outages are
// logged and do not block checkout.
func (s *Service) guard(ctx context.Context, log *zap.Logger, userID string) (func(), error) {
	noop := func() {}
	if s.limiter == nil {
		return noop, nil
	}

	allowed, err := s.limiter.AllowCheckout(ctx, userID)
	if err != nil {
		log.Warn("checkout.rate_limit_unavailable", zap.Error(err))
		return noop, nil
	}
	if !allowed {
		s.obsMetrics.RecordCheckoutLimited(ctx, "rate")
		return nil, paymentdomain.ErrRateLimited
	}

	token, ok, err := s.limiter.TryLockCheckout(ctx, userID)
	if err != nil {
		log.Warn("checkout.lock_unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		s.obsMetrics.RecordCheckoutLimited(ctx, "in_progress")
		return nil, paymentdomain.ErrCheckoutInProgress
	}
	return func() {
		if err := s.limiter.ReleaseCheckout(context.WithoutCancel(ctx), userID, token); err != nil {
			log.Warn("checkout.lock_release_failed", zap.Error(err))
		}
	}, nil
}

func (s *Service) compensate(ctx context.Context, log *zap.Logger, order *orderdomain.Order, gatewayErr error) error {
	code := paymentdomain.GatewayCodeAPI
	var gwErr *paymentdomain.GatewayError
	if errors.As(gatewayErr, &gwErr) && gwErr.Code != "" {
		code = gwErr.Code
	}

	if _, err := s.orderRepo.MarkFailed(context.WithoutCancel(ctx), s.db, order.OrderID, code, s.clock.Now()); err != nil {
		log.Error("checkout.mark_failed_error", zap.Error(err))
	}
	s.obsMetrics.RecordInvoice(ctx, string(order.PlanType), "gateway_error")
	log.Error("checkout.gateway_failed",
		zap.String("failure_code", code),
		zap.Error(gatewayErr),
	)
	return fmt.Errorf("%w: %w", paymentdomain.ErrPaymentGateway, gatewayErr)
}
