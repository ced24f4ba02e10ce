package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/nclexprep/internal/observability/metrics"
	"github.com/smallbiznis/nclexprep/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PaymentConfirmation is what the buyer is told after a successful payment.
// Amount is in minor units.
type PaymentConfirmation struct {
	UserID        string
	Email         string
	OrderID       string
	PlanType      subscriptiondomain.PlanType
	PlanName      string
	Amount        int64
	Currency      string
	PaymentMethod string
	ExpiresAt     *time.Time
	AutoRenew     bool
}

type Notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, confirmation PaymentConfirmation) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Email      email.Provider
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type EmailNotifier struct {
	log        *zap.Logger
	email      email.Provider
	obsMetrics *metrics.Metrics
}

func NewEmailNotifier(p Params) Notifier {
	return &EmailNotifier{
		log:        p.Log.Named("payment.notification"),
		email:      p.Email,
		obsMetrics: p.ObsMetrics,
	}
}

func (n *EmailNotifier) NotifyPaymentConfirmed(ctx context.Context, c PaymentConfirmation) error {
	address := strings.TrimSpace(c.Email)
	if address == "" {
		n.obsMetrics.RecordNotification(ctx, "skipped")
		return errors.New("notification_recipient_missing")
	}

	data := map[string]interface{}{
		"order_id":       c.OrderID,
		"plan_name":      c.PlanName,
		"currency":       c.Currency,
		"amount_display": formatMinor(c.Amount),
		"payment_method": c.PaymentMethod,
		"auto_renew":     c.AutoRenew,
	}
	if c.ExpiresAt != nil {
		data["expires_at"] = c.ExpiresAt.UTC().Format("January 2, 2006")
	}

	if err := n.email.SendTemplate(ctx, []string{address}, email.TemplatePaymentConfirmation, data); err != nil {
		n.obsMetrics.RecordNotification(ctx, "failed")
		return fmt.Errorf("send payment confirmation: %w", err)
	}

	n.obsMetrics.RecordNotification(ctx, "sent")
	n.log.Info("payment confirmation sent",
		zap.String("order_id", c.OrderID),
		zap.String("user_id", c.UserID),
		zap.String("plan", string(c.PlanType)),
		zap.Int64("amount", c.Amount),
	)
	return nil
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
