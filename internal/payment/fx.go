package payment

import (
	"github.com/smallbiznis/nclexprep/internal/payment/adapters"
	"github.com/smallbiznis/nclexprep/internal/payment/adapters/xendit"
	"github.com/smallbiznis/nclexprep/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	"github.com/smallbiznis/nclexprep/internal/payment/notification"
	"github.com/smallbiznis/nclexprep/internal/payment/repository"
	paymentservice "github.com/smallbiznis/nclexprep/internal/payment/service"
	"github.com/smallbiznis/nclexprep/internal/payment/webhook"
	"github.com/smallbiznis/nclexprep/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(xendit.NewClient),
	fx.Provide(func(c *xendit.Client) paymentdomain.Gateway { return c }),
	fx.Provide(xendit.NewAdapter),
	fx.Provide(func(xenditAdapter *xendit.Adapter) *adapters.Registry {
		return adapters.NewRegistry(xenditAdapter)
	}),
	fx.Provide(func(l *ratelimit.CheckoutLimiter) checkout.Limiter {
		if l == nil {
			return nil
		}
		return l
	}),
	fx.Provide(notification.NewEmailNotifier),
	fx.Provide(paymentservice.NewService),
	fx.Provide(checkout.NewService),
	fx.Provide(webhook.NewService),
)
