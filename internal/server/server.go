package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/nclexprep/internal/clock"
	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/observability"
	obsmiddleware "github.com/smallbiznis/nclexprep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nclexprep/internal/observability/metrics"
	obstracing "github.com/smallbiznis/nclexprep/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/nclexprep/internal/order/domain"
	"github.com/smallbiznis/nclexprep/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, gatherer)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// CheckoutService is the checkout surface the handlers depend on.
type CheckoutService interface {
	CreateInvoice(ctx context.Context, identity checkout.Identity, planType string) (*checkout.CheckoutResult, error)
	GetOrderStatus(ctx context.Context, identity checkout.Identity, orderID string) (*checkout.OrderView, error)
	ListOrders(ctx context.Context, identity checkout.Identity, limit int) ([]orderdomain.Order, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	clock           clock.Clock
	tokens          *tokenVerifier
	checkoutSvc     CheckoutService
	webhookSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Clock           clock.Clock
	CheckoutSvc     *checkout.Service
	WebhookSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		clock:           p.Clock,
		tokens:          newTokenVerifier(p.Cfg.AuthJWTSecret, p.Clock),
		checkoutSvc:     p.CheckoutSvc,
		webhookSvc:      p.WebhookSvc,
		subscriptionSvc: p.SubscriptionSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Checkout --------
	payments := api.Group("/payments", s.AuthRequired())
	{
		payments.POST("/create-invoice", s.CreateInvoice)
		payments.GET("/orders", s.ListOrders)
		payments.GET("/orders/:orderId", s.GetOrder)
	}

	// -------- Subscription --------
	subscription := api.Group("/subscription", s.AuthRequired())
	{
		subscription.GET("", s.GetSubscription)
		subscription.POST("/cancel-auto-renew", s.CancelAutoRenew)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "Not Found", Message: "route not found"})
	})
}
