package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/brujulacripto/creditledger/internal/account"
	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	"github.com/brujulacripto/creditledger/internal/authorization"
	"github.com/brujulacripto/creditledger/internal/checkout"
	checkoutdomain "github.com/brujulacripto/creditledger/internal/checkout/domain"
	"github.com/brujulacripto/creditledger/internal/cloudmetrics"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/observability"
	obsmiddleware "github.com/brujulacripto/creditledger/internal/observability/logger"
	obsmetrics "github.com/brujulacripto/creditledger/internal/observability/metrics"
	obstracing "github.com/brujulacripto/creditledger/internal/observability/tracing"
	"github.com/brujulacripto/creditledger/internal/payment"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/payment/receipt"
	"github.com/brujulacripto/creditledger/internal/ratelimit"
	"github.com/brujulacripto/creditledger/internal/usage"
	usagedomain "github.com/brujulacripto/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultHTTPAddr = ":8080"

var Module = fx.Module("http.server",
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	account.Module,
	usage.Module,
	payment.Module,
	checkout.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	if origins := cfg.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			ExposeHeaders:    []string{"X-Request-Id", "Retry-After", "X-Rate-Limited-Reason"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
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

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	authzSvc     authorization.Service
	accountSvc   accountdomain.Service
	usageSvc     usagedomain.Service
	paymentSvc   paymentdomain.Service
	webhookSvc   paymentdomain.WebhookService
	checkoutSvc  checkoutdomain.Service
	receipts     *receipt.Renderer
	pricing      *config.PricingConfigHolder
	obsMetrics   *obsmetrics.Metrics
	usageLimiter *ratelimit.UsageActionLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	AuthzSvc     authorization.Service
	AccountSvc   accountdomain.Service
	UsageSvc     usagedomain.Service
	PaymentSvc   paymentdomain.Service
	WebhookSvc   paymentdomain.WebhookService
	CheckoutSvc  checkoutdomain.Service
	Receipts     *receipt.Renderer
	Pricing      *config.PricingConfigHolder
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
	UsageLimiter *ratelimit.UsageActionLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		authzSvc:     p.AuthzSvc,
		accountSvc:   p.AccountSvc,
		usageSvc:     p.UsageSvc,
		paymentSvc:   p.PaymentSvc,
		webhookSvc:   p.WebhookSvc,
		checkoutSvc:  p.CheckoutSvc,
		receipts:     p.Receipts,
		pricing:      p.Pricing,
		obsMetrics:   p.ObsMetrics,
		usageLimiter: p.UsageLimiter,
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/pricing/quote", s.GetPricingQuote)

	// -------- Payment Webhooks --------
	v1.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.AuthRequired())

	// -------- Accounts --------
	api.POST("/accounts", s.authorize(authorization.ObjectAccount, authorization.ActionAccountOpen), s.OpenAccount)
	api.DELETE("/accounts/me", s.authorize(authorization.ObjectAccount, authorization.ActionAccountClose), s.CloseAccount)
	api.GET("/balance", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceView), s.GetOwnBalance)
	api.GET("/accounts/:userId/balance", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceViewAny), s.GetAccountBalance)

	// -------- Usage --------
	api.POST("/usage/actions",
		s.authorize(authorization.ObjectUsage, authorization.ActionUsageApply),
		s.UsageActionRateLimit(),
		s.ApplyUsageAction,
	)
	api.GET("/usage/sessions/:sessionId", s.authorize(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsageSession)
	api.GET("/usage/events", s.authorize(authorization.ObjectUsage, authorization.ActionUsageView), s.ListUsageEvents)

	// -------- Payments --------
	api.POST("/payments/reconcile", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentReconcile), s.ReconcilePayment)
	api.GET("/payments/:reference/receipt", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentReceipt), s.GetPaymentReceipt)

	// -------- Checkout --------
	api.POST("/checkout/sessions", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutCreate), s.CreateCheckoutSession)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
