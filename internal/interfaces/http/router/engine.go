package router

import (
	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"github.com/erp/salesrecon/internal/interfaces/http/handler"
	"github.com/erp/salesrecon/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// pointOfSaleParam is the query parameter naming a shop
const pointOfSaleParam = "ps"

// Handlers are the HTTP handlers the API serves
type Handlers struct {
	Health *handler.HealthHandler
	Report *handler.ReportHandler
	Close  *handler.CloseSessionHandler
}

// Options configures the middleware stack
type Options struct {
	HTTP          config.HTTPConfig
	Security      middleware.SecurityConfig
	Tracing       middleware.TracingConfig
	MeterProvider *telemetry.MeterProvider
	// JWT enables bearer authentication on API routes; nil leaves them open
	JWT    *middleware.JWTMiddlewareConfig
	Logger *zap.Logger
}

// New builds the engine with the full middleware stack and every route.
// The returned stop function releases the rate limiter's janitor.
//
// Middleware order:
//  1. RequestID - Generate/propagate request ID
//  2. Recovery - Catch panics
//  3. Logger - Log requests
//  4. Tracing, span status and HTTP metrics
//  5. Security headers and CORS
//  6. BodyLimit - Limit request body size
//  7. RateLimit - Apply rate limiting (if enabled)
//
// API routes additionally run JWT authentication and the point of sale check.
func New(opts Options, h Handlers) (*gin.Engine, func()) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(opts.Tracing))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: opts.MeterProvider,
		Enabled:       opts.MeterProvider != nil,
	}))
	engine.Use(middleware.SecureWithConfig(opts.Security))
	engine.Use(middleware.CORS(opts.HTTP))
	engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))

	stop := func() {}
	if opts.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Requests: opts.HTTP.RateLimitRequests,
			Window:   opts.HTTP.RateLimitWindow,
			Burst:    opts.HTTP.RateLimitBurst,
		})
		engine.Use(middleware.RateLimit(limiter))
		stop = limiter.Stop
		log.Info("Rate limiting enabled",
			zap.Int("requests", opts.HTTP.RateLimitRequests),
			zap.Duration("window", opts.HTTP.RateLimitWindow),
		)
	}

	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	if opts.JWT != nil {
		jwtConfig := *opts.JWT
		if jwtConfig.Logger == nil {
			jwtConfig.Logger = log
		}
		r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	}
	r.Use(middleware.TracingAttributeInjector())
	r.Use(middleware.RequirePointOfSale(pointOfSaleParam))

	for _, group := range Groups(h) {
		r.Register(group)
	}
	r.Setup()

	return engine, stop
}

// Groups returns the API route groups for the given handlers. Nil handlers
// contribute no routes.
func Groups(h Handlers) []*DomainGroup {
	var groups []*DomainGroup

	if h.Health != nil {
		systemRoutes := NewDomainGroup("system", "/system")
		systemRoutes.GET("/info", h.Health.SystemInfo)
		groups = append(groups, systemRoutes)
	}

	if h.Report != nil {
		shopRoutes := NewDomainGroup("points-of-sale", "/points-of-sale")
		shopRoutes.GET("", h.Report.ListPointsOfSale)

		reportRoutes := NewDomainGroup("reports", "/reports")
		reportRoutes.GET("/sales", h.Report.GetSalesReport)
		reportRoutes.GET("/sales/summary", h.Report.GetSalesSummary)
		reportRoutes.GET("/sales/latest", h.Report.GetLatestReport)

		groups = append(groups, shopRoutes, reportRoutes)
	}

	if h.Close != nil {
		invoiceRoutes := NewDomainGroup("invoices", "/invoices")

		sessions := invoiceRoutes.Group("close-sessions", "/close-sessions")
		sessions.POST("", h.Close.Open)
		sessions.GET("/:id", h.Close.Get)
		sessions.DELETE("/:id", h.Close.Cancel)
		sessions.PUT("/:id/entry", h.Close.Enter)
		sessions.POST("/:id/submit", h.Close.Submit)

		invoiceRoutes.GET("/close-attempts", h.Close.ListAttempts)
		invoiceRoutes.GET("/:num_fact/close-attempts", h.Close.History)
		invoiceRoutes.PUT("/:num_fact/return-to-cart", h.Close.ReturnToCart)
		invoiceRoutes.PUT("/:num_fact/seller", h.Close.UpdateSeller)

		groups = append(groups, invoiceRoutes)
	}

	return groups
}
