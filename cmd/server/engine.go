package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/infrastructure/auth"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/telemetry"
	"github.com/salesplan/backend/internal/interfaces/http/handler"
	"github.com/salesplan/backend/internal/interfaces/http/middleware"
	"github.com/salesplan/backend/internal/interfaces/http/router"
)

// defaultMaxBodySize applies when no body limit is configured
const defaultMaxBodySize = 1 << 20

// handlers are the HTTP endpoints mounted by buildEngine
type handlers struct {
	system    *handler.SystemHandler
	salesPlan *handler.SalesPlanHandler
	assistant *handler.AssistantHandler
}

// engineDeps are the collaborators buildEngine wires together. JWT and
// Metrics are nil when disabled.
type engineDeps struct {
	Config   *config.Config
	Logger   *zap.Logger
	JWT      *auth.JWTService
	Metrics  *telemetry.Metrics
	Handlers handlers
}

// buildEngine assembles middleware and routes. The returned func stops the
// rate limiters' cleanup goroutines.
func buildEngine(deps engineDeps) (*gin.Engine, func()) {
	cfg := deps.Config
	log := deps.Logger

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.ServiceName = cfg.Telemetry.ServiceName
	tracingCfg.Enabled = cfg.Telemetry.Enabled

	maxBody := cfg.HTTP.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	var observer middleware.HTTPObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(tracingCfg),
		middleware.HTTPMetrics(observer),
		logger.GinMiddleware(log, "/health", "/metrics"),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(maxBody),
	)

	var limiters []*middleware.RateLimiter
	stop := func() {
		for _, l := range limiters {
			l.Close()
		}
	}

	h := deps.Handlers
	engine.GET("/health", h.system.Health)
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	engine.NoRoute(func(c *gin.Context) {
		h.system.NotFound(c, "Route not found")
	})

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	if deps.JWT != nil {
		r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService: deps.JWT,
			Logger:     log,
		}))
	}
	r.Use(middleware.SpanAttributes())
	if cfg.HTTP.RateLimitEnabled {
		general := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		limiters = append(limiters, general)
		r.Use(middleware.RateLimit(general))
	}

	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", h.system.GetSystemInfo)
	systemRoutes.GET("/ping", h.system.Ping)

	salesPlanRoutes := router.NewDomainGroup("sales-plan", "/sales-plan")
	salesPlanRoutes.Use(middleware.RequireScope(auth.ScopeRead))
	salesPlanRoutes.GET("/records", h.salesPlan.ListRecords)
	salesPlanRoutes.GET("/records/lookup", h.salesPlan.GetRecord)
	salesPlanRoutes.GET("/columns", h.salesPlan.ListColumns)
	salesPlanRoutes.GET("/audit", h.salesPlan.Audit)
	salesPlanRoutes.GET("/export", middleware.RequireScope(auth.ScopeExport), h.salesPlan.Export)

	assistantRoutes := router.NewDomainGroup("assistant", "/assistant")
	assistantRoutes.POST("/check", middleware.RequireScope(auth.ScopeRead), h.assistant.Check)
	askChain := []gin.HandlerFunc{middleware.RequireScope(auth.ScopeAsk)}
	if cfg.HTTP.RateLimitEnabled && cfg.HTTP.AskRateLimit > 0 {
		ask := middleware.NewRateLimiterPerSecond(cfg.HTTP.AskRateLimit, cfg.HTTP.AskRateBurst)
		limiters = append(limiters, ask)
		askChain = append(askChain, middleware.RateLimit(ask))
	}
	assistantRoutes.POST("/ask", append(askChain, h.assistant.Ask)...)

	r.Register(systemRoutes).
		Register(salesPlanRoutes).
		Register(assistantRoutes)
	r.Setup()

	for _, group := range []*router.DomainGroup{systemRoutes, salesPlanRoutes, assistantRoutes} {
		for _, route := range group.Routes(r.Prefix()) {
			log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}

	return engine, stop
}

// newHTTPServer applies the configured timeouts to engine
func newHTTPServer(cfg *config.Config, engine http.Handler) *http.Server {
	return &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
}
