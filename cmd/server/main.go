package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/app"
	"github.com/salesplan/backend/internal/infrastructure/auth"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/telemetry"
	"github.com/salesplan/backend/internal/interfaces/http/handler"
	"github.com/salesplan/backend/internal/interfaces/http/middleware"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting sales plan backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", Version),
	)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	ctx := context.Background()
	svc, err := app.New(ctx, cfg, log, app.Options{
		Metrics:        metrics,
		Tracing:        true,
		ServiceVersion: Version,
	})
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error("Error during cleanup", zap.Error(err))
		}
	}()

	var jwtService *auth.JWTService
	if cfg.JWT.Enabled {
		jwtService = auth.NewJWTService(cfg.JWT)
	} else {
		log.Warn("API authentication is disabled")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine, stopLimiters := buildEngine(engineDeps{
		Config:  cfg,
		Logger:  log,
		JWT:     jwtService,
		Metrics: metrics,
		Handlers: handlers{
			system:    handler.NewSystemHandler(cfg.App.Name, Version, handler.WithDatabase(svc.DB, 2*time.Second)),
			salesPlan: handler.NewSalesPlanHandler(svc.Plans, svc.Audits, svc.Exports),
			assistant: handler.NewAssistantHandler(svc.Assistant),
		},
	})
	defer stopLimiters()

	srv := newHTTPServer(cfg, engine)

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}
