// Package app wires configuration into the services shared by the HTTP server
// and the command-line client.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/application/assistant"
	appsalesplan "github.com/salesplan/backend/internal/application/salesplan"
	"github.com/salesplan/backend/internal/domain/nlquery"
	"github.com/salesplan/backend/internal/infrastructure/cache"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/llm"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
	"github.com/salesplan/backend/internal/infrastructure/telemetry"
)

// shutdownFlushTimeout bounds the final trace export on Close
const shutdownFlushTimeout = 5 * time.Second

// Options selects the optional parts of the container
type Options struct {
	// Metrics is set when the process exposes Prometheus metrics
	Metrics *telemetry.Metrics
	// Tracing installs the OTLP exporter, database spans and the Pyroscope
	// profiler when each is enabled in config
	Tracing bool
	// ServiceVersion is reported on traces
	ServiceVersion string
}

// App holds the connected services
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *persistence.Database
	Repo      *persistence.GormSalesPlanRepository
	Cache     cache.Store
	Plans     *appsalesplan.PlanService
	Audits    *appsalesplan.AuditService
	Exports   *appsalesplan.ExportService
	Assistant *assistant.Service
	Guard     *nlquery.Guard
	Metrics   *telemetry.Metrics
	Tracer    *telemetry.TracerProvider
	Profiler  *telemetry.Profiler
}

// New connects to the database and builds every service. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log, Metrics: opts.Metrics}

	if opts.Tracing {
		profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:           cfg.Telemetry.ProfilingEnabled,
			ServerAddress:     cfg.Telemetry.ProfilingServer,
			ApplicationName:   cfg.Telemetry.ServiceName,
			BasicAuthUser:     cfg.Telemetry.ProfilingUser,
			BasicAuthPassword: cfg.Telemetry.ProfilingPassword,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("init profiler: %w", err)
		}
		a.Profiler = profiler

		tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
			Enabled:           cfg.Telemetry.Enabled,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			SamplingRatio:     cfg.Telemetry.SamplingRatio,
			ServiceName:       cfg.Telemetry.ServiceName,
			ServiceVersion:    opts.ServiceVersion,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.Tracer = tp
		if profiler.IsEnabled() {
			tp.EnableSpanProfiles()
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.DB = db
	log.Info("Database connected", zap.String("dsn", cfg.Database.RedactedDSN()))

	if opts.Tracing {
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBName:          cfg.Database.DBName,
		}, log); err != nil {
			log.Warn("Database tracing unavailable", zap.Error(err))
		}
	}
	if opts.Metrics != nil {
		if sqlDB, err := db.DB.DB(); err == nil {
			if err := opts.Metrics.RegisterDBStats(sqlDB, cfg.Database.DBName); err != nil {
				log.Warn("Connection pool metrics unavailable", zap.Error(err))
			}
		}
	}

	a.Repo = persistence.NewGormSalesPlanRepository(db.DB, cfg.Database.Schema, cfg.Database.Table)

	store, err := cache.NewStore(cfg.Preview.Cache, cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cache.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = store

	planOpts := []appsalesplan.PlanServiceOption{
		appsalesplan.WithPreviewCache(store, cfg.Preview.CacheTTL),
		appsalesplan.WithDefaultLimit(cfg.Preview.DefaultLimit),
	}
	if opts.Metrics != nil {
		planOpts = append(planOpts, appsalesplan.WithMetrics(opts.Metrics))
	}
	a.Plans = appsalesplan.NewPlanService(a.Repo, log, planOpts...)
	a.Audits = appsalesplan.NewAuditService(a.Repo, log)
	a.Exports = appsalesplan.NewExportService(a.Repo)

	if err := a.buildAssistant(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildAssistant() error {
	cfg := a.Config
	table := nlquery.TableRef{Schema: cfg.Database.Schema, Table: cfg.Database.Table}

	synonyms := nlquery.DefaultSynonyms()
	if cfg.Assistant.SynonymsFile != "" {
		loaded, err := nlquery.LoadSynonymFile(cfg.Assistant.SynonymsFile)
		if err != nil {
			return fmt.Errorf("load synonyms: %w", err)
		}
		synonyms = loaded
	}

	a.Guard = NewGuard(cfg, a.Logger)

	var opts []assistant.Option
	if a.Metrics != nil {
		opts = append(opts, assistant.WithMetrics(a.Metrics))
	}

	client, err := llm.New(llm.Config{
		Provider:     cfg.LLM.Provider,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		APIKey:       cfg.LLM.APIKey,
		Timeout:      cfg.LLM.Timeout,
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryWaitMin: cfg.LLM.RetryWaitMin,
		RetryWaitMax: cfg.LLM.RetryWaitMax,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		TopLimit:     cfg.Assistant.TopLimit,
	}, a.Logger)
	if err != nil {
		return err
	}
	if client != nil {
		opts = append(opts, assistant.WithGenerator(client))
		a.Logger.Info("SQL generator enabled",
			zap.String("provider", client.Provider()),
			zap.String("model", cfg.LLM.Model),
		)
	} else {
		a.Logger.Info("No SQL generator configured, only templated questions will be answered")
	}

	a.Assistant = assistant.NewService(a.Repo, nlquery.NewRouter(synonyms), a.Guard, assistant.Config{
		MaxRows:        cfg.Assistant.MaxRows,
		TopLimit:       cfg.Assistant.TopLimit,
		QueryTimeout:   cfg.Assistant.QueryTimeout,
		SchemaCacheTTL: cfg.Assistant.SchemaCacheTTL,
		Table:          table,
	}, a.Logger, opts...)
	return nil
}

// NewGuard builds the SQL guard for the configured table. It needs no
// database connection.
func NewGuard(cfg *config.Config, log *zap.Logger) *nlquery.Guard {
	return nlquery.NewGuard(log,
		nlquery.WithTopLimit(cfg.Assistant.TopLimit),
		nlquery.WithObjects(cfg.Database.DBName, cfg.Database.Schema, cfg.Database.Table),
	)
}

// Close releases the cache, the database pool and the telemetry exporters
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		errs = append(errs, a.Tracer.Shutdown(ctx))
	}
	if a.Profiler != nil {
		errs = append(errs, a.Profiler.Stop())
	}
	return errors.Join(errs...)
}
