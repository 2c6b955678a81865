package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound values in span statements (dev only)
	SlowQueryThresh time.Duration // spans slower than this get a slow_query event
	DBName          string
}

// RegisterDBTracing installs otelgorm on db plus a callback that marks slow
// and failed statements on the active span. The service only reads, so only
// the query, row and raw chains are instrumented for timing.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(cfg.DBName),
		otelgorm.WithAttributes(attribute.String("db.system", "mssql")),
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	t := &slowQueryTracker{threshold: cfg.SlowQueryThresh}
	if err := db.Callback().Query().Before("gorm:query").Register("salesplan:before_query", t.before); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("salesplan:after_query", t.after); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("salesplan:before_row", t.before); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("salesplan:after_row", t.after); err != nil {
		return err
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register("salesplan:before_raw", t.before); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register("salesplan:after_raw", t.after); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

type startKey struct{}

type slowQueryTracker struct {
	threshold time.Duration
}

func (t *slowQueryTracker) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, startKey{}, time.Now())
	}
}

func (t *slowQueryTracker) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok || t.threshold <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed > t.threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", t.threshold.Milliseconds()),
		))
	}
}
