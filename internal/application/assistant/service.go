// Package assistant answers natural-language questions about the sales plan
// table with guarded, read-only SQL.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/domain/nlquery"
	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/logger"
)

// Sources of the executed SQL
const (
	SourceTemplate = "template"
	SourceLLM      = "llm"
)

// Ask outcomes reported to Metrics
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// SQLGenerator writes T-SQL for a question given the table schema
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question, schemaText string, synonyms map[string][]string) (string, error)
}

// Metrics receives assistant observations
type Metrics interface {
	ObserveAsk(source, outcome string)
	ObserveGuardRejection(reason string)
	ObserveGuardRepair()
	ObserveQuery(kind string, elapsed time.Duration)
}

// Config bounds what a question may cost
type Config struct {
	MaxRows        int
	TopLimit       int
	QueryTimeout   time.Duration
	SchemaCacheTTL time.Duration
	Table          nlquery.TableRef
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxRows:        500,
		TopLimit:       nlquery.DefaultTopLimit,
		QueryTimeout:   30 * time.Second,
		SchemaCacheTTL: 10 * time.Minute,
		Table:          nlquery.DefaultTable,
	}
}

// AskResult is the answer to one question
type AskResult struct {
	Question  string        `json:"question"`
	Source    string        `json:"source"`
	SQL       string        `json:"sql"`
	RawSQL    string        `json:"raw_sql,omitempty"`
	ChartType string        `json:"chart_type,omitempty"`
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	Truncated bool          `json:"truncated"`
	Elapsed   time.Duration `json:"elapsed"`
}

// CheckResult reports what the guard makes of a statement
type CheckResult struct {
	SQL      string   `json:"sql"`
	Repaired string   `json:"repaired"`
	Changed  bool     `json:"changed"`
	Valid    bool     `json:"valid"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Service routes questions to templates or the generator and runs the guarded SQL
type Service struct {
	repo      salesplan.Repository
	router    *nlquery.Router
	guard     *nlquery.Guard
	generator SQLGenerator
	metrics   Metrics
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	schemaMu   sync.Mutex
	schemaText string
	schemaAt   time.Time
}

// Option configures a Service
type Option func(*Service)

// WithGenerator sets the fallback SQL generator; without one only templated
// questions can be answered.
func WithGenerator(g SQLGenerator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithMetrics reports outcomes to m
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock replaces time.Now, which decides the current fiscal year
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new assistant Service
func NewService(repo salesplan.Repository, router *nlquery.Router, guard *nlquery.Guard, cfg Config, log *zap.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = def.MaxRows
	}
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = def.TopLimit
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.Table.Table == "" {
		cfg.Table = def.Table
	}
	if log == nil {
		log = zap.NewNop()
	}
	if router == nil {
		router = nlquery.NewRouter(nil)
	}
	if guard == nil {
		guard = nlquery.NewGuard(log, nlquery.WithTopLimit(cfg.TopLimit), nlquery.WithObjects(cfg.Table.Schema, cfg.Table.Table))
	}
	s := &Service{
		repo:   repo,
		router: router,
		guard:  guard,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasGenerator reports whether untemplated questions can be answered
func (s *Service) HasGenerator() bool {
	return s.generator != nil
}

// MaxRows returns the row cap applied to every answer
func (s *Service) MaxRows() int {
	return s.cfg.MaxRows
}

// Ask answers question. Nothing reaches the database unless the guard accepts
// the statement.
func (s *Service) Ask(ctx context.Context, question string) (*AskResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, shared.ErrInvalidInput.WithDetail("question is required")
	}
	log := logger.L(ctx).With(logger.Question(question))

	result := &AskResult{Question: question}
	if intent, ok := s.router.ParseQuestion(question, s.now()); ok {
		result.Source = SourceTemplate
		result.SQL = nlquery.BuildSQL(intent, s.cfg.Table, s.cfg.TopLimit)
		result.ChartType = nlquery.ChartFor(intent)
		log.Debug("Question matched template", zap.String("kind", string(intent.Kind)))
	} else {
		result.Source = SourceLLM
		if s.generator == nil {
			s.observeAsk(result.Source, OutcomeFailed)
			return nil, shared.ErrUpstreamUnavailable.WithDetail("question was not recognised and no SQL generator is configured")
		}
		schema, err := s.schema(ctx)
		if err != nil {
			s.observeAsk(result.Source, OutcomeFailed)
			return nil, err
		}
		raw, err := s.generator.GenerateSQL(ctx, question, schema, s.router.Synonyms().Relevant(question))
		if err != nil {
			s.observeAsk(result.Source, OutcomeFailed)
			log.Warn("SQL generation failed", zap.Error(err))
			return nil, err
		}
		result.RawSQL = raw
		result.SQL = s.guard.Repair(raw)
		if result.SQL != strings.TrimSpace(raw) && s.metrics != nil {
			s.metrics.ObserveGuardRepair()
		}
		result.ChartType = nlquery.ChartForKind(s.router.DetectKind(question))
	}

	if err := s.guard.Validate(result.SQL); err != nil {
		s.observeRejection(err)
		s.observeAsk(result.Source, OutcomeRejected)
		log.Warn("Generated SQL rejected", logger.SQL(result.SQL), zap.Error(err))
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	queryStart := time.Now()
	rs, err := s.repo.RunReadOnly(queryCtx, result.SQL, s.cfg.MaxRows)
	if s.metrics != nil {
		s.metrics.ObserveQuery("assistant", time.Since(queryStart))
	}
	if err != nil {
		s.observeAsk(result.Source, OutcomeFailed)
		log.Warn("Assistant query failed", logger.SQL(result.SQL), zap.Error(err))
		return nil, err
	}

	result.Columns = rs.Columns
	result.Rows = rs.Rows
	result.Truncated = rs.Truncated
	result.Elapsed = time.Since(start)
	s.observeAsk(result.Source, OutcomeOK)

	log.Info("Question answered",
		zap.String("source", result.Source),
		zap.Int("rows", rs.RowCount()),
		zap.Bool("truncated", rs.Truncated),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// Check repairs and validates sql without executing it
func (s *Service) Check(sql string) (*CheckResult, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, shared.ErrInvalidInput.WithDetail("sql is required")
	}
	repaired := s.guard.Repair(sql)
	result := &CheckResult{
		SQL:      sql,
		Repaired: repaired,
		Changed:  repaired != sql,
		Valid:    true,
	}
	if err := s.guard.Validate(repaired); err != nil {
		var ge *nlquery.GuardError
		if !errors.As(err, &ge) {
			return nil, err
		}
		result.Valid = false
		result.Reasons = ge.Reasons
	}
	return result, nil
}

// schema returns the prompt schema text, refreshed from the catalog after
// SchemaCacheTTL. A stale copy is served when the refresh fails.
func (s *Service) schema(ctx context.Context) (string, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	fresh := s.schemaText != "" && (s.cfg.SchemaCacheTTL <= 0 || s.now().Sub(s.schemaAt) < s.cfg.SchemaCacheTTL)
	if fresh {
		return s.schemaText, nil
	}

	cols, err := s.repo.DescribeColumns(ctx)
	if err != nil {
		if s.schemaText != "" {
			s.logger.Warn("Schema refresh failed, using cached schema", zap.Error(err))
			return s.schemaText, nil
		}
		return "", err
	}
	s.schemaText = salesplan.SchemaText(cols)
	s.schemaAt = s.now()
	return s.schemaText, nil
}

func (s *Service) observeAsk(source, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAsk(source, outcome)
	}
}

func (s *Service) observeRejection(err error) {
	if s.metrics == nil {
		return
	}
	var ge *nlquery.GuardError
	if !errors.As(err, &ge) {
		return
	}
	for _, r := range ge.Reasons {
		s.metrics.ObserveGuardRejection(ReasonLabel(r))
	}
}

// ReasonLabel reduces a guard reason to a bounded metric label
func ReasonLabel(reason string) string {
	r := strings.ToLower(reason)
	switch {
	case strings.HasPrefix(r, "unknown columns"):
		return "unknown_column"
	case strings.HasPrefix(r, "unknown tables"):
		return "unknown_table"
	case strings.Contains(r, "read-only"):
		return "not_read_only"
	case strings.Contains(r, "raw [amount]"):
		return "raw_amount"
	case strings.Contains(r, "union"):
		return "union_comparison"
	case strings.Contains(r, "cast(orderfy"):
		return "cast_order_fy"
	case strings.Contains(r, "mmmmyy"):
		return "monthname_filter"
	default:
		return "other"
	}
}
