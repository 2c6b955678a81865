// Package salesplan holds the read use cases over the sales plan table:
// cached previews, key lookups, column listing, audits and exports.
package salesplan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/domain/salesplan"
)

// PreviewCache stores encoded preview pages
type PreviewCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Metrics receives cache and query observations
type Metrics interface {
	ObserveCache(hit bool)
	ObserveQuery(kind string, elapsed time.Duration)
}

// PlanService serves previews and lookups of the sales plan table
type PlanService struct {
	repo         salesplan.Repository
	cache        PreviewCache
	ttl          time.Duration
	defaultLimit int
	metrics      Metrics
	logger       *zap.Logger
}

// PlanServiceOption configures a PlanService
type PlanServiceOption func(*PlanService)

// WithPreviewCache caches preview pages in c for ttl
func WithPreviewCache(c PreviewCache, ttl time.Duration) PlanServiceOption {
	return func(s *PlanService) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithDefaultLimit sets the row count used when a caller passes no limit
func WithDefaultLimit(n int) PlanServiceOption {
	return func(s *PlanService) {
		s.defaultLimit = salesplan.ClampPreviewLimit(n)
	}
}

// WithMetrics reports cache hits and query latency to m
func WithMetrics(m Metrics) PlanServiceOption {
	return func(s *PlanService) {
		s.metrics = m
	}
}

// NewPlanService creates a new PlanService
func NewPlanService(repo salesplan.Repository, logger *zap.Logger, opts ...PlanServiceOption) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PlanService{
		repo:         repo,
		defaultLimit: salesplan.MaxPreviewRows,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PreviewResult is one page of the preview query
type PreviewResult struct {
	Columns []string                    `json:"columns"`
	Records []salesplan.SalesPlanRecord `json:"records"`
	Limit   int                         `json:"limit"`
	Cached  bool                        `json:"cached"`
}

// Count returns the number of records returned
func (r *PreviewResult) Count() int {
	return len(r.Records)
}

// Preview runs the top-N query. A limit outside 1..1000 uses the default.
func (s *PlanService) Preview(ctx context.Context, limit int) (*PreviewResult, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = salesplan.ClampPreviewLimit(limit)
	key := fmt.Sprintf("preview:%d", limit)

	if records, ok := s.cached(ctx, key); ok {
		return &PreviewResult{Columns: salesplan.ColumnNames(), Records: records, Limit: limit, Cached: true}, nil
	}

	start := time.Now()
	records, err := s.repo.Preview(ctx, limit)
	s.observeQuery("preview", time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	s.store(ctx, key, records)

	return &PreviewResult{Columns: salesplan.ColumnNames(), Records: records, Limit: limit}, nil
}

// Get returns the record for key
func (s *PlanService) Get(ctx context.Context, key salesplan.RecordKey) (*salesplan.SalesPlanRecord, error) {
	start := time.Now()
	defer func() { s.observeQuery("lookup", time.Since(start)) }()
	return s.repo.FindByKey(ctx, key)
}

// Columns returns the catalog view of the table
func (s *PlanService) Columns(ctx context.Context) ([]salesplan.ColumnInfo, error) {
	return s.repo.DescribeColumns(ctx)
}

// cached reads a preview page; cache failures are logged and treated as a miss
func (s *PlanService) cached(ctx context.Context, key string) ([]salesplan.SalesPlanRecord, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Preview cache read failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if s.metrics != nil {
		s.metrics.ObserveCache(ok)
	}
	if !ok {
		return nil, false
	}
	var records []salesplan.SalesPlanRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("Discarding undecodable preview cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return records, true
}

func (s *PlanService) store(ctx context.Context, key string, records []salesplan.SalesPlanRecord) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn("Failed to encode preview for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Preview cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *PlanService) observeQuery(kind string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(kind, elapsed)
	}
}
