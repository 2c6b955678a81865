package salesplan

import (
	"context"

	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/domain/salesplan"
)

// DefaultAuditSample is the number of violations kept when none is requested
const DefaultAuditSample = 100

// AuditService reconciles preview rows against the column identities
type AuditService struct {
	repo   salesplan.Repository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo salesplan.Repository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Audit reads up to limit rows and reconciles them, keeping at most sample
// violations in the report. The audit always reads the table, never the cache.
func (s *AuditService) Audit(ctx context.Context, limit, sample int) (*salesplan.AuditReport, error) {
	limit = salesplan.ClampPreviewLimit(limit)
	if sample <= 0 {
		sample = DefaultAuditSample
	}

	records, err := s.repo.Preview(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := salesplan.ReconcileAll(records, sample)
	if report.Clean < report.RowsChecked {
		fields := []zap.Field{
			zap.Int("rows_checked", report.RowsChecked),
			zap.Int("clean_rows", report.Clean),
		}
		for _, rule := range salesplan.AllRules {
			if n := report.ByRule[rule]; n > 0 {
				fields = append(fields, zap.Int(string(rule), n))
			}
		}
		s.logger.Warn("Sales plan audit found violations", fields...)
	} else {
		s.logger.Info("Sales plan audit clean", zap.Int("rows_checked", report.RowsChecked))
	}
	return report, nil
}
