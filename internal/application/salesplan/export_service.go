package salesplan

import (
	"context"
	"io"

	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/export"
)

// ExportService writes preview rows as CSV or XLSX
type ExportService struct {
	repo salesplan.Repository
}

// NewExportService creates a new ExportService
func NewExportService(repo salesplan.Repository) *ExportService {
	return &ExportService{repo: repo}
}

// Export writes up to limit rows to w in format, with headers in column order.
// The format is checked before the table is read.
func (s *ExportService) Export(ctx context.Context, format string, limit int, w io.Writer) (int, error) {
	format, err := export.ParseFormat(format)
	if err != nil {
		return 0, shared.ErrInvalidInput.WithDetail(err.Error())
	}
	records, err := s.repo.Preview(ctx, salesplan.ClampPreviewLimit(limit))
	if err != nil {
		return 0, err
	}
	if err := export.Write(w, format, export.RecordsTable(records)); err != nil {
		return 0, err
	}
	return len(records), nil
}
