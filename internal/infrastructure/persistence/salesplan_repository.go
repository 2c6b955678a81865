package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/salesplan/backend/internal/domain/nlquery"
	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSalesPlanRepository implements salesplan.Repository using GORM on SQL Server
type GormSalesPlanRepository struct {
	db     *gorm.DB
	schema string
	table  string
}

// NewGormSalesPlanRepository creates a repository reading schema.table
func NewGormSalesPlanRepository(db *gorm.DB, schema, table string) *GormSalesPlanRepository {
	if schema == "" {
		schema = salesplan.DefaultSchema
	}
	if table == "" {
		table = salesplan.DefaultTable
	}
	return &GormSalesPlanRepository{db: db, schema: schema, table: table}
}

// Table returns the bracketed two-part table name
func (r *GormSalesPlanRepository) Table() string {
	return nlquery.QuoteIdent(r.schema) + "." + nlquery.QuoteIdent(r.table)
}

func (r *GormSalesPlanRepository) selectList() string {
	names := salesplan.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = nlquery.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// PreviewSQL returns the statement Preview runs for limit
func (r *GormSalesPlanRepository) PreviewSQL(limit int) string {
	return fmt.Sprintf("SELECT TOP %d %s FROM %s", salesplan.ClampPreviewLimit(limit), r.selectList(), r.Table())
}

// Preview returns up to limit rows in server order
func (r *GormSalesPlanRepository) Preview(ctx context.Context, limit int) ([]salesplan.SalesPlanRecord, error) {
	var records []salesplan.SalesPlanRecord
	if err := r.db.WithContext(ctx).Raw(r.PreviewSQL(limit)).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("preview sales plan: %w", classifyError(err))
	}
	return records, nil
}

// FindByKey returns the row with the given DocumentNo and LineNo
func (r *GormSalesPlanRepository) FindByKey(ctx context.Context, key salesplan.RecordKey) (*salesplan.SalesPlanRecord, error) {
	query := fmt.Sprintf("SELECT TOP 1 %s FROM %s WHERE [DocumentNo] = ? AND [LineNo] = ?", r.selectList(), r.Table())

	var record salesplan.SalesPlanRecord
	result := r.db.WithContext(ctx).Raw(query, key.DocumentNo, key.LineNo).Scan(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("find sales plan record %s: %w", key, classifyError(result.Error))
	}
	if result.RowsAffected == 0 {
		return nil, shared.ErrNotFound
	}
	return &record, nil
}

const describeColumnsSQL = `SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE, ORDINAL_POSITION
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

// DescribeColumns returns the catalog columns of the table
func (r *GormSalesPlanRepository) DescribeColumns(ctx context.Context) ([]salesplan.ColumnInfo, error) {
	var cols []salesplan.ColumnInfo
	if err := r.db.WithContext(ctx).Raw(describeColumnsSQL, r.schema, r.table).Scan(&cols).Error; err != nil {
		return nil, fmt.Errorf("describe sales plan columns: %w", classifyError(err))
	}
	if len(cols) == 0 {
		return nil, shared.ErrNotFound.WithDetail(fmt.Sprintf("table %s.%s not found", r.schema, r.table))
	}
	return cols, nil
}

// RunReadOnly executes a guarded statement and returns at most maxRows rows.
// Truncated is set when the server had more.
func (r *GormSalesPlanRepository) RunReadOnly(ctx context.Context, query string, maxRows int) (*salesplan.ResultSet, error) {
	rows, err := r.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("run query: %w", classifyError(err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", classifyError(err))
	}

	rs := &salesplan.ResultSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if maxRows > 0 && len(rs.Rows) >= maxRows {
			rs.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", classifyError(err))
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", classifyError(err))
	}
	return rs, nil
}

// normalizeValue turns driver values into JSON and CSV friendly ones
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}
