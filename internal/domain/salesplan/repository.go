package salesplan

import "context"

// Repository is the read-only port onto the sales plan table
type Repository interface {
	// Preview returns up to limit rows (clamped to MaxPreviewRows) in server order
	Preview(ctx context.Context, limit int) ([]SalesPlanRecord, error)
	// FindByKey returns the row identified by key or shared.ErrNotFound
	FindByKey(ctx context.Context, key RecordKey) (*SalesPlanRecord, error)
	// DescribeColumns returns the catalog view of the table ordered by position
	DescribeColumns(ctx context.Context) ([]ColumnInfo, error)
	// RunReadOnly executes a statement that has already been checked by the SQL guard
	RunReadOnly(ctx context.Context, query string, maxRows int) (*ResultSet, error)
}

// ResultSet is a generic tabular result of an ad hoc query
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// RowCount returns the number of rows held
func (r *ResultSet) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
