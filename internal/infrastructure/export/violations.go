package export

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/salesplan/backend/internal/domain/salesplan"
)

// violationRow is the flat CSV shape of a reconciliation violation
type violationRow struct {
	DocumentNo string `csv:"DocumentNo"`
	LineNo     int    `csv:"LineNo"`
	Rule       string `csv:"Rule"`
	Expected   string `csv:"Expected"`
	Actual     string `csv:"Actual"`
}

// WriteViolationsCSV writes violations with a header row
func WriteViolationsCSV(w io.Writer, violations []salesplan.Violation) error {
	rows := make([]*violationRow, len(violations))
	for i, v := range violations {
		rows[i] = &violationRow{
			DocumentNo: v.Key.DocumentNo,
			LineNo:     v.Key.LineNo,
			Rule:       string(v.Rule),
			Expected:   v.Expected,
			Actual:     v.Actual,
		}
	}
	if len(rows) == 0 {
		return WriteCSV(w, Table{Columns: []string{"DocumentNo", "LineNo", "Rule", "Expected", "Actual"}})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write violations csv: %w", err)
	}
	return nil
}

// RecordsTable converts records into a table with the column order of the
// sales plan table
func RecordsTable(records []salesplan.SalesPlanRecord) Table {
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = records[i].Values()
	}
	return Table{
		Sheet:   "SalesPlan",
		Columns: salesplan.ColumnNames(),
		Rows:    rows,
	}
}

// ResultTable converts an ad hoc result set into a table
func ResultTable(rs *salesplan.ResultSet) Table {
	if rs == nil {
		return Table{Sheet: "Result"}
	}
	return Table{Sheet: "Result", Columns: rs.Columns, Rows: rs.Rows}
}
