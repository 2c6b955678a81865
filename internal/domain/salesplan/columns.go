package salesplan

import "strings"

// Column describes one physical column of the sales plan table
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Kind is the semantic type of a column
type Kind string

const (
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindDecimal  Kind = "decimal"
	KindDateTime Kind = "datetime"
	KindFlag     Kind = "flag"
)

// Columns is the ordered column layout returned by the preview query.
var Columns = []Column{
	{"DocumentNo", KindString},
	{"CustomerCode", KindString},
	{"OrderDate", KindDateTime},
	{"SalespersonCode", KindString},
	{"LineNo", KindInteger},
	{"MPCODE", KindInteger},
	{"DocumentDescription", KindString},
	{"MFGMode", KindString},
	{"Type", KindString},
	{"Amount", KindDecimal},
	{"BacklogAmount", KindDecimal},
	{"Customer_Name", KindString},
	{"Grade", KindString},
	{"PlannedQuarter", KindString},
	{"OrderQuarter", KindString},
	{"PlannedDeliveryFY", KindString},
	{"OrderFY", KindString},
	{"PlannedMonth", KindString},
	{"MonthName", KindString},
	{"document_Month_Number", KindInteger},
	{"Order_Month_Number", KindInteger},
	{"Item", KindString},
	{"Planned_Fy_Flag", KindFlag},
	{"Ord_Fy_Flag", KindFlag},
	{"PlannedDeliveryMonthflag", KindFlag},
	{"OrderMonthflag", KindFlag},
	{"Quantity", KindDecimal},
	{"OutstandingQuantity", KindDecimal},
	{"QuantityInvoiced", KindDecimal},
	{"PlannedDeliveryDate", KindDateTime},
	{"No_of_Lines", KindInteger},
	{"orderyear", KindInteger},
	{"monthyear", KindInteger},
	{"MMMMYY", KindString},
}

var columnIndex = func() map[string]string {
	idx := make(map[string]string, len(Columns))
	for _, c := range Columns {
		idx[strings.ToLower(c.Name)] = c.Name
	}
	return idx
}()

// ColumnNames returns the column names in table order
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

// CanonicalColumn resolves a case-insensitive, optionally bracketed column name
// to its exact spelling.
func CanonicalColumn(name string) (string, bool) {
	name = strings.TrimSpace(strings.Trim(strings.TrimSpace(name), "[]"))
	c, ok := columnIndex[strings.ToLower(name)]
	return c, ok
}

// IsColumn reports whether name is a column of the table
func IsColumn(name string) bool {
	_, ok := CanonicalColumn(name)
	return ok
}

// ColumnInfo is a column as reported by the database catalog
type ColumnInfo struct {
	Schema     string `json:"schema" gorm:"column:TABLE_SCHEMA"`
	Table      string `json:"table" gorm:"column:TABLE_NAME"`
	Name       string `json:"name" gorm:"column:COLUMN_NAME"`
	DataType   string `json:"data_type" gorm:"column:DATA_TYPE"`
	IsNullable string `json:"is_nullable" gorm:"column:IS_NULLABLE"`
	Position   int    `json:"position" gorm:"column:ORDINAL_POSITION"`
}

// SchemaText renders catalog columns as "schema.table(col type, ...)" plus the
// usage notes the SQL generator relies on.
func SchemaText(cols []ColumnInfo) string {
	if len(cols) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(cols[0].Schema)
	b.WriteString(".")
	b.WriteString(cols[0].Table)
	b.WriteString("(")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteString(" ")
		b.WriteString(c.DataType)
	}
	b.WriteString(")\n\n")
	b.WriteString("-- Note: OrderFY is a fiscal year label like '2024-25'. Use CAST(LEFT(OrderFY, 4) AS INT) to treat it as a number.\n")
	b.WriteString("-- Note: [MMMMYY] holds month-year labels like 'Apr-24'; use it for month-year filtering.\n")
	b.WriteString("-- Note: [monthyear] is an integer YYYYMM, e.g. 202407.")
	return b.String()
}
