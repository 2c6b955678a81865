package nlquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/salesplan/backend/internal/domain/salesplan"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the broad shape of a question
type Kind string

const (
	KindTopN      Kind = "top_n"
	KindCompare   Kind = "compare"
	KindGrowth    Kind = "growth"
	KindListRows  Kind = "list_rows"
	KindCount     Kind = "count"
	KindTotal     Kind = "total"
	KindAggregate Kind = "aggregate"
	KindUnknown   Kind = "unknown"
)

// kindPriority decides between several intents found in one question
var kindPriority = []string{
	string(KindCount), string(KindTopN), string(KindCompare), string(KindGrowth),
	string(KindListRows), string(KindAggregate), string(KindTotal),
}

// Chart hints understood by clients
const (
	ChartBar        = "bar"
	ChartStackedBar = "stacked_bar"
)

var kindCharts = map[Kind]string{
	KindTopN:      ChartBar,
	KindCompare:   ChartBar,
	KindGrowth:    ChartBar,
	KindCount:     ChartBar,
	KindTotal:     ChartBar,
	KindAggregate: ChartStackedBar,
}

// Metric is the aggregate a templated query reports
type Metric struct {
	Expr  string `json:"expr"`
	Alias string `json:"alias"`
}

var metricExprs = map[string]Metric{
	"total_amount":         {Expr: "SUM([Amount])", Alias: "TotalAmount"},
	"backlog_amount":       {Expr: "SUM([BacklogAmount])", Alias: "TotalBacklog"},
	"quantity":             {Expr: "SUM([Quantity])", Alias: "TotalQuantity"},
	"invoiced_quantity":    {Expr: "SUM([QuantityInvoiced])", Alias: "TotalInvoiced"},
	"outstanding_quantity": {Expr: "SUM([OutstandingQuantity])", Alias: "TotalOutstanding"},
}

// DefaultMetric is used when a question names no measure
var DefaultMetric = metricExprs["total_amount"]

// Filter is one WHERE predicate on a column
type Filter struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// SQL renders the predicate with escaped literals
func (f Filter) SQL() string {
	if len(f.Values) == 1 {
		return QuoteIdent(f.Column) + " = " + QuoteLiteral(f.Values[0])
	}
	quoted := make([]string, len(f.Values))
	for i, v := range f.Values {
		quoted[i] = QuoteLiteral(v)
	}
	return QuoteIdent(f.Column) + " IN (" + strings.Join(quoted, ", ") + ")"
}

// Intent is the structured reading of a question
type Intent struct {
	Kind    Kind     `json:"kind"`
	Metric  Metric   `json:"metric"`
	GroupBy []string `json:"group_by"`
	Filters []Filter `json:"filters"`
	Limit   int      `json:"limit,omitempty"`
}

var (
	countOfRe   = regexp.MustCompile(`(?i)\bcount of ([\w ]+?)(?:\s+(?:by|for|in|where|with)\b|[?.,]|$)`)
	topNRe      = regexp.MustCompile(`(?i)\btop\s+(\d+)\b(?:\s+(\w+))?`)
	groupingRe  = regexp.MustCompile(`(?i)\bby\s+(.+?)(?:\s+(?:for|in|where|with|when|whose|during)\b|[?.]|$)`)
	andSplitRe  = regexp.MustCompile(`(?i)\s+and\s+|\s*,\s*`)
	currentFYRe = regexp.MustCompile(`(?i)\b(current fy|this fy|fy is current|is current)\b`)
	prevFYRe    = regexp.MustCompile(`(?i)\b(previous fy|fy previous|last fy|prior fy)\b`)
	fyLabelRe   = regexp.MustCompile(`(?i)\bfy\s*(?:is\s+)?(20\d{2}-\d{2})\b`)
	monthSpanRe = regexp.MustCompile(`(?i)\bmonth is (\w+) to (\w+)\b`)
	mfgRe       = regexp.MustCompile(`(?i)\bmfg(?:\s*mode)?\s+is\s+([\w-]+)`)
	customerRe  = regexp.MustCompile(`(?i)\bcustomer\s+is\s+(.+?)(?:\s+(?:and|for|in|where|by|with)\b|[?.,]|$)`)
	typeRe      = regexp.MustCompile(`(?i)\btype\s+is\s+(\w+)`)
	monthYearRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)-(\d{2})\b`)
	predicateRe = regexp.MustCompile(`(?i)\s+is\s+`)
)

// Router turns questions into templated SQL using a synonym map
type Router struct {
	synonyms *SynonymMap
}

// NewRouter creates a router; nil synonyms means the built-in map
func NewRouter(synonyms *SynonymMap) *Router {
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}
	return &Router{synonyms: synonyms}
}

// Synonyms returns the map the router resolves words with
func (r *Router) Synonyms() *SynonymMap {
	return r.synonyms
}

// ParseQuestion reads metric, grouping and filters from q. ok is false when
// nothing in the question was recognised.
func (r *Router) ParseQuestion(q string, now time.Time) (Intent, bool) {
	q = strings.TrimSpace(q)
	lower := strings.ToLower(q)
	intent := Intent{
		Kind:   KindUnknown,
		Metric: DefaultMetric,
	}
	recognised := false

	if k := r.synonyms.matchIntent(lower, kindPriority); k != "" {
		intent.Kind = Kind(k)
	}
	if m := topNRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			intent.Limit = n
			intent.Kind = KindTopN
			recognised = true
		}
		if col, ok := r.synonyms.ResolveColumn(m[2]); ok {
			if kind, _ := columnKind(col); kind != salesplan.KindDecimal {
				intent.GroupBy = append(intent.GroupBy, col)
			}
		}
	}

	// metric
	if m := countOfRe.FindStringSubmatch(lower); m != nil {
		intent.Kind = KindCount
		intent.Metric = Metric{Expr: "COUNT(*)", Alias: "RecordCount"}
		if col, ok := r.synonyms.ResolveColumn(m[1]); ok {
			intent.Metric = Metric{Expr: "COUNT(DISTINCT " + QuoteIdent(col) + ")", Alias: "DistinctCount"}
		}
		recognised = true
	} else if name := r.synonyms.matchMetric(lower); name != "" {
		intent.Metric = metricExprs[name]
		recognised = true
	}

	// grouping
	if m := groupingRe.FindStringSubmatch(lower); m != nil {
		for _, part := range andSplitRe.Split(m[1], -1) {
			part = strings.TrimSpace(part)
			if part == "" || predicateRe.MatchString(" "+part+" ") {
				continue
			}
			col, ok := r.synonyms.ResolveColumn(part)
			if !ok {
				continue
			}
			if kind, _ := columnKind(col); kind == salesplan.KindDecimal {
				if name := r.synonyms.matchMetric(part); name != "" {
					intent.Metric = metricExprs[name]
				}
				recognised = true
				continue
			}
			if !contains(intent.GroupBy, col) {
				intent.GroupBy = append(intent.GroupBy, col)
			}
			recognised = true
		}
	}

	filters := r.parseFilters(q, now)
	if len(filters) > 0 {
		intent.Filters = filters
		recognised = true
	}

	if !recognised {
		return Intent{}, false
	}
	return intent, true
}

func (r *Router) parseFilters(q string, now time.Time) []Filter {
	var filters []Filter

	switch {
	case prevFYRe.MatchString(q):
		filters = append(filters, Filter{Column: "OrderFY", Values: []string{salesplan.PreviousFiscalYear(now)}})
	case currentFYRe.MatchString(q):
		filters = append(filters, Filter{Column: "OrderFY", Values: []string{salesplan.CurrentFiscalYear(now)}})
	default:
		if m := fyLabelRe.FindStringSubmatch(q); m != nil {
			if start, err := salesplan.ParseFiscalYearLabel(m[1]); err == nil {
				filters = append(filters, Filter{Column: "OrderFY", Values: []string{salesplan.FormatFiscalYear(start)}})
			}
		}
	}

	if m := monthSpanRe.FindStringSubmatch(q); m != nil {
		if months := fiscalMonthSpan(m[1], m[2]); len(months) > 0 {
			filters = append(filters, Filter{Column: "MonthName", Values: months})
		}
	}
	if m := mfgRe.FindStringSubmatch(q); m != nil {
		filters = append(filters, Filter{Column: "MFGMode", Values: []string{strings.ToUpper(m[1])}})
	}
	if m := customerRe.FindStringSubmatch(q); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			filters = append(filters, Filter{Column: "Customer_Name", Values: []string{name}})
		}
	}
	if m := typeRe.FindStringSubmatch(q); m != nil {
		filters = append(filters, Filter{Column: "Type", Values: []string{titleCase(m[1])}})
	}
	if m := monthYearRe.FindStringSubmatch(q); m != nil {
		filters = append(filters, Filter{Column: "MMMMYY", Values: []string{titleCase(m[1]) + "-" + m[2]}})
	}
	return filters
}

// fiscalMonthSpan lists month names from start to end inclusive in fiscal
// order, wrapping past March when needed.
func fiscalMonthSpan(start, end string) []string {
	from, ok := salesplan.ParseMonthName(start)
	if !ok {
		return nil
	}
	to, ok := salesplan.ParseMonthName(end)
	if !ok {
		return nil
	}
	i := salesplan.FiscalMonthOf(from) - 1
	j := salesplan.FiscalMonthOf(to) - 1
	var out []string
	for k := i; ; k = (k + 1) % 12 {
		out = append(out, salesplan.FiscalMonthNames[k])
		if k == j {
			break
		}
	}
	return out
}

// TableRef names the table a templated query reads
type TableRef struct {
	Schema string
	Table  string
}

// DefaultTable is dbo.SalesPlanTable
var DefaultTable = TableRef{Schema: salesplan.DefaultSchema, Table: salesplan.DefaultTable}

// String renders the bracketed two-part name
func (t TableRef) String() string {
	return QuoteIdent(t.Schema) + "." + QuoteIdent(t.Table)
}

// BuildSQL renders an intent as a single SELECT TOP statement. Without a
// grouping the totals are broken down by OrderFY.
func BuildSQL(intent Intent, table TableRef, limit int) string {
	if intent.Limit > 0 && (limit <= 0 || intent.Limit < limit) {
		limit = intent.Limit
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	metric := intent.Metric
	if metric.Expr == "" {
		metric = DefaultMetric
	}
	groupBy := intent.GroupBy
	if len(groupBy) == 0 {
		groupBy = []string{"OrderFY"}
	}
	cols := make([]string, len(groupBy))
	for i, c := range groupBy {
		cols[i] = QuoteIdent(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT TOP %d %s, %s AS %s\n", limit, strings.Join(cols, ", "), metric.Expr, metric.Alias)
	fmt.Fprintf(&b, "FROM %s", table)
	if len(intent.Filters) > 0 {
		preds := make([]string, len(intent.Filters))
		for i, f := range intent.Filters {
			preds[i] = f.SQL()
		}
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(preds, " AND "))
	}
	b.WriteString("\nGROUP BY ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString("\nORDER BY ")
	if contains(groupBy, "MonthName") {
		b.WriteString(fiscalMonthOrder())
	} else {
		b.WriteString(metric.Alias + " DESC")
	}
	return b.String()
}

func fiscalMonthOrder() string {
	var b strings.Builder
	b.WriteString("CASE [MonthName]")
	for i, name := range salesplan.FiscalMonthNames {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", name, i+1)
	}
	b.WriteString(" END")
	return b.String()
}

// ChartFor returns the chart hint for a templated intent. Two or more
// grouping columns stack; plain row listings get none.
func ChartFor(intent Intent) string {
	switch {
	case intent.Kind == KindListRows:
		return ""
	case len(intent.GroupBy) >= 2:
		return ChartStackedBar
	default:
		return ChartBar
	}
}

// ChartForKind maps a bare intent kind to its chart hint; "" means none
func ChartForKind(kind Kind) string {
	return kindCharts[kind]
}

// DetectKind classifies a question without building a full intent
func (r *Router) DetectKind(q string) Kind {
	if k := r.synonyms.matchIntent(strings.ToLower(q), kindPriority); k != "" {
		return Kind(k)
	}
	return KindUnknown
}

// titleCase builds a fresh Caser per call; a Caser is not safe for concurrent use
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func columnKind(name string) (salesplan.Kind, bool) {
	for _, c := range salesplan.Columns {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
