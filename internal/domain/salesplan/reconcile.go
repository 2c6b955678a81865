package salesplan

import (
	"fmt"
	"sort"
)

// Rule names a reconciliation identity between columns
type Rule string

const (
	RuleQuantityReconciles    Rule = "quantity_reconciles"
	RuleMonthYearMatchesOrder Rule = "monthyear_matches_order_date"
	RuleOrderYearMatchesOrder Rule = "orderyear_matches_order_date"
	RuleMMMMYYMatchesOrder    Rule = "mmmmyy_matches_order_date"
	RuleOrderFYMatchesOrder   Rule = "order_fy_matches_order_date"
	RuleOrderMonthNumberOrder Rule = "order_month_number_matches_order_date"
	RuleMonthNumberInRange    Rule = "month_number_in_range"
	RuleDuplicateKey          Rule = "duplicate_key"
)

// AllRules lists every rule in report order
var AllRules = []Rule{
	RuleQuantityReconciles,
	RuleMonthYearMatchesOrder,
	RuleOrderYearMatchesOrder,
	RuleMMMMYYMatchesOrder,
	RuleOrderFYMatchesOrder,
	RuleOrderMonthNumberOrder,
	RuleMonthNumberInRange,
	RuleDuplicateKey,
}

// Violation is one failed rule on one row
type Violation struct {
	Key      RecordKey `json:"key"`
	Rule     Rule      `json:"rule"`
	Expected string    `json:"expected"`
	Actual   string    `json:"actual"`
}

// Reconcile checks a single record against the column identities.
// document_Month_Number is only range-checked: which date it derives from is
// not established.
func Reconcile(r *SalesPlanRecord) []Violation {
	var out []Violation
	add := func(rule Rule, expected, actual any) {
		out = append(out, Violation{
			Key:      r.Key(),
			Rule:     rule,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
		})
	}

	sum := r.OutstandingQuantity.Add(r.QuantityInvoiced)
	if !r.Quantity.Equal(sum) {
		add(RuleQuantityReconciles, sum.String(), r.Quantity.String())
	}

	for _, n := range []int{r.DocumentMonthNumber, r.OrderMonthNumber} {
		if n < 1 || n > 12 {
			add(RuleMonthNumberInRange, "1..12", n)
		}
	}

	if r.OrderDate.IsZero() {
		return out
	}

	if want := r.OrderYear*100 + int(r.OrderDate.Month()); r.MonthYear != want {
		add(RuleMonthYearMatchesOrder, want, r.MonthYear)
	}
	if want := r.OrderDate.Year(); r.OrderYear != want {
		add(RuleOrderYearMatchesOrder, want, r.OrderYear)
	}
	if want := MonthYearLabel(r.OrderDate); r.MMMMYY != want {
		add(RuleMMMMYYMatchesOrder, want, r.MMMMYY)
	}
	if want := FiscalYearLabel(r.OrderDate); r.OrderFY != want {
		add(RuleOrderFYMatchesOrder, want, r.OrderFY)
	}
	if want := FiscalMonthNumber(r.OrderDate); r.OrderMonthNumber != want {
		add(RuleOrderMonthNumberOrder, want, r.OrderMonthNumber)
	}
	return out
}

// AuditReport summarises reconciliation over a set of rows
type AuditReport struct {
	RowsChecked int          `json:"rows_checked"`
	Clean       int          `json:"clean_rows"`
	ByRule      map[Rule]int `json:"by_rule"`
	Violations  []Violation  `json:"violations"`
	Truncated   bool         `json:"truncated"`
}

// ReconcileAll runs Reconcile over every record and also flags repeated keys.
// At most sample violations are kept; counts cover all of them.
func ReconcileAll(records []SalesPlanRecord, sample int) *AuditReport {
	report := &AuditReport{
		RowsChecked: len(records),
		ByRule:      make(map[Rule]int, len(AllRules)),
		Violations:  []Violation{},
	}
	for _, rule := range AllRules {
		report.ByRule[rule] = 0
	}

	keep := func(v Violation) {
		report.ByRule[v.Rule]++
		if sample > 0 && len(report.Violations) >= sample {
			report.Truncated = true
			return
		}
		report.Violations = append(report.Violations, v)
	}

	seen := make(map[RecordKey]int, len(records))
	for i := range records {
		r := &records[i]
		vs := Reconcile(r)
		seen[r.Key()]++
		if seen[r.Key()] > 1 {
			vs = append(vs, Violation{
				Key:      r.Key(),
				Rule:     RuleDuplicateKey,
				Expected: "1",
				Actual:   fmt.Sprint(seen[r.Key()]),
			})
		}
		if len(vs) == 0 {
			report.Clean++
			continue
		}
		for _, v := range vs {
			keep(v)
		}
	}

	sort.SliceStable(report.Violations, func(i, j int) bool {
		return report.Violations[i].Key.Less(report.Violations[j].Key)
	})
	return report
}
