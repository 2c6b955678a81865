package salesplan

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FiscalYearStartMonth is the first month of the fiscal year (April to March).
const FiscalYearStartMonth = time.April

// FiscalYearStart returns the calendar year in which t's fiscal year begins
func FiscalYearStart(t time.Time) int {
	if t.Month() >= FiscalYearStartMonth {
		return t.Year()
	}
	return t.Year() - 1
}

// FormatFiscalYear renders a fiscal year starting in startYear as "2024-25"
func FormatFiscalYear(startYear int) string {
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

// FiscalYearLabel returns the "YYYY-YY" fiscal year containing t
func FiscalYearLabel(t time.Time) string {
	return FormatFiscalYear(FiscalYearStart(t))
}

// ParseFiscalYearLabel parses "2024-25" and returns the start year.
func ParseFiscalYearLabel(label string) (int, error) {
	label = strings.TrimSpace(label)
	parts := strings.Split(label, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("fiscal year %q: expected YYYY-YY", label)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("fiscal year %q: %w", label, err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("fiscal year %q: %w", label, err)
	}
	if end != (start+1)%100 {
		return 0, fmt.Errorf("fiscal year %q: %02d does not follow %d", label, end, start)
	}
	return start, nil
}

// CurrentFiscalYear returns the label of the fiscal year containing now
func CurrentFiscalYear(now time.Time) string {
	return FiscalYearLabel(now)
}

// PreviousFiscalYear returns the label of the fiscal year before the one containing now
func PreviousFiscalYear(now time.Time) string {
	return FormatFiscalYear(FiscalYearStart(now) - 1)
}

// FiscalMonthNumber maps April to 1 through March to 12
func FiscalMonthNumber(t time.Time) int {
	return FiscalMonthOf(t.Month())
}

// FiscalMonthOf maps a calendar month to its fiscal index
func FiscalMonthOf(m time.Month) int {
	return (int(m)-int(FiscalYearStartMonth)+12)%12 + 1
}

// FiscalQuarter returns "Q1" for April to June through "Q4" for January to March
func FiscalQuarter(t time.Time) string {
	return fmt.Sprintf("Q%d", (FiscalMonthNumber(t)-1)/3+1)
}

// MonthYear returns year*100 + month, e.g. 202407
func MonthYear(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}

// MonthYearLabel renders t as "Jul-24"
func MonthYearLabel(t time.Time) string {
	return t.Format("Jan-06")
}

// FiscalMonthNames lists month names in fiscal order
var FiscalMonthNames = func() []string {
	names := make([]string, 12)
	for i := 0; i < 12; i++ {
		names[i] = time.Month((int(FiscalYearStartMonth)-1+i)%12 + 1).String()
	}
	return names
}()

// ParseMonthName resolves a full or three-letter English month name
func ParseMonthName(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if s == name || s == name[:3] {
			return m, true
		}
	}
	return 0, false
}
