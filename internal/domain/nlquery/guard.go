// Package nlquery turns questions about the sales plan table into T-SQL and
// keeps whatever SQL reaches the database to a single read-only SELECT.
package nlquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultTopLimit is the TOP inserted by Repair when none is configured
const DefaultTopLimit = 100

var (
	writeKeywordRe  = regexp.MustCompile(`(?i)\b(insert|update|delete|alter|drop|truncate|create|merge|exec|execute|into|grant|revoke|deny|backup|restore|shutdown|dbcc|openrowset|opendatasource|openquery|waitfor)\b|\b(xp|sp)_\w+`)
	leadingSelectRe = regexp.MustCompile(`(?i)^\(*\s*(select|with)\b`)

	doubleBracketRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	identTokenRe    = regexp.MustCompile(`\[\s*([^\]]+?)\s*\]|\b([a-zA-Z_]\w*)\b`)
	precededByASRe  = regexp.MustCompile(`(?i)\bAS\s*$`)
	precededByDotRe = regexp.MustCompile(`\.\s*$`)
	castOrderFYRe   = regexp.MustCompile(`(?i)CAST\s*\(\s*(\[?OrderFY\]?)\s+AS\s+INT\s*\)`)
	yearOrderFYRe   = regexp.MustCompile(`(?i)YEAR\s*\(\s*(\[?OrderFY\]?)\s*\)`)
	leadingTopRe    = regexp.MustCompile(`(?i)^\s*SELECT\b(\s+DISTINCT\b)?(\s+TOP\s*\(?\s*(\d+)(?:\s*\))?(\s+PERCENT\b)?)?`)
	anyTopRe        = regexp.MustCompile(`(?i)\s*\bTOP\s*\(?\s*\d+(?:\s*\))?(\s+PERCENT\b)?`)
	selectBeforeRe  = regexp.MustCompile(`(?i)\bSELECT(\s+DISTINCT)?\s*$`)
	aggregateRe     = regexp.MustCompile(`(?i)\b(SUM|COUNT|AVG|MIN|MAX)\s*\(`)
	groupByRe       = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	fromRe          = regexp.MustCompile(`(?i)\bFROM\b`)
	orderByRe       = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	trailingAliasRe = regexp.MustCompile(`(?i)\s+(?:AS\s+)?(\[[^\]]+\]|[a-zA-Z_]\w*)$`)
	bareLiteralRe   = regexp.MustCompile(`^('.*'|\d+(\.\d+)?|NULL)$`)

	rawAmountRe       = regexp.MustCompile(`(?i)^\s*SELECT\s+(TOP\s*\(?\s*\d+\s*\)?\s+)?\[?amount\]?\s+FROM\b`)
	unionRe           = regexp.MustCompile(`(?i)\bUNION\b`)
	monthNameFilterRe = regexp.MustCompile(`(?i)\[?MonthName\]?\s*(=|LIKE|IN\s*\()\s*'[a-z]{3}-\d{2}'`)
	bracketIdentRe    = regexp.MustCompile(`\[([^\]]+)\]`)
	bracketAliasRe    = regexp.MustCompile(`(?i)\bAS\s+\[([^\]]+)\]`)

	cteHeadRe     = regexp.MustCompile(`(?i)^WITH\s+(\[[^\]]+\]|[a-zA-Z_]\w*)\s*(\([^)]*\))?\s*AS\s*\(`)
	cteNameRe     = regexp.MustCompile(`(?i)(?:\bWITH|,)\s*(\[[^\]]+\]|[a-zA-Z_]\w*)\s*(?:\([^)]*\))?\s*AS\s*\(`)
	selectRe      = regexp.MustCompile(`(?i)\bSELECT\b`)
	fromTargetRe  = regexp.MustCompile(`^\s+[\[("#@a-zA-Z_]`)
	objectRefRe   = regexp.MustCompile(`(?i)\b(FROM|JOIN|APPLY)\s+`)
	objectNameRe  = regexp.MustCompile(`^(?:\[[^\]]*\]|"[^"]*"|[a-zA-Z_#@][\w#@$]*)(?:\s*\.\s*(?:\[[^\]]*\]|"[^"]*"|[a-zA-Z_#@][\w#@$]*)?)*`)
	objectAliasRe = regexp.MustCompile(`(?i)^\s+(?:AS\s+)?(\[[^\]]*\]|[a-zA-Z_]\w*)`)
)

// clauseWords end a FROM item; they are never table aliases
var clauseWords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "JOIN": true, "ON": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true,
	"APPLY": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "OPTION": true,
	"FOR": true, "WITH": true, "PIVOT": true, "UNPIVOT": true,
}

// sqlKeywords are never treated as column references
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true, "ORDER": true,
	"TOP": true, "SUM": true, "COUNT": true, "AVG": true, "MIN": true, "MAX": true,
	"CAST": true, "INT": true, "AS": true, "AND": true, "OR": true, "IN": true,
	"LIKE": true, "IS": true, "NULL": true, "NOT": true, "UNION": true, "DISTINCT": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true, "DESC": true,
	"ASC": true, "LEFT": true, "HAVING": true, "BETWEEN": true, "WITH": true,
}

// GuardError lists why a statement was refused
type GuardError struct {
	SQL     string   `json:"sql"`
	Reasons []string `json:"reasons"`
}

// Error implements the error interface
func (e *GuardError) Error() string {
	return "query rejected: " + strings.Join(e.Reasons, "; ")
}

// Unwrap lets callers match the rejection as shared.ErrUnsafeQuery
func (e *GuardError) Unwrap() error {
	return shared.ErrUnsafeQuery
}

// Guard repairs and validates generated SQL against the known columns
type Guard struct {
	columns  map[string]string
	objects  map[string]bool
	aliases  map[string]string
	topLimit int
	logger   *zap.Logger
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithColumns replaces the known column set, e.g. with the live catalog
func WithColumns(names []string) GuardOption {
	return func(g *Guard) {
		if len(names) == 0 {
			return
		}
		g.columns = make(map[string]string, len(names))
		for _, n := range names {
			g.columns[strings.ToLower(n)] = n
		}
	}
}

// WithAliases adds alias mappings on top of DefaultColumnAliases
func WithAliases(aliases map[string]string) GuardOption {
	return func(g *Guard) {
		for k, v := range aliases {
			g.aliases[aliasKey(k)] = v
		}
	}
}

// WithTopLimit sets the TOP value Repair enforces
func WithTopLimit(n int) GuardOption {
	return func(g *Guard) {
		if n > 0 {
			g.topLimit = n
		}
	}
}

// WithObjects registers schema and table names that may appear bracketed
func WithObjects(names ...string) GuardOption {
	return func(g *Guard) {
		for _, n := range names {
			g.objects[strings.ToLower(n)] = true
		}
	}
}

// NewGuard creates a guard over the sales plan columns
func NewGuard(logger *zap.Logger, opts ...GuardOption) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		columns:  make(map[string]string, len(salesplan.Columns)),
		objects:  map[string]bool{},
		aliases:  make(map[string]string, len(DefaultColumnAliases)),
		topLimit: DefaultTopLimit,
		logger:   logger,
	}
	for _, c := range salesplan.Columns {
		g.columns[strings.ToLower(c.Name)] = c.Name
	}
	for k, v := range DefaultColumnAliases {
		g.aliases[k] = v
	}
	for _, n := range []string{salesplan.DefaultDatabase, salesplan.DefaultSchema, salesplan.DefaultTable} {
		g.objects[strings.ToLower(n)] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TopLimit returns the TOP value Repair enforces
func (g *Guard) TopLimit() int {
	return g.topLimit
}

// IsReadOnly reports whether sql is a single SELECT (optionally a CTE) with a
// FROM clause and no write or procedural keyword outside string literals.
func IsReadOnly(sql string) bool {
	code := Normalize(codeOnly(sql))
	code = strings.TrimSpace(strings.TrimRight(code, "; "))
	if code == "" {
		return false
	}
	if strings.Contains(code, ";") {
		return false
	}
	if !leadingSelectRe.MatchString(code) {
		return false
	}
	if writeKeywordRe.MatchString(code) {
		return false
	}
	return hasQueryShape(unwrapParens(code))
}

// hasQueryShape requires a CTE to open with "WITH name AS (" and the outer
// SELECT to have a non-empty select list followed by a FROM target.
func hasQueryShape(code string) bool {
	if strings.EqualFold(firstWord(code), "WITH") && !cteHeadRe.MatchString(code) {
		return false
	}
	sel := topLevelIndex(code, selectRe)
	from := topLevelIndex(code, fromRe)
	if sel < 0 || from < 0 || from < sel {
		return false
	}
	head := leadingTopRe.FindStringIndex(code[sel:])
	if head == nil || sel+head[1] > from || strings.TrimSpace(code[sel+head[1]:from]) == "" {
		return false
	}
	return fromTargetRe.MatchString(code[from+len("FROM"):])
}

// unwrapParens strips parentheses that enclose the whole statement
func unwrapParens(code string) string {
	for len(code) > 1 && code[0] == '(' && code[len(code)-1] == ')' {
		d := depths(code)
		for i := 1; i < len(code)-1; i++ {
			if d[i] < 1 {
				return code
			}
		}
		code = strings.TrimSpace(code[1 : len(code)-1])
	}
	return code
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t\n("); i >= 0 {
		return s[:i]
	}
	return s
}

// ResolveColumn maps a possibly invented column name to a real one
func (g *Guard) ResolveColumn(name string) (string, bool) {
	key := aliasKey(name)
	if real, ok := g.aliases[key]; ok {
		return real, true
	}
	real, ok := g.columns[key]
	return real, ok
}

// Repair rewrites the usual generator mistakes. Each change is logged.
func (g *Guard) Repair(sql string) string {
	steps := []struct {
		name string
		fn   func(string) string
	}{
		{"double_brackets", g.fixDoubleBrackets},
		{"column_names", g.fixColumnNames},
		{"cast_order_fy", g.fixCastOrderFY},
		{"year_order_fy", g.fixYearOrderFY},
		{"backticks", g.fixBackticks},
		{"top_placement", g.fixTopPlacement},
		{"missing_group_by", g.fixMissingGroupBy},
	}
	sql = strings.TrimSpace(sql)
	for _, step := range steps {
		fixed := step.fn(sql)
		if fixed != sql {
			g.logger.Warn("Repaired generated SQL",
				zap.String("fix", step.name),
				zap.String("before", sql),
				zap.String("after", fixed),
			)
		}
		sql = fixed
	}
	return strings.TrimSpace(sql)
}

func (g *Guard) fixDoubleBrackets(sql string) string {
	return mapCode(sql, func(code string) string {
		return doubleBracketRe.ReplaceAllString(code, "[$1]")
	})
}

func (g *Guard) fixColumnNames(sql string) string {
	return mapCode(sql, func(code string) string {
		matches := identTokenRe.FindAllStringSubmatchIndex(code, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			bracketed := m[2] >= 0
			var inner string
			if bracketed {
				inner = code[m[2]:m[3]]
			} else {
				inner = code[m[4]:m[5]]
			}
			if sqlKeywords[strings.ToUpper(inner)] {
				continue
			}
			before := code[:m[0]]
			if precededByASRe.MatchString(before) || (!bracketed && precededByDotRe.MatchString(before)) {
				continue
			}
			if g.objects[strings.ToLower(inner)] {
				continue
			}
			real, ok := g.aliases[aliasKey(inner)]
			if !ok || real == inner {
				continue
			}
			code = code[:m[0]] + QuoteIdent(real) + code[m[1]:]
		}
		return code
	})
}

func (g *Guard) fixCastOrderFY(sql string) string {
	return mapCode(sql, func(code string) string {
		return castOrderFYRe.ReplaceAllString(code, "CAST(LEFT($1, 4) AS INT)")
	})
}

func (g *Guard) fixYearOrderFY(sql string) string {
	return mapCode(sql, func(code string) string {
		return yearOrderFYRe.ReplaceAllString(code, "LEFT($1, 4)")
	})
}

func (g *Guard) fixBackticks(sql string) string {
	return mapCode(sql, func(code string) string {
		return strings.ReplaceAll(code, "`", "")
	})
}

// fixTopPlacement drops any TOP that does not directly follow SELECT [DISTINCT]
// and bounds the leading SELECT by the configured limit. A smaller leading TOP
// is kept.
func (g *Guard) fixTopPlacement(sql string) string {
	sql = mapCode(sql, func(code string) string {
		matches := anyTopRe.FindAllStringIndex(code, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			if selectBeforeRe.MatchString(code[:m[0]]) {
				continue
			}
			code = code[:m[0]] + code[m[1]:]
		}
		return code
	})
	loc := leadingTopRe.FindStringSubmatchIndex(sql)
	if loc == nil {
		return sql
	}
	head := "SELECT"
	if loc[2] >= 0 {
		head += " DISTINCT"
	}
	limit := g.topLimit
	if loc[6] >= 0 && loc[8] < 0 {
		if n, err := strconv.Atoi(sql[loc[6]:loc[7]]); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	return fmt.Sprintf("%s TOP %d%s", head, limit, sql[loc[1]:])
}

// fixMissingGroupBy adds a GROUP BY over the non-aggregated select items when
// an aggregate is present and no GROUP BY exists.
func (g *Guard) fixMissingGroupBy(sql string) string {
	code := masked(sql)
	if !aggregateRe.MatchString(code) || groupByRe.MatchString(code) {
		return sql
	}
	head := leadingTopRe.FindStringIndex(sql)
	from := topLevelIndex(sql, fromRe)
	if head == nil || from < 0 || from <= head[1] {
		return sql
	}

	var keys []string
	for _, item := range splitTopLevel(sql[head[1]:from]) {
		if item == "" || item == "*" || aggregateRe.MatchString(masked(item)) {
			continue
		}
		expr := item
		if loc := trailingAliasRe.FindStringSubmatchIndex(item); loc != nil && !sqlKeywords[strings.ToUpper(item[loc[2]:loc[3]])] {
			if candidate := strings.TrimSpace(item[:loc[0]]); candidate != "" {
				expr = candidate
			}
		}
		if bareLiteralRe.MatchString(expr) {
			continue
		}
		keys = append(keys, expr)
	}
	if len(keys) == 0 {
		return sql
	}

	clause := "GROUP BY " + strings.Join(keys, ", ")
	if order := topLevelIndex(sql, orderByRe); order >= 0 {
		return strings.TrimRight(sql[:order], " \n\t") + "\n" + clause + "\n" + sql[order:]
	}
	trimmed := strings.TrimRight(sql, " ;\n\t")
	return trimmed + "\n" + clause
}

// Validate applies the logic, column and structure checks. The returned error
// is a *GuardError when the statement is refused.
func (g *Guard) Validate(sql string) error {
	var reasons []string
	reasons = append(reasons, g.logicProblems(sql)...)
	if invalid := g.InvalidColumns(sql); len(invalid) > 0 {
		reasons = append(reasons, "unknown columns: "+strings.Join(invalid, ", "))
	}
	if invalid := g.InvalidObjects(sql); len(invalid) > 0 {
		reasons = append(reasons, "unknown tables: "+strings.Join(invalid, ", "))
	}
	if !IsReadOnly(sql) {
		reasons = append(reasons, "statement is not a single read-only SELECT")
	}
	if len(reasons) == 0 {
		return nil
	}
	g.logger.Warn("Rejected SQL", zap.String("sql", sql), zap.Strings("reasons", reasons))
	return &GuardError{SQL: sql, Reasons: reasons}
}

func (g *Guard) logicProblems(sql string) []string {
	var out []string
	code := masked(Normalize(sql))
	if rawAmountRe.MatchString(code) {
		out = append(out, "raw [Amount] selected without aggregation")
	}
	if unionRe.MatchString(code) && strings.Contains(strings.ToLower(sql), "compare") {
		out = append(out, "UNION used for comparison, use CASE WHEN instead")
	}
	if castOrderFYRe.MatchString(code) {
		out = append(out, "CAST(OrderFY AS INT) is invalid for labels like '2024-25', use LEFT(OrderFY, 4)")
	}
	if _, ok := g.columns["mmmmyy"]; ok && monthNameFilterRe.MatchString(sql) {
		out = append(out, "use [MMMMYY] for month-year filtering, not [MonthName]")
	}
	return out
}

// InvalidColumns returns bracketed identifiers that are neither columns,
// known objects, aliases defined in the statement, nor resolvable aliases.
func (g *Guard) InvalidColumns(sql string) []string {
	code := masked(sql)
	defined := map[string]bool{}
	for _, m := range bracketAliasRe.FindAllStringSubmatch(code, -1) {
		defined[strings.ToLower(strings.TrimSpace(m[1]))] = true
	}

	var invalid []string
	seen := map[string]bool{}
	for _, m := range bracketIdentRe.FindAllStringSubmatch(code, -1) {
		name := strings.TrimSpace(m[1])
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		if defined[key] || g.objects[key] {
			continue
		}
		if _, ok := g.ResolveColumn(name); ok {
			continue
		}
		invalid = append(invalid, name)
	}
	return invalid
}

// InvalidObjects returns FROM, JOIN and APPLY targets other than the
// registered database, schema and table names or a CTE defined in the
// statement. Names with more than three parts are always refused.
func (g *Guard) InvalidObjects(sql string) []string {
	code := masked(sql)
	d := depths(code)

	ctes := map[string]bool{}
	if strings.EqualFold(firstWord(strings.TrimLeft(code, " \t\n(")), "WITH") {
		for _, m := range cteNameRe.FindAllStringSubmatchIndex(code, -1) {
			if d[m[0]] == 0 {
				ctes[strings.ToLower(unquoteIdent(code[m[2]:m[3]]))] = true
			}
		}
	}

	var invalid []string
	seen := map[string]bool{}
	for _, loc := range objectRefRe.FindAllStringIndex(code, -1) {
		pos := loc[1]
		for {
			name := objectNameRe.FindString(code[pos:])
			if name == "" {
				break
			}
			pos += len(name)
			if !g.knownObject(name, ctes) {
				compact := whitespaceRe.ReplaceAllString(name, "")
				if !seen[strings.ToLower(compact)] {
					seen[strings.ToLower(compact)] = true
					invalid = append(invalid, compact)
				}
			}
			if m := objectAliasRe.FindStringSubmatchIndex(code[pos:]); m != nil &&
				!clauseWords[strings.ToUpper(code[pos+m[2]:pos+m[3]])] {
				pos += m[1]
			}
			rest := strings.TrimLeft(code[pos:], " \t\r\n")
			if !strings.HasPrefix(rest, ",") {
				break
			}
			next := strings.TrimLeft(rest[1:], " \t\r\n")
			pos = len(code) - len(next)
		}
	}
	return invalid
}

func (g *Guard) knownObject(name string, ctes map[string]bool) bool {
	parts := splitObjectName(name)
	if len(parts) == 0 || len(parts) > 3 {
		return false
	}
	if len(parts) == 1 && ctes[strings.ToLower(parts[0])] {
		return true
	}
	for i, p := range parts {
		if p == "" && i > 0 && i < len(parts)-1 {
			continue
		}
		if !g.objects[strings.ToLower(p)] {
			return false
		}
	}
	return true
}

// splitObjectName splits a dotted name outside brackets and quotes and
// unquotes each part
func splitObjectName(name string) []string {
	var (
		parts  []string
		start  int
		closer byte
	)
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case closer != 0:
			if c == closer {
				closer = 0
			}
		case c == '[':
			closer = ']'
		case c == '"':
			closer = '"'
		case c == '.':
			parts = append(parts, unquoteIdent(name[start:i]))
			start = i + 1
		}
	}
	return append(parts, unquoteIdent(name[start:]))
}

func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '[' && s[len(s)-1] == ']' || s[0] == '"' && s[len(s)-1] == '"') {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
