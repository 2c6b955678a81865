package nlquery

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

type segKind int

const (
	segCode segKind = iota
	segLiteral
	segComment
)

// segment is a run of SQL text of a single lexical kind. Bracketed and
// double-quoted identifiers stay inside code segments.
type segment struct {
	text string
	kind segKind
}

// lex cuts sql into code, single-quoted literal and comment segments.
// Block comments nest as they do in T-SQL.
func lex(sql string) []segment {
	var (
		out   []segment
		start int
	)
	flush := func(end int, kind segKind) {
		if end > start {
			out = append(out, segment{text: sql[start:end], kind: kind})
		}
		start = end
	}

	n := len(sql)
	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == '\'':
			flush(i, segCode)
			j := i + 1
			for j < n {
				if sql[j] == '\'' {
					if j+1 < n && sql[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			i = j
			flush(i, segLiteral)
		case c == '[' || c == '"':
			closer := byte(']')
			if c == '"' {
				closer = '"'
			}
			j := i + 1
			for j < n {
				if sql[j] == closer {
					if j+1 < n && sql[j+1] == closer {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			i = j
		case c == '-' && i+1 < n && sql[i+1] == '-':
			flush(i, segCode)
			j := strings.IndexByte(sql[i:], '\n')
			if j < 0 {
				i = n
			} else {
				i += j
			}
			flush(i, segComment)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			flush(i, segCode)
			depth := 0
			j := i
			for j < n {
				if j+1 < n && sql[j] == '/' && sql[j+1] == '*' {
					depth++
					j += 2
					continue
				}
				if j+1 < n && sql[j] == '*' && sql[j+1] == '/' {
					depth--
					j += 2
					if depth == 0 {
						break
					}
					continue
				}
				j++
			}
			i = j
			flush(i, segComment)
		default:
			i++
		}
	}
	flush(n, segCode)
	return out
}

// StripComments removes -- and /* */ comments outside string literals
func StripComments(sql string) string {
	var b strings.Builder
	for _, seg := range lex(sql) {
		if seg.kind == segComment {
			b.WriteString(" ")
			continue
		}
		b.WriteString(seg.text)
	}
	return b.String()
}

// Normalize strips comments and collapses whitespace
func Normalize(sql string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(StripComments(sql), " "))
}

// mapCode applies fn to the code parts of sql, leaving literals and comments
func mapCode(sql string, fn func(string) string) string {
	var b strings.Builder
	for _, seg := range lex(sql) {
		if seg.kind == segCode {
			b.WriteString(fn(seg.text))
			continue
		}
		b.WriteString(seg.text)
	}
	return b.String()
}

// codeOnly empties literals and drops comments so keyword scans ignore them
func codeOnly(sql string) string {
	var b strings.Builder
	for _, seg := range lex(sql) {
		switch seg.kind {
		case segLiteral:
			b.WriteString("''")
		case segComment:
			b.WriteString(" ")
		default:
			b.WriteString(seg.text)
		}
	}
	return b.String()
}

// masked blanks literal and comment contents with spaces, keeping offsets
func masked(sql string) string {
	var b strings.Builder
	for _, seg := range lex(sql) {
		if seg.kind == segCode {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(strings.Repeat(" ", len(seg.text)))
	}
	return b.String()
}

// depths returns the parenthesis depth of each byte of sql. An opening
// parenthesis sits at the outer depth.
func depths(sql string) []int {
	m := masked(sql)
	d := make([]int, len(m)+1)
	depth := 0
	for i := 0; i < len(m); i++ {
		switch m[i] {
		case '(':
			d[i] = depth
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
		}
		d[i] = depth
	}
	d[len(m)] = depth
	return d
}

// topLevelIndex returns the offset of the first match of re at parenthesis
// depth zero outside literals and comments, or -1.
func topLevelIndex(sql string, re *regexp.Regexp) int {
	d := depths(sql)
	for _, loc := range re.FindAllStringIndex(masked(sql), -1) {
		if d[loc[0]] == 0 {
			return loc[0]
		}
	}
	return -1
}

// splitTopLevel splits s on commas at depth zero outside literals
func splitTopLevel(s string) []string {
	d := depths(s)
	m := masked(s)
	var (
		parts []string
		start int
	)
	for i := 0; i < len(m); i++ {
		if m[i] == ',' && d[i] == 0 {
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// QuoteLiteral renders s as a T-SQL string literal, doubling single quotes
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent brackets a column or object name
func QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// FirstStatement returns sql up to its first statement separator outside
// literals and comments, trimmed.
func FirstStatement(sql string) string {
	offset := 0
	for _, seg := range lex(sql) {
		if seg.kind == segCode {
			if i := separatorIndex(seg.text); i >= 0 {
				return strings.TrimSpace(sql[:offset+i])
			}
		}
		offset += len(seg.text)
	}
	return strings.TrimSpace(sql)
}

// separatorIndex finds a ';' in code text that is not inside a bracketed or
// double-quoted identifier.
func separatorIndex(code string) int {
	var closer byte
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case closer != 0:
			if c == closer {
				closer = 0
			}
		case c == '[':
			closer = ']'
		case c == '"':
			closer = '"'
		case c == ';':
			return i
		}
	}
	return -1
}
