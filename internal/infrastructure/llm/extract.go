package llm

import (
	"regexp"
	"strings"

	"github.com/salesplan/backend/internal/domain/nlquery"
)

var (
	sqlFenceRe   = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	plainFenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	lineStartRe  = regexp.MustCompile(`(?im)^[ \t]*(SELECT|WITH)\b`)
	proseQueryRe = regexp.MustCompile(`(?is)^(SELECT\s+\S.*?\sFROM\s+\S|WITH\s+(\[[^\]]+\]|\w+)\s*(\([^)]*\))?\s*AS\s*\()`)
)

// ExtractSQL pulls the first statement out of a model response. Inside a
// code fence the first SELECT or WITH that starts a line is taken. Outside a
// fence a line must also read as a query (a SELECT list with FROM, or a CTE
// header), so prose that merely mentions "select" or "with" yields "".
func ExtractSQL(text string) string {
	if m := sqlFenceRe.FindStringSubmatch(text); m != nil {
		return firstAtLineStart(strings.ReplaceAll(m[1], "`", ""), false)
	}
	if m := plainFenceRe.FindStringSubmatch(text); m != nil {
		return firstAtLineStart(strings.ReplaceAll(m[1], "`", ""), false)
	}
	return firstAtLineStart(strings.ReplaceAll(text, "`", ""), true)
}

// firstAtLineStart returns the first statement starting a line. In prose
// mode the text up to the next such line must read as a query on its own.
func firstAtLineStart(text string, prose bool) string {
	locs := lineStartRe.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		stmt := nlquery.FirstStatement(text[loc[2]:])
		if prose {
			head := stmt
			if i+1 < len(locs) && locs[i+1][2]-loc[2] < len(head) {
				head = head[:locs[i+1][2]-loc[2]]
			}
			if !proseQueryRe.MatchString(strings.TrimSpace(head)) {
				continue
			}
		}
		return stmt
	}
	return ""
}
