package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Prompt is a system instruction plus the user turn
type Prompt struct {
	System string
	User   string
}

// systemPrompt is the fixed instruction set; %d is the TOP limit.
const systemPrompt = `You write Microsoft SQL Server (T-SQL) queries for a sales planning table.
Reply with exactly one read-only SELECT statement that answers the question using the schema below.

Rules:
- Never modify data. No INSERT, UPDATE, DELETE, MERGE, ALTER, DROP, TRUNCATE, CREATE or EXEC.
- Use the two-part table name exactly as given in the schema.
- Use only column names that appear in the schema, spelled exactly. Do not invent columns.
- Bracket column names, for example [OrderFY]. Never bracket function calls such as SUM(...) or CAST(...).
- Put TOP %d immediately after SELECT (or SELECT DISTINCT) and nowhere else.
- OrderFY holds labels like '2024-25'. To compare years use CAST(LEFT([OrderFY], 4) AS INT); never CAST([OrderFY] AS INT) or YEAR([OrderFY]).
- Filter month-years with [MMMMYY] (values like 'Apr-25'), not [MonthName].
- Aggregate [Amount] with SUM when grouping, and GROUP BY every non-aggregated column you select.
- Compare periods with conditional aggregation (SUM(CASE WHEN ... THEN [Amount] ELSE 0 END)), not UNION.
- Output only the SQL. No explanation.`

// BuildPrompt assembles the prompt for question over schemaText. Synonyms
// found in the question are listed so the model maps words to columns.
func BuildPrompt(schemaText, question string, synonyms map[string][]string, topLimit int) Prompt {
	var b strings.Builder
	b.WriteString("SCHEMA:\n")
	b.WriteString(strings.TrimSpace(schemaText))
	b.WriteString("\n\n")

	if len(synonyms) > 0 {
		cols := make([]string, 0, len(synonyms))
		for c := range synonyms {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		b.WriteString("COLUMN HINTS:\n")
		for _, c := range cols {
			fmt.Fprintf(&b, "- [%s]: %s\n", c, strings.Join(synonyms[c], ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("QUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nSQL:")

	return Prompt{
		System: fmt.Sprintf(systemPrompt, topLimit),
		User:   b.String(),
	}
}

// Text joins the prompt into a single completion prompt
func (p Prompt) Text() string {
	return p.System + "\n\n" + p.User
}
