package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(
		"dbo.SalesPlanTable(OrderFY nvarchar, Amount decimal)",
		"  total amount by fy  ",
		map[string][]string{
			"OrderFY": {"fy", "fiscal year"},
			"Amount":  {"amount", "value"},
		},
		50,
	)

	assert.Contains(t, p.System, "TOP 50 immediately after SELECT")
	assert.Contains(t, p.System, "CAST(LEFT([OrderFY], 4) AS INT)")
	assert.True(t, strings.HasPrefix(p.User, "SCHEMA:\ndbo.SalesPlanTable(OrderFY nvarchar, Amount decimal)\n\n"))
	assert.Contains(t, p.User, "COLUMN HINTS:\n- [Amount]: amount, value\n- [OrderFY]: fy, fiscal year\n")
	assert.True(t, strings.HasSuffix(p.User, "QUESTION:\ntotal amount by fy\n\nSQL:"))
	assert.True(t, strings.HasPrefix(p.Text(), p.System+"\n\n"))
}

func TestBuildPrompt_NoHints(t *testing.T) {
	p := BuildPrompt("schema", "q", nil, 100)
	assert.NotContains(t, p.User, "COLUMN HINTS")
}
