package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "sql fence",
			in:   "Here you go:\n```sql\nSELECT TOP 100 [OrderFY] FROM [dbo].[SalesPlanTable]\n```\nHope it helps.",
			want: "SELECT TOP 100 [OrderFY] FROM [dbo].[SalesPlanTable]",
		},
		{
			name: "plain fence",
			in:   "```\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "tsql fence",
			in:   "```tsql\nSELECT 2\n```",
			want: "SELECT 2",
		},
		{
			name: "bare statement with prose",
			in:   "The query to select the rows is:\nSELECT [Item] FROM [dbo].[SalesPlanTable];",
			want: "SELECT [Item] FROM [dbo].[SalesPlanTable]",
		},
		{
			name: "keeps only the first statement",
			in:   "SELECT [Item] FROM t; SELECT 2",
			want: "SELECT [Item] FROM t",
		},
		{
			name: "semicolon in literal is kept",
			in:   "SELECT [Customer_Name] FROM t WHERE [Item] = 'a;b'; DROP TABLE t",
			want: "SELECT [Customer_Name] FROM t WHERE [Item] = 'a;b'",
		},
		{
			name: "backticks removed",
			in:   "SELECT `Amount` FROM t",
			want: "SELECT Amount FROM t",
		},
		{
			name: "common table expression",
			in:   "WITH x AS (SELECT 1 AS n) SELECT n FROM x",
			want: "WITH x AS (SELECT 1 AS n) SELECT n FROM x",
		},
		{
			name: "no sql",
			in:   "I cannot answer that.",
			want: "",
		},
		{
			name: "with inside a refusal",
			in:   "Sorry, I can't help with that.",
			want: "",
		},
		{
			name: "select inside a sentence",
			in:   "I will select the best rows for you.",
			want: "",
		},
		{
			name: "prose line starting with with",
			in:   "With that in mind, try a narrower question.",
			want: "",
		},
		{
			name: "prose line starting with select",
			in:   "Select a fiscal year first.\nSELECT TOP 5 [OrderFY] FROM [dbo].[SalesPlanTable]",
			want: "SELECT TOP 5 [OrderFY] FROM [dbo].[SalesPlanTable]",
		},
		{
			name: "fence without a statement",
			in:   "```\nno query here\n```",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSQL(tt.in))
		})
	}
}
