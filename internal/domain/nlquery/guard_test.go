package nlquery

import (
	"errors"
	"testing"

	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"plain select", "SELECT [Item] FROM dbo.SalesPlanTable", true},
		{"trailing semicolon", "  select top 5 * from dbo.SalesPlanTable;", true},
		{"cte", "WITH x AS (SELECT 1 AS a) SELECT a FROM x", true},
		{"cte with column list", "WITH x (a) AS (SELECT [Item] FROM t) SELECT a FROM x", true},
		{"parenthesised", "(SELECT [Item] FROM t)", true},
		{"keyword inside literal", "SELECT * FROM t WHERE name = 'drop; delete'", true},
		{"commented second statement", "SELECT a FROM t -- ; DROP TABLE x", true},
		{"nested comment hides statement", "SELECT a FROM t /* /* */ ; DROP TABLE t */", true},
		{"no from clause", "SELECT 1", false},
		{"empty select list", "SELECT TOP 10 FROM t", false},
		{"from without target", "SELECT a FROM", false},
		{"prose after repair", "SELECT TOP 100 the best rows for you.", false},
		{"with prose", "with that.", false},
		{"cte without body", "WITH x SELECT a FROM t", false},
		{"from only inside subquery", "SELECT (SELECT MAX(a) FROM t)", false},
		{"empty", "", false},
		{"only comment", "-- SELECT 1", false},
		{"second statement", "SELECT 1; DROP TABLE t", false},
		{"literal does not hide statement", "SELECT '--' ; DROP TABLE x", false},
		{"select into", "SELECT * INTO new_table FROM t", false},
		{"update", "UPDATE t SET a = 1", false},
		{"exec", "EXEC sp_who", false},
		{"extended procedure", "SELECT xp_cmdshell", false},
		{"waitfor", "SELECT * FROM t WAITFOR DELAY '0:0:5'", false},
		{"merge", "MERGE t USING s ON 1 = 1 WHEN MATCHED THEN DELETE;", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReadOnly(tt.sql))
		})
	}
}

func TestGuard_Repair(t *testing.T) {
	g := NewGuard(zap.NewNop())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "double brackets",
			in:   "SELECT [[Amount]] FROM dbo.SalesPlanTable",
			want: "SELECT TOP 100 [Amount] FROM dbo.SalesPlanTable",
		},
		{
			name: "column aliases resolved",
			in:   "SELECT [mmmyy], SUM(amt) AS Total FROM dbo.SalesPlanTable GROUP BY [mmmyy]",
			want: "SELECT TOP 100 [MMMMYY], SUM([Amount]) AS Total FROM dbo.SalesPlanTable GROUP BY [MMMMYY]",
		},
		{
			name: "cast of fiscal year label",
			in:   "SELECT TOP 10 OrderFY FROM t WHERE CAST(OrderFY AS INT) >= 2023",
			want: "SELECT TOP 10 OrderFY FROM t WHERE CAST(LEFT(OrderFY, 4) AS INT) >= 2023",
		},
		{
			name: "year of fiscal year label",
			in:   "SELECT YEAR([OrderFY]) AS y FROM t",
			want: "SELECT TOP 100 LEFT([OrderFY], 4) AS y FROM t",
		},
		{
			name: "backticks removed",
			in:   "SELECT `Type` FROM t",
			want: "SELECT TOP 100 Type FROM t",
		},
		{
			name: "oversized top capped",
			in:   "SELECT DISTINCT TOP 5000 [Type] FROM t",
			want: "SELECT DISTINCT TOP 100 [Type] FROM t",
		},
		{
			name: "misplaced top moved",
			in:   "SELECT [Customer_Name], TOP 5 SUM([Amount]) AS Total FROM dbo.SalesPlanTable GROUP BY [Customer_Name]",
			want: "SELECT TOP 100 [Customer_Name], SUM([Amount]) AS Total FROM dbo.SalesPlanTable GROUP BY [Customer_Name]",
		},
		{
			name: "missing group by added before order by",
			in:   "SELECT [Customer_Name] AS Customer, SUM([Amount]) AS Total FROM dbo.SalesPlanTable ORDER BY Total DESC",
			want: "SELECT TOP 100 [Customer_Name] AS Customer, SUM([Amount]) AS Total FROM dbo.SalesPlanTable\nGROUP BY [Customer_Name]\nORDER BY Total DESC",
		},
		{
			name: "missing group by appended",
			in:   "SELECT [OrderFY], LEFT([MMMMYY], 3) AS mon, COUNT(*) AS n FROM t;",
			want: "SELECT TOP 100 [OrderFY], LEFT([MMMMYY], 3) AS mon, COUNT(*) AS n FROM t\nGROUP BY [OrderFY], LEFT([MMMMYY], 3)",
		},
		{
			name: "pure aggregate needs no group by",
			in:   "SELECT SUM([Amount]) AS Total FROM t",
			want: "SELECT TOP 100 SUM([Amount]) AS Total FROM t",
		},
		{
			name: "literals untouched",
			in:   "SELECT TOP 5 [Type] FROM t WHERE [Customer_Name] = 'amt [[x]] value'",
			want: "SELECT TOP 5 [Type] FROM t WHERE [Customer_Name] = 'amt [[x]] value'",
		},
		{
			name: "select aliases are not columns",
			in:   "SELECT TOP 5 SUM([Amount]) AS value FROM t",
			want: "SELECT TOP 5 SUM([Amount]) AS value FROM t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Repair(tt.in))
		})
	}
}

func TestGuard_RepairLogsChanges(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	g := NewGuard(zap.New(core), WithTopLimit(50))

	got := g.Repair("SELECT amt FROM t")

	assert.Equal(t, "SELECT TOP 50 [Amount] FROM t", got)
	entries := logs.FilterMessage("Repaired generated SQL").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "column_names", entries[0].ContextMap()["fix"])
	assert.Equal(t, "top_placement", entries[1].ContextMap()["fix"])
}

func TestGuard_Validate(t *testing.T) {
	g := NewGuard(zap.NewNop(), WithObjects("sales"))

	t.Run("accepts templated query", func(t *testing.T) {
		sql := "SELECT TOP 100 [MonthName], SUM([Amount]) AS TotalAmount\nFROM [dbo].[SalesPlanTable]\n" +
			"WHERE [MonthName] IN ('April', 'May')\nGROUP BY [MonthName]\nORDER BY TotalAmount DESC"
		assert.NoError(t, g.Validate(sql))
	})

	t.Run("accepts repaired fiscal year cast", func(t *testing.T) {
		assert.NoError(t, g.Validate("SELECT TOP 5 [OrderFY] FROM [sales].[SalesPlanTable] WHERE CAST(LEFT(OrderFY, 4) AS INT) > 2022"))
	})

	t.Run("accepts bracketed select alias", func(t *testing.T) {
		assert.NoError(t, g.Validate("SELECT TOP 5 SUM([Amount]) AS [Total Sales] FROM [dbo].[SalesPlanTable]"))
	})

	rejected := []struct {
		name   string
		sql    string
		reason string
	}{
		{"raw amount", "SELECT TOP 100 [Amount] FROM dbo.SalesPlanTable", "raw [Amount]"},
		{"cast of label", "SELECT TOP 5 [OrderFY] FROM t WHERE CAST(OrderFY AS INT) > 2022", "CAST(OrderFY AS INT)"},
		{"month name for month-year", "SELECT TOP 5 [Type] FROM t WHERE [MonthName] = 'Apr-25'", "[MMMMYY]"},
		{"union comparison", "SELECT TOP 5 [OrderFY], SUM([Amount]) AS compare_fy FROM t GROUP BY [OrderFY] UNION SELECT TOP 5 [OrderFY], 0 FROM t", "UNION"},
		{"unknown column", "SELECT TOP 5 [Foo] FROM dbo.SalesPlanTable", "unknown columns: Foo"},
		{"write statement", "DELETE FROM dbo.SalesPlanTable", "read-only"},
		{"other table", "SELECT TOP 5 [Item] FROM dbo.Payroll", "unknown tables: dbo.Payroll"},
	}
	for _, tt := range rejected {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			err := g.Validate(tt.sql)
			require.Error(t, err)

			var guardErr *GuardError
			require.True(t, errors.As(err, &guardErr))
			assert.Equal(t, tt.sql, guardErr.SQL)
			assert.Contains(t, guardErr.Error(), tt.reason)
			assert.True(t, errors.Is(err, shared.ErrUnsafeQuery))
		})
	}
}

func TestGuard_InvalidObjects(t *testing.T) {
	g := NewGuard(zap.NewNop(), WithObjects("SalesDB", "sales"))

	allowed := []string{
		"SELECT TOP 5 [Item] FROM SalesPlanTable",
		"SELECT TOP 5 [Item] FROM [dbo].[SalesPlanTable] s WHERE s.[Type] = 'Order'",
		"SELECT TOP 5 [Item] FROM SalesDB.dbo.SalesPlanTable AS s",
		"SELECT TOP 5 [Item] FROM [SalesDB]..[SalesPlanTable]",
		"SELECT TOP 5 a.[Item] FROM dbo.SalesPlanTable a JOIN [sales].[SalesPlanTable] b ON a.[DocumentNo] = b.[DocumentNo]",
		"SELECT TOP 5 n FROM (SELECT [Item] AS n FROM dbo.SalesPlanTable) x",
		"WITH fy AS (SELECT [OrderFY] FROM dbo.SalesPlanTable), [last] AS (SELECT [OrderFY] FROM fy) SELECT TOP 5 [OrderFY] FROM [last]",
		"SELECT TOP 5 [Item] FROM dbo.SalesPlanTable WHERE [Customer_Name] = 'from sys.objects'",
	}
	for _, sql := range allowed {
		assert.Empty(t, g.InvalidObjects(sql), sql)
	}

	refused := []struct {
		name string
		sql  string
		want []string
	}{
		{"system view", "SELECT TOP 10 name, password_hash FROM sys.sql_logins", []string{"sys.sql_logins"}},
		{"other database", "SELECT TOP 10 * FROM OtherDB.dbo.Payroll", []string{"OtherDB.dbo.Payroll"}},
		{"joined system view", "SELECT TOP 10 s.[Item] FROM [dbo].[SalesPlanTable] s JOIN sys.objects o ON 1=1", []string{"sys.objects"}},
		{"other table", "SELECT TOP 10 * FROM dbo.Employees", []string{"dbo.Employees"}},
		{"comma join", "SELECT TOP 10 * FROM dbo.SalesPlanTable s, [dbo].[Payroll] p", []string{"[dbo].[Payroll]"}},
		{"subquery source", "SELECT TOP 10 [Item] FROM dbo.SalesPlanTable WHERE [Item] IN (SELECT name FROM sys.tables)", []string{"sys.tables"}},
		{"linked server", "SELECT TOP 10 * FROM remote.SalesDB.dbo.SalesPlanTable", []string{"remote.SalesDB.dbo.SalesPlanTable"}},
		{"temp table", "SELECT TOP 10 * FROM #scratch", []string{"#scratch"}},
		{"cross apply function", "SELECT TOP 10 t.text FROM dbo.SalesPlanTable CROSS APPLY sys.dm_exec_sql_text(0x01) t", []string{"sys.dm_exec_sql_text"}},
	}
	for _, tt := range refused {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.InvalidObjects(tt.sql))

			err := g.Validate(g.Repair(tt.sql))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unknown tables")
		})
	}
}

func TestGuard_ValidateRejectsProse(t *testing.T) {
	g := NewGuard(zap.NewNop())

	for _, text := range []string{"with that.", "I will select the best rows for you."} {
		err := g.Validate(g.Repair(text))
		require.Error(t, err, text)
		assert.ErrorIs(t, err, shared.ErrUnsafeQuery)
	}
}

func TestGuard_ResolveColumn(t *testing.T) {
	g := NewGuard(nil, WithAliases(map[string]string{"Sales Value": "Amount"}))

	col, ok := g.ResolveColumn("[ Sales Value ]")
	require.True(t, ok)
	assert.Equal(t, "Amount", col)

	col, ok = g.ResolveColumn("fy")
	require.True(t, ok)
	assert.Equal(t, "OrderFY", col)

	col, ok = g.ResolveColumn("customer_name")
	require.True(t, ok)
	assert.Equal(t, "Customer_Name", col)

	_, ok = g.ResolveColumn("Region")
	assert.False(t, ok)
}

func TestGuard_WithColumns(t *testing.T) {
	g := NewGuard(nil, WithColumns([]string{"DocumentNo", "Amount"}))

	assert.Empty(t, g.InvalidColumns("SELECT [DocumentNo] FROM t"))
	assert.Equal(t, []string{"Grade"}, g.InvalidColumns("SELECT [DocumentNo], [Grade], [Grade] FROM t"))
	assert.Equal(t, DefaultTopLimit, g.TopLimit())
}
