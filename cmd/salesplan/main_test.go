package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesplan/backend/internal/application/assistant"
	"github.com/salesplan/backend/internal/infrastructure/auth"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/export"
)

const testSecret = "cli-test-secret-key-of-32-characters"

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			DBName: "SalesDB",
			Schema: "dbo",
			Table:  "SalesPlanTable",
		},
		JWT: config.JWTConfig{
			Secret:   testSecret,
			Issuer:   "salesplan-test",
			TokenTTL: time.Hour,
		},
		Assistant: config.AssistantConfig{TopLimit: 100},
	}
}

// run executes the command tree with a fixed config and no database
func run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root, c := newRootCmd()
	c.loadConfig = func(string) (*config.Config, error) { return testConfig(), nil }
	t.Cleanup(func() { _ = c.close() })

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_Commands(t *testing.T) {
	root, _ := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"preview", "get", "columns", "audit", "export", "ask", "check", "token"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_RejectsUnknownOutput(t *testing.T) {
	_, _, err := run(t, "", "-o", "yaml", "check", "SELECT TOP 5 [Type] FROM t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "yaml"`)
}

func TestRootCmd_ConfigError(t *testing.T) {
	root, c := newRootCmd()
	c.loadConfig = func(string) (*config.Config, error) { return nil, errors.New("no config") }
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check", "SELECT 1"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, "no config", err.Error())
}

func TestCheckCmd(t *testing.T) {
	t.Run("valid statement", func(t *testing.T) {
		out, _, err := run(t, "", "check", "SELECT TOP 5 SUM([Amount]) AS [Total Sales] FROM [dbo].[SalesPlanTable]")
		require.NoError(t, err)
		assert.Contains(t, out, "valid")
		assert.NotContains(t, out, "rejected")
	})

	t.Run("repaired statement", func(t *testing.T) {
		out, _, _ := run(t, "", "check", "SELECT [mmmyy], SUM(amt) AS Total FROM dbo.SalesPlanTable GROUP BY [mmmyy]")
		assert.Contains(t, out, "repaired:\nSELECT TOP 100 [MMMMYY], SUM([Amount]) AS Total")
	})

	t.Run("rejected statement exits non-zero", func(t *testing.T) {
		out, _, err := run(t, "", "check", "DELETE FROM dbo.SalesPlanTable")
		require.ErrorIs(t, err, errRejected)
		assert.Contains(t, out, "rejected:")
		assert.Contains(t, out, "read-only")
	})

	t.Run("reads stdin", func(t *testing.T) {
		out, _, err := run(t, "SELECT TOP 5 [Foo] FROM dbo.SalesPlanTable\n", "-o", "json", "check", "-")
		require.ErrorIs(t, err, errRejected)

		var result assistant.CheckResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.False(t, result.Valid)
		require.NotEmpty(t, result.Reasons)
		assert.Contains(t, strings.Join(result.Reasons, ";"), "unknown columns: Foo")
	})
}

func TestTokenCmd(t *testing.T) {
	t.Run("issues a verifiable token", func(t *testing.T) {
		out, errOut, err := run(t, "", "token", "--subject", "reporting-bot",
			"--scope", auth.ScopeRead, "--scope", auth.ScopeAsk, "--ttl", "30m")
		require.NoError(t, err)
		assert.Contains(t, errOut, "expires ")

		claims, err := auth.NewJWTService(testConfig().JWT).ValidateToken(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "reporting-bot", claims.Subject)
		assert.True(t, claims.HasScope(auth.ScopeAsk))
		assert.False(t, claims.HasScope(auth.ScopeExport))
	})

	t.Run("json output", func(t *testing.T) {
		out, _, err := run(t, "", "-o", "json", "token", "--subject", "viewer")
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &body))
		assert.Equal(t, "viewer", body["subject"])
		assert.NotEmpty(t, body["token"])
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, _, err := run(t, "", "token", "--subject", "x", "--scope", "salesplan:write")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "salesplan:write")
	})

	t.Run("subject is required", func(t *testing.T) {
		_, _, err := run(t, "", "token")
		require.Error(t, err)
	})
}

func TestGetCmd_BadLineNumber(t *testing.T) {
	_, _, err := run(t, "", "get", "SO-1", "zero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line number must be a positive integer")
}

func TestExportCmd_BadFormat(t *testing.T) {
	_, _, err := run(t, "", "export", "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	err := printTable(&buf, export.Table{
		Columns: []string{"Customer", "Amount"},
		Rows: [][]any{
			{"Acme Traders", decimal.RequireFromString("12500.50")},
			{"Zed\tCo", nil},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Customer      Amount", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "Acme Traders  12500.5", strings.TrimRight(lines[1], " "))
	assert.True(t, strings.HasPrefix(lines[2], "Zed Co"))
}

func TestPrintPairs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPairs(&buf, []string{"DocumentNo", "LineNo"}, []any{"SO-1", 10}))
	assert.Equal(t, "DocumentNo  SO-1\nLineNo      10\n", buf.String())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short"))

	long := clip(strings.Repeat("a", 100))
	assert.Len(t, []rune(long), maxCellWidth)
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestRepl(t *testing.T) {
	var asked []string
	answer := func(q string) error {
		asked = append(asked, q)
		if q == "bad" {
			return errors.New("no template matched")
		}
		return nil
	}

	var out, errOut bytes.Buffer
	err := repl(strings.NewReader("total sales\n\n  bad  \nquit\nnever asked\n"), &out, &errOut, answer)
	require.NoError(t, err)

	assert.Equal(t, []string{"total sales", "bad"}, asked)
	assert.Contains(t, errOut.String(), "error: no template matched")
	assert.True(t, strings.HasPrefix(out.String(), "> "))
}

func TestRepl_EOF(t *testing.T) {
	var out bytes.Buffer
	err := repl(strings.NewReader("top customers"), &out, &bytes.Buffer{}, func(string) error { return nil })
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.String(), "> \n"))
}
