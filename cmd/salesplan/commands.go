package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesplan/backend/internal/app"
	"github.com/salesplan/backend/internal/application/assistant"
	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/infrastructure/auth"
	"github.com/salesplan/backend/internal/infrastructure/export"
)

func newPreviewCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the first rows of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.Plans.Preview(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			if err := printTable(cmd.OutOrStdout(), export.RecordsTable(result.Records)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d rows (limit %d)\n", result.Count(), result.Limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "rows to read, at most 1000 (default from config)")
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get DOCUMENT_NO LINE_NO",
		Short: "Show one row by its key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineNo, err := strconv.Atoi(args[1])
			if err != nil || lineNo < 1 {
				return fmt.Errorf("line number must be a positive integer, got %q", args[1])
			}
			a, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			record, err := a.Plans.Get(cmd.Context(), salesplan.RecordKey{DocumentNo: args[0], LineNo: lineNo})
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), record)
			}
			return printPairs(cmd.OutOrStdout(), salesplan.ColumnNames(), record.Values())
		},
	}
}

func newColumnsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "List the table's columns as reported by the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			cols, err := a.Plans.Columns(cmd.Context())
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), cols)
			}
			t := export.Table{Columns: []string{"#", "Name", "Type", "Nullable"}}
			for _, col := range cols {
				t.Rows = append(t.Rows, []any{col.Position, col.Name, col.DataType, col.IsNullable})
			}
			return printTable(cmd.OutOrStdout(), t)
		},
	}
}

func newAuditCmd(c *cli) *cobra.Command {
	var (
		limit  int
		sample int
		csvOut string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the derived columns of the first rows against OrderDate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Audits.Audit(cmd.Context(), limit, sample)
			if err != nil {
				return err
			}

			if csvOut != "" {
				if err := writeFile(csvOut, func(w io.Writer) error {
					return export.WriteViolationsCSV(w, report.Violations)
				}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if c.output == outputJSON {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "rows checked: %d, clean: %d\n\n", report.RowsChecked, report.Clean)
			summary := export.Table{Columns: []string{"Rule", "Violations"}}
			for _, rule := range salesplan.AllRules {
				summary.Rows = append(summary.Rows, []any{string(rule), report.ByRule[rule]})
			}
			if err := printTable(out, summary); err != nil {
				return err
			}
			if len(report.Violations) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			detail := export.Table{Columns: []string{"DocumentNo", "LineNo", "Rule", "Expected", "Actual"}}
			for _, v := range report.Violations {
				detail.Rows = append(detail.Rows, []any{v.Key.DocumentNo, v.Key.LineNo, string(v.Rule), v.Expected, v.Actual})
			}
			if err := printTable(out, detail); err != nil {
				return err
			}
			if report.Truncated {
				fmt.Fprintf(cmd.ErrOrStderr(), "only the first %d violations are listed\n", len(report.Violations))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "rows to check, at most 1000")
	cmd.Flags().IntVar(&sample, "sample", 0, "violations to list (counts always cover all)")
	cmd.Flags().StringVar(&csvOut, "csv", "", "also write the listed violations to this CSV file")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		format string
		limit  int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the first rows to a CSV or XLSX file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" && out != "" && out != "-" {
				format = strings.TrimPrefix(filepath.Ext(out), ".")
			}
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if out == "" {
				out = "sales_plan." + parsed
			}

			a, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			var rows int
			write := func(w io.Writer) error {
				rows, err = a.Exports.Export(cmd.Context(), parsed, limit, w)
				return err
			}
			if out == "-" {
				return write(cmd.OutOrStdout())
			}
			if err := writeFile(out, write); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", rows, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv or xlsx (default from --out extension, else csv)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "rows to export, at most 1000")
	cmd.Flags().StringVar(&out, "out", "", `output file, "-" for stdout (default sales_plan.<format>)`)
	return cmd
}

func newAskCmd(c *cli) *cobra.Command {
	var (
		showSQL bool
		save    string
	)
	cmd := &cobra.Command{
		Use:   "ask [QUESTION]",
		Short: "Answer a question about the sales plan; starts a prompt when no question is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			answer := func(question string) error {
				result, err := a.Assistant.Ask(cmd.Context(), question)
				if err != nil {
					return err
				}
				if save != "" {
					if err := saveResult(save, result); err != nil {
						return err
					}
				}
				return c.printAnswer(cmd, result, showSQL)
			}

			if question := strings.TrimSpace(strings.Join(args, " ")); question != "" {
				return answer(question)
			}
			return repl(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), answer)
		},
	}
	cmd.Flags().BoolVar(&showSQL, "sql", true, "print the executed SQL before the rows")
	cmd.Flags().StringVar(&save, "save", "", "also write each answer to this .csv or .xlsx file")
	return cmd
}

func (c *cli) printAnswer(cmd *cobra.Command, result *assistant.AskResult, showSQL bool) error {
	out := cmd.OutOrStdout()
	if c.output == outputJSON {
		return printJSON(out, result)
	}
	if showSQL {
		fmt.Fprintf(out, "-- %s\n%s\n\n", result.Source, result.SQL)
	}
	if err := printTable(out, export.ResultTable(&salesplan.ResultSet{Columns: result.Columns, Rows: result.Rows})); err != nil {
		return err
	}
	note := fmt.Sprintf("%d rows in %s", len(result.Rows), result.Elapsed.Round(time.Millisecond))
	if result.Truncated {
		note += " (truncated)"
	}
	fmt.Fprintln(cmd.ErrOrStderr(), note)
	return nil
}

// repl answers one question per line until EOF or "exit". Failed questions
// are reported and the loop continues.
func repl(in io.Reader, out, errOut io.Writer, answer func(string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", `\q`:
			return nil
		}
		if err := answer(line); err != nil {
			fmt.Fprintln(errOut, "error:", err)
		}
	}
}

func saveResult(path string, result *assistant.AskResult) error {
	format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}
	table := export.ResultTable(&salesplan.ResultSet{Columns: result.Columns, Rows: result.Rows})
	return writeFile(path, func(w io.Writer) error {
		return export.Write(w, format, table)
	})
}

// errRejected makes check exit non-zero for refused statements
var errRejected = errors.New("statement rejected")

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check SQL",
		Short: `Repair and validate a statement without running it ("-" reads stdin)`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			if sql == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				sql = string(data)
			}

			svc := assistant.NewService(nil, nil, app.NewGuard(c.cfg, c.log), assistant.Config{
				TopLimit: c.cfg.Assistant.TopLimit,
			}, c.log)
			result, err := svc.Check(sql)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.output == outputJSON {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else {
				if result.Changed {
					fmt.Fprintf(out, "repaired:\n%s\n\n", result.Repaired)
				}
				if result.Valid {
					fmt.Fprintln(out, "valid")
				}
				for _, r := range result.Reasons {
					fmt.Fprintln(out, "rejected:", r)
				}
			}
			if !result.Valid {
				return errRejected
			}
			return nil
		},
	}
}

func newTokenCmd(c *cli) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}
			for _, s := range scopes {
				switch s {
				case auth.ScopeRead, auth.ScopeAsk, auth.ScopeExport:
				default:
					return fmt.Errorf("unknown scope %q", s)
				}
			}
			token, expiresAt, err := auth.NewJWTService(c.cfg.JWT).GenerateToken(subject, scopes, ttl)
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"token":      token,
					"subject":    subject,
					"scopes":     scopes,
					"expires_at": expiresAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "caller the token identifies")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "granted scopes: salesplan:read, salesplan:ask, salesplan:export")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// writeFile creates path and removes it again when fill fails
func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
