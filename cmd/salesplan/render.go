package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/salesplan/backend/internal/infrastructure/export"
)

// maxCellWidth truncates wide cells in table output
const maxCellWidth = 40

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes t as aligned columns
func printTable(w io.Writer, t export.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = clip(export.FormatValue(row[i]))
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// printPairs writes one "name  value" line per column, for single rows
func printPairs(w io.Writer, names []string, values []any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, name := range names {
		var v any
		if i < len(values) {
			v = values[i]
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, export.FormatValue(v))
	}
	return tw.Flush()
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-1]) + "…"
	}
	return s
}
