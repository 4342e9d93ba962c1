package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"duck-etl/internal/domain"
)

// Output formats.
const (
	outputTable = "table"
	outputCSV   = "csv"
	outputJSON  = "json"
)

func validateOutputFormat(output string) error {
	switch output {
	case "", outputTable, outputCSV, outputJSON:
		return nil
	}
	return fmt.Errorf("unsupported output format %q: use 'table', 'csv' or 'json'", output)
}

// resolveOutput picks table for a terminal and csv for pipes and files when
// no format was requested.
func resolveOutput(w io.Writer, output string) string {
	if output != "" {
		return output
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		return outputTable
	}
	return outputCSV
}

func printFrame(w io.Writer, output string, frame domain.Frame) error {
	rows := make([][]string, len(frame.Rows))
	for i, row := range frame.Rows {
		out := make([]string, len(row))
		for j, v := range row {
			out[j] = formatValue(v)
		}
		rows[i] = out
	}
	if resolveOutput(w, output) == outputJSON {
		objs := make([]map[string]any, len(frame.Rows))
		for i, row := range frame.Rows {
			obj := make(map[string]any, len(frame.Columns))
			for j, col := range frame.Columns {
				if j < len(row) {
					obj[col] = jsonValue(row[j])
				}
			}
			objs[i] = obj
		}
		return writeJSON(w, objs)
	}
	return printRows(w, output, frame.Columns, rows)
}

func printRows(w io.Writer, output string, header []string, rows [][]string) error {
	switch resolveOutput(w, output) {
	case outputJSON:
		objs := make([]map[string]string, len(rows))
		for i, row := range rows {
			obj := make(map[string]string, len(header))
			for j, col := range header {
				if j < len(row) {
					obj[col] = row[j]
				}
			}
			objs[i] = obj
		}
		return writeJSON(w, objs)
	case outputCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if len(rows) == 0 {
			fmt.Fprintln(tw, "(no rows)")
		}
		return tw.Flush()
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatValue renders a cell. Dates come back from DuckDB as midnight UTC
// and print without a time part.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func jsonValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatValue(t)
	}
	return v
}

func joinNames(names []string) string {
	return strings.Join(names, ",")
}
