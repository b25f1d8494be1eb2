package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// printResult writes strings verbatim and everything else as indented JSON.
func printResult(w io.Writer, v any) error {
	switch r := v.(type) {
	case string:
		_, err := io.WriteString(w, r)
		return err
	case []byte:
		_, err := w.Write(r)
		return err
	}
	out, err := json.MarshalIndent(jsonSafe(v), "", "  ")
	if err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}

// jsonSafe converts map[any]any, which decoded CBOR may contain, into JSON-encodable maps.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = jsonSafe(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = jsonSafe(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = jsonSafe(val)
		}
		return s
	default:
		return v
	}
}

// renderOperations draws the answer to "list" as a table. A list gives one column, a map
// gives name and description columns.
func renderOperations(v any) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	switch ops := jsonSafe(v).(type) {
	case []any:
		tw.AppendHeader(table.Row{"Operation"})
		for _, op := range ops {
			tw.AppendRow(table.Row{fmt.Sprint(op)})
		}
	case map[string]any:
		names := make([]string, 0, len(ops))
		for name := range ops {
			names = append(names, name)
		}
		sort.Strings(names)
		tw.AppendHeader(table.Row{"Operation", "Description"})
		for _, name := range names {
			tw.AppendRow(table.Row{name, fmt.Sprint(ops[name])})
		}
	default:
		tw.AppendHeader(table.Row{"Operation"})
		tw.AppendRow(table.Row{fmt.Sprint(v)})
	}
	return tw.Render()
}
