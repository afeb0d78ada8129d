package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// outputFormat selects how a command prints its response.
type outputFormat string

const (
	outputTable outputFormat = "table"
	outputWide  outputFormat = "wide"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func parseOutput(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case outputTable, outputWide, outputJSON, outputYAML:
		return f, nil
	case "":
		return outputTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (table, wide, json, yaml)", s)
	}
}

// structured reports whether f is a machine format. Progress chatter is
// suppressed for those so stdout stays parseable.
func (f outputFormat) structured() bool {
	return f == outputJSON || f == outputYAML
}

// commandGroup is the top-level command cmd belongs to: "bulk" for
// "bulk status", "get" for "get roles".
func commandGroup(cmd *cobra.Command) string {
	for cmd.HasParent() && cmd.Parent().HasParent() {
		cmd = cmd.Parent()
	}
	return cmd.Name()
}

// outputFor resolves the format of cmd. An explicit --output wins, then the
// active context's default for the command group, then its general default.
func outputFor(cmd *cobra.Command) outputFormat {
	if f := cmd.Flag("output"); f != nil && f.Changed {
		if out, err := parseOutput(flagOutput); err == nil {
			return out
		}
	}
	if activeContext != nil {
		if out, err := parseOutput(activeContext.outputFor(commandGroup(cmd))); err == nil {
			return out
		}
	}
	out, err := parseOutput(flagOutput)
	if err != nil {
		return outputTable
	}
	return out
}

// render writes v as JSON or YAML, or calls human for the table formats.
func render(w io.Writer, format outputFormat, v any, human func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		human(w)
		return nil
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

type table struct {
	w *tabwriter.Writer
}

func newTable(w io.Writer, headers ...string) *table {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return &table{w: tw}
}

func (t *table) row(values ...any) {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *table) flush() {
	_ = t.w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// localTime renders an RFC 3339 server timestamp in the local zone.
// Unparseable values are printed as received.
func localTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return dash(ts)
	}
	return t.Local().Format(time.DateTime)
}

func progressStr(p ProgressResponse) string {
	return fmt.Sprintf("%d/%d (%.0f%%)", p.Completed, p.Total, p.Percent)
}

// reasonCount is the number of failed items sharing one reason.
type reasonCount struct {
	Reason string
	Count  int
}

// failuresByReason groups failures, most frequent first.
func failuresByReason(failed []ItemFailure) []reasonCount {
	counts := make(map[string]int)
	for _, f := range failed {
		counts[f.Reason]++
	}
	out := make([]reasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, reasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// printFailures lists failed items. The wide format lists every user; the
// table format summarizes by reason once the list gets long.
func printFailures(w io.Writer, format outputFormat, failed []ItemFailure) {
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(w)
	if format != outputWide && len(failed) > failureListLimit {
		t := newTable(w, "REASON", "USERS")
		for _, rc := range failuresByReason(failed) {
			t.row(rc.Reason, rc.Count)
		}
		t.flush()
		fmt.Fprintf(w, "\nUse -o wide to list all %d failed users.\n", len(failed))
		return
	}
	t := newTable(w, "USER", "REASON")
	for _, f := range failed {
		t.row(f.UserID, f.Reason)
	}
	t.flush()
}

const failureListLimit = 20
