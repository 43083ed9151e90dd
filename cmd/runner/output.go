package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ncobase/runner/structs"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v in the requested format. table is used for formatTable.
func render(w io.Writer, format string, v any, table func(*tabwriter.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case formatTable, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func jobsTable(jobs []*structs.Job) func(*tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tWORKSPACE\tTYPE\tSTATUS\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.WorkspaceID, j.Type, j.Status, stamp(&j.CreatedAt))
		}
	}
}

func runsTable(runs []*structs.Run) func(*tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tATTEMPT\tSTATUS\tWORKER\tSTARTED\tCOMPLETED\tREASON")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Attempt, r.Status, dash(r.WorkerID), stamp(r.StartedAt), stamp(r.CompletedAt), dash(r.Reason))
		}
	}
}

func logLine(w io.Writer, e *structs.LogEntry) {
	fmt.Fprintf(w, "%s  %-5s  %s\n", e.Timestamp.Format(time.RFC3339Nano), e.Level, e.Message)
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
