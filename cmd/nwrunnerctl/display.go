package main

import (
	"fmt"
	"io"
)

// statusSymbol mirrors the teacher's display.go glyph table, mapped onto
// DeviceResultStatus instead of task status.
func statusSymbol(status string) string {
	switch status {
	case "success":
		return "✓"
	case "running":
		return "●"
	case "queued":
		return "○"
	case "failed":
		return "✗"
	case "cancelled":
		return "→"
	default:
		return "?"
	}
}

// printJobTable renders a job's device table as plain text, used by the
// non-interactive "status" subcommand.
func printJobTable(w io.Writer, rec *jobRecordDTO) {
	fmt.Fprintf(w, "job %s  status=%s\n", rec.JobID, rec.Status)

	if rec.JobName != "" {
		fmt.Fprintf(w, "name: %s\n", rec.JobName)
	}

	order := rec.DeviceOrder

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%-2s %-24s %-10s %-8s %s\n", "", "device", "status", "attempts", "error")

	for _, key := range order {
		dr := rec.DeviceResults[key]
		if dr == nil {
			continue
		}

		fmt.Fprintf(w, "%-2s %-24s %-10s %-8d %s\n", statusSymbol(dr.Status), key, dr.Status, dr.Attempts, dr.Error)
	}
}
