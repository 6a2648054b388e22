package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ppamtools/shift-assigner/pkg/core/services"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func statusColor(status db.ShiftStatus) *color.Color {
	switch status {
	case db.StatusAssigned:
		return okColor
	case db.StatusPending:
		return warnColor
	default:
		return dimColor
	}
}

func renderResult(w io.Writer, r services.Result) {
	switch {
	case !r.OK:
		errColor.Fprintf(w, "✗ Turno #%d: %s\n", r.ShiftID, r.Error)
	case r.Message != "":
		warnColor.Fprintf(w, "• Turno #%d: %s\n", r.ShiftID, r.Message)
	default:
		okColor.Fprintf(w, "✓ Turno #%d", r.ShiftID)
		fmt.Fprintf(w, " asignados %v ", r.Assigned)
		statusColor(r.Status).Fprintf(w, "[%s]\n", r.Status)
	}
}

func renderBatch(w io.Writer, b services.BatchResult) {
	fmt.Fprintf(w, "\nRun %s (%s → %s)\n\n", b.RunID, b.From, b.To)
	for _, r := range b.Results {
		fmt.Fprint(w, "  ")
		renderResult(w, r)
	}
	fmt.Fprintln(w)

	if b.Error != "" {
		errColor.Fprintf(w, "Batch aborted: %s\n", b.Error)
	}
	summary := okColor
	if !b.OK {
		summary = errColor
	}
	summary.Fprintf(w, "Processed %d, failed %d", b.Processed, b.Failed)
	dimColor.Fprintf(w, " in %dms\n", b.DurationMS)
	if b.PipelineFile != "" {
		dimColor.Fprintf(w, "Pipeline: %s\n", b.PipelineFile)
	}
}
