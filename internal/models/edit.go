package models

import (
	"fmt"
	"strings"
)

// OperationType names one kind of PatchApply operation.
type OperationType string

const (
	OpReplace OperationType = "replace"
	OpInsert  OperationType = "insert"
	OpDelete  OperationType = "delete"
)

// EditOperation is one entry of a patch_apply batch. Line numbers are 1-based
// and refer to the file as it was before the batch started.
type EditOperation struct {
	Type    OperationType `json:"type"`
	Start   int           `json:"start"`
	End     int           `json:"end,omitempty"`
	Content string        `json:"content,omitempty"`
}

// LineCountDelta records the total line count of a file before and after a mutation.
type LineCountDelta struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// Delta is After minus Before.
func (d LineCountDelta) Delta() int {
	return d.After - d.Before
}

// EditReport is the structured result of every LineEditEngine mutation.
type EditReport struct {
	Path      string `json:"path"`
	Operation string `json:"operation"`
	// Summary is the first human-readable line, e.g. "Deleted lines 2-4 (3 lines)".
	Summary string         `json:"summary"`
	Lines   LineCountDelta `json:"lines"`
	// ShiftFrom is the first original line number whose position moved.
	// Zero when the operation does not shift a known range (appends, regex edits).
	ShiftFrom int `json:"shift_from,omitempty"`
	// Count is the number of substitutions or modified lines, where that applies.
	Count int `json:"count,omitempty"`
}

// String renders the report in the stable text form returned to agents.
func (r EditReport) String() string {
	var b strings.Builder
	b.WriteString(r.Summary)
	b.WriteString("\n")

	d := r.Lines.Delta()
	switch {
	case d == 0:
		b.WriteString("Line numbers unchanged")
	case d > 0 && r.ShiftFrom > 0:
		fmt.Fprintf(&b, "Added %d lines - Lines %d+ shifted DOWN by %d", d, r.ShiftFrom, d)
	case d > 0:
		fmt.Fprintf(&b, "Added %d lines", d)
	case r.ShiftFrom > 0:
		fmt.Fprintf(&b, "Removed %d lines - Lines %d+ shifted UP by %d", -d, r.ShiftFrom, -d)
	default:
		fmt.Fprintf(&b, "Removed %d lines", -d)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total lines: %d → %d", r.Lines.Before, r.Lines.After)
	return b.String()
}
