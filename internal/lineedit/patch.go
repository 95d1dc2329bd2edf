package lineedit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
)

// plannedOp is a validated operation with its content already encoded.
type plannedOp struct {
	index int
	op    models.EditOperation
	lines [][]byte
}

// PatchApply applies a batch of operations as a single atomic rewrite. All
// line numbers refer to the original file; operations execute in descending
// start order so earlier edits never shift the targets of later ones. Any
// invalid entry rejects the whole batch before the file is touched.
//
// The file's lines are held in memory for the duration of the call.
func (e *Engine) PatchApply(ctx context.Context, path string, ops []models.EditOperation) (models.EditReport, error) {
	if len(ops) == 0 {
		return models.EditReport{}, errors.InvalidOperation("patch contains no operations")
	}

	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	total := t.shape.Lines
	planned, err := planPatch(t, ops, total)
	if err != nil {
		return models.EditReport{}, err
	}

	var predicted = total
	for _, p := range planned {
		switch p.op.Type {
		case models.OpInsert:
			predicted += len(p.lines)
		case models.OpReplace:
			predicted += len(p.lines) - (p.op.End - p.op.Start + 1)
		case models.OpDelete:
			predicted -= p.op.End - p.op.Start + 1
		}
	}

	written, err := e.rewrite(t, func(src *bufio.Reader, w io.Writer) error {
		lines, err := readBodies(ctx, src)
		if err != nil {
			return err
		}
		for _, p := range executionOrder(planned) {
			lines = applyOp(lines, p)
		}
		nl := []byte(t.newline())
		for i, line := range lines {
			if err := writeAll(w, line); err != nil {
				return err
			}
			if i < len(lines)-1 || t.shape.Trailing || total == 0 {
				if err := writeAll(w, nl); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return models.EditReport{}, err
	}

	report := models.EditReport{
		Path:      t.path,
		Operation: "patch_apply",
		Lines:     models.LineCountDelta{Before: total, After: written},
		Count:     len(ops),
	}
	if len(planned) == 1 {
		p := planned[0]
		switch p.op.Type {
		case models.OpReplace:
			report.Summary = fmt.Sprintf("Replace lines %d-%d (%d → %d lines)", p.op.Start, p.op.End, p.op.End-p.op.Start+1, len(p.lines))
			report.ShiftFrom = p.op.End + 1
		case models.OpInsert:
			report.Summary = fmt.Sprintf("Insert %d lines at position %d", len(p.lines), p.op.Start)
			if p.op.Start <= total {
				report.ShiftFrom = p.op.Start
			}
		case models.OpDelete:
			report.Summary = fmt.Sprintf("Delete lines %d-%d (%d lines)", p.op.Start, p.op.End, p.op.End-p.op.Start+1)
			report.ShiftFrom = p.op.End + 1
		}
	} else {
		var nReplace, nInsert, nDelete int
		for _, p := range planned {
			switch p.op.Type {
			case models.OpReplace:
				nReplace++
			case models.OpInsert:
				nInsert++
			case models.OpDelete:
				nDelete++
			}
		}
		report.Summary = fmt.Sprintf("Applied %d operations (%d replace, %d insert, %d delete)",
			len(planned), nReplace, nInsert, nDelete)
	}
	return e.reconcile(report, predicted), nil
}

// planPatch validates every operation against the original line count and
// rejects ranges that overlap, since they have no single meaning under
// original numbering.
func planPatch(t *target, ops []models.EditOperation, total int) ([]plannedOp, error) {
	planned := make([]plannedOp, 0, len(ops))
	for i, op := range ops {
		n := i + 1
		if op.Start < 1 {
			return nil, errors.InvalidRange("operation %d: start must be >= 1, got %d", n, op.Start)
		}
		var text []string
		switch op.Type {
		case models.OpReplace, models.OpDelete:
			if op.End == 0 {
				op.End = op.Start
			}
			if op.End < op.Start || op.End > total || op.Start > total {
				return nil, errors.InvalidRange("operation %d: range %d-%d is invalid for a file of %d lines", n, op.Start, op.End, total)
			}
			if op.Type == models.OpReplace {
				text = contentLines(op.Content)
			}
		case models.OpInsert:
			if op.Start > total+1 {
				return nil, errors.InvalidRange("operation %d: insert position %d exceeds file length (%d lines)", n, op.Start, total)
			}
			text = contentLines(op.Content)
			if len(text) == 0 {
				text = []string{""}
			}
		default:
			return nil, errors.InvalidOperation("operation %d: unknown type %q (want replace, insert or delete)", n, op.Type)
		}

		encoded := make([][]byte, 0, len(text))
		for _, s := range text {
			b, err := t.encode(s)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, b)
		}
		planned = append(planned, plannedOp{index: i, op: op, lines: encoded})
	}

	var ranges []plannedOp
	for _, p := range planned {
		if p.op.Type != models.OpInsert {
			ranges = append(ranges, p)
		}
	}
	sort.Slice(ranges, func(a, b int) bool { return ranges[a].op.Start < ranges[b].op.Start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].op.Start <= ranges[i-1].op.End {
			return nil, errors.InvalidOperation("operation %d overlaps operation %d", ranges[i].index+1, ranges[i-1].index+1)
		}
	}
	for _, p := range planned {
		if p.op.Type != models.OpInsert {
			continue
		}
		for _, r := range ranges {
			if p.op.Start > r.op.Start && p.op.Start <= r.op.End {
				return nil, errors.InvalidOperation("operation %d inserts inside the range of operation %d", p.index+1, r.index+1)
			}
		}
	}
	return planned, nil
}

// executionOrder sorts by descending start. At equal starts, range operations
// run before inserts, and inserts run in reverse input order so that they end
// up in input order in the file.
func executionOrder(planned []plannedOp) []plannedOp {
	out := make([]plannedOp, len(planned))
	copy(out, planned)
	sort.SliceStable(out, func(a, b int) bool {
		pa, pb := out[a], out[b]
		if pa.op.Start != pb.op.Start {
			return pa.op.Start > pb.op.Start
		}
		ia, ib := pa.op.Type == models.OpInsert, pb.op.Type == models.OpInsert
		if ia != ib {
			return !ia
		}
		return pa.index > pb.index
	})
	return out
}

func applyOp(lines [][]byte, p plannedOp) [][]byte {
	s := p.op.Start - 1
	switch p.op.Type {
	case models.OpInsert:
		out := make([][]byte, 0, len(lines)+len(p.lines))
		out = append(out, lines[:s]...)
		out = append(out, p.lines...)
		return append(out, lines[s:]...)
	default:
		out := make([][]byte, 0, len(lines)+len(p.lines))
		out = append(out, lines[:s]...)
		out = append(out, p.lines...)
		return append(out, lines[p.op.End:]...)
	}
}

// readBodies loads every line without its terminator.
func readBodies(ctx context.Context, src *bufio.Reader) ([][]byte, error) {
	lr := newLineReader(ctx, src)
	var lines [][]byte
	for {
		line, err := lr.next()
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		body, _ := splitTerminator(line)
		lines = append(lines, body)
	}
}
