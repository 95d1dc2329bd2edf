package lineedit

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
)

// ReplaceLineRange replaces lines start..end (1-based, inclusive) with content.
// Empty or whitespace-only content removes the range.
func (e *Engine) ReplaceLineRange(ctx context.Context, path string, start, end int, content string) (models.EditReport, error) {
	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	total := t.shape.Lines
	if err := checkRange(start, end, total); err != nil {
		return models.EditReport{}, err
	}

	var added []string
	if strings.TrimSpace(content) != "" {
		added = contentLines(content)
	}
	block, err := t.block(added)
	if err != nil {
		return models.EditReport{}, err
	}

	written, err := e.rewrite(t, func(src *bufio.Reader, w io.Writer) error {
		lr := newLineReader(ctx, src)
		for {
			line, err := lr.next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			switch {
			case lr.n == start:
				if err := writeAll(w, block); err != nil {
					return err
				}
			case lr.n > start && lr.n <= end:
			default:
				if err := writeAll(w, line); err != nil {
					return err
				}
			}
		}
	})
	if err != nil {
		return models.EditReport{}, err
	}

	removed := end - start + 1
	report := models.EditReport{
		Path:      t.path,
		Operation: "replace_line_range",
		Summary:   fmt.Sprintf("Replaced lines %d-%d (%d lines) with new content", start, end, removed),
		Lines:     models.LineCountDelta{Before: total, After: written},
		ShiftFrom: end + 1,
	}
	return e.reconcile(report, total-removed+len(added)), nil
}

// DeleteLines removes lines start..end (1-based, inclusive).
func (e *Engine) DeleteLines(ctx context.Context, path string, start, end int) (models.EditReport, error) {
	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	total := t.shape.Lines
	if err := checkRange(start, end, total); err != nil {
		return models.EditReport{}, err
	}

	// Removing the unterminated last line leaves the new last line unterminated.
	dropTerminator := end == total && t.shape.Size > 0 && !t.shape.Trailing

	written, err := e.rewrite(t, func(src *bufio.Reader, w io.Writer) error {
		lr := newLineReader(ctx, src)
		for {
			line, err := lr.next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if lr.n >= start && lr.n <= end {
				continue
			}
			if dropTerminator && lr.n == start-1 {
				line, _ = splitTerminator(line)
			}
			if err := writeAll(w, line); err != nil {
				return err
			}
		}
	})
	if err != nil {
		return models.EditReport{}, err
	}

	removed := end - start + 1
	report := models.EditReport{
		Path:      t.path,
		Operation: "delete_lines",
		Summary:   fmt.Sprintf("Deleted lines %d-%d (%d lines)", start, end, removed),
		Lines:     models.LineCountDelta{Before: total, After: written},
		ShiftFrom: end + 1,
	}
	return e.reconcile(report, total-removed), nil
}

// InsertLine inserts content before line lineNumber. A line number past the
// end of the file appends. Empty content inserts one blank line.
func (e *Engine) InsertLine(ctx context.Context, path string, lineNumber int, content string) (models.EditReport, error) {
	if lineNumber < 1 {
		return models.EditReport{}, errors.InvalidRange("line number must be >= 1, got %d", lineNumber)
	}

	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	total := t.shape.Lines
	pos := lineNumber
	if pos > total+1 {
		pos = total + 1
	}

	added := contentLines(content)
	if len(added) == 0 {
		added = []string{""}
	}
	block, err := t.block(added)
	if err != nil {
		return models.EditReport{}, err
	}

	written, err := e.rewrite(t, func(src *bufio.Reader, w io.Writer) error {
		lr := newLineReader(ctx, src)
		for {
			line, err := lr.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if lr.n == pos {
				if err := writeAll(w, block); err != nil {
					return err
				}
			}
			if err := writeAll(w, line); err != nil {
				return err
			}
		}
		if pos == total+1 {
			if t.shape.Size > 0 && !t.shape.Trailing {
				// The file stays unterminated: the separator moves before the new block.
				if err := writeAll(w, []byte(t.newline())); err != nil {
					return err
				}
				return writeAll(w, bytes.TrimSuffix(block, []byte(t.newline())))
			}
			return writeAll(w, block)
		}
		return nil
	})
	if err != nil {
		return models.EditReport{}, err
	}

	report := models.EditReport{
		Path:      t.path,
		Operation: "insert_line",
		Summary:   fmt.Sprintf("Inserted %d lines at line %d", len(added), pos),
		Lines:     models.LineCountDelta{Before: total, After: written},
	}
	if pos <= total {
		report.ShiftFrom = pos
	}
	return e.reconcile(report, total+len(added)), nil
}

// AppendToFile appends content in append mode, terminating it with a newline.
// If the file does not end with a newline one is written first. A failed write
// is rolled back by truncating to the original size.
func (e *Engine) AppendToFile(ctx context.Context, path, content string) (models.EditReport, error) {
	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	total := t.shape.Lines
	report := models.EditReport{
		Path:      t.path,
		Operation: "append_to_file",
		Lines:     models.LineCountDelta{Before: total, After: total},
	}
	if content == "" {
		report.Summary = "Appended 0 characters to file"
		return report, nil
	}

	added := contentLines(content)
	text := strings.Join(added, t.newline()) + t.newline()
	payload, err := t.encode(text)
	if err != nil {
		return models.EditReport{}, err
	}
	if t.shape.Size > 0 && !t.shape.Trailing {
		payload = append([]byte(t.newline()), payload...)
	}

	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return models.EditReport{}, errors.FromOS(t.path, "open", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Truncate(t.shape.Size)
		_ = f.Close()
		return models.EditReport{}, errors.FromOS(t.path, "append", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return models.EditReport{}, errors.FromOS(t.path, "sync", err)
	}
	if err := f.Close(); err != nil {
		return models.EditReport{}, errors.FromOS(t.path, "close", err)
	}

	report.Summary = fmt.Sprintf("Appended %d characters to file", utf8.RuneCountInString(text))
	report.Lines.After = total + len(added)
	return report, nil
}

// InsertAtPosition inserts content at a byte offset, clamped to the file size.
// The content is encoded in the file's detected encoding.
func (e *Engine) InsertAtPosition(ctx context.Context, path string, position int64, content string) (models.EditReport, error) {
	if position < 0 {
		return models.EditReport{}, errors.InvalidRange("position must be >= 0, got %d", position)
	}

	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	if position > t.shape.Size {
		position = t.shape.Size
	}
	payload, err := t.encode(content)
	if err != nil {
		return models.EditReport{}, err
	}

	written, err := e.rewrite(t, func(src *bufio.Reader, w io.Writer) error {
		if _, err := io.CopyN(w, src, position); err != nil {
			return err
		}
		if err := writeAll(w, payload); err != nil {
			return err
		}
		_, err := io.Copy(w, src)
		return err
	})
	if err != nil {
		return models.EditReport{}, err
	}

	report := models.EditReport{
		Path:      t.path,
		Operation: "insert_at_position",
		Summary:   fmt.Sprintf("Inserted %d characters at position %d", utf8.RuneCountInString(content), position),
		Lines:     models.LineCountDelta{Before: t.shape.Lines, After: written},
	}
	return report, nil
}

// SmartIndent shifts the indentation of non-blank lines in start..end by
// indentChange units of a tab or four spaces. end is clamped to the file.
func (e *Engine) SmartIndent(ctx context.Context, path string, start, end, indentChange int, useTabs bool) (models.EditReport, error) {
	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	total := t.shape.Lines
	if end > total {
		end = total
	}
	if err := checkRange(start, end, total); err != nil {
		return models.EditReport{}, err
	}

	action := "increased"
	if indentChange < 0 {
		action = "decreased"
	}
	report := models.EditReport{
		Path:      t.path,
		Operation: "smart_indent",
		Lines:     models.LineCountDelta{Before: total, After: total},
	}
	if indentChange == 0 {
		report.Summary = "Indentation unchanged for 0 lines"
		return report, nil
	}

	unit := "    "
	if useTabs {
		unit = "\t"
	}

	modified := 0
	written, err := e.rewrite(t, func(src *bufio.Reader, w io.Writer) error {
		lr := newLineReader(ctx, src)
		for {
			line, err := lr.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if lr.n >= start && lr.n <= end {
				body, term := splitTerminator(line)
				if newBody, changed := reindent(string(body), indentChange, unit); changed {
					modified++
					line = append([]byte(newBody), term...)
				}
			}
			if err := writeAll(w, line); err != nil {
				return err
			}
		}
		if modified == 0 {
			return errNoChange
		}
		return nil
	})
	switch {
	case err == errNoChange:
		written = total
	case err != nil:
		return models.EditReport{}, err
	}

	report.Summary = fmt.Sprintf("Indentation %s for %d lines", action, modified)
	report.Lines.After = written
	report.Count = modified
	return e.reconcile(report, total), nil
}

// reindent applies change indentation steps to a non-blank line. Removing a
// step strips one unit, or else a single leading space or tab.
func reindent(line string, change int, unit string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return line, false
	}
	if change > 0 {
		return strings.Repeat(unit, change) + line, true
	}
	orig := line
	for i := 0; i < -change; i++ {
		switch {
		case strings.HasPrefix(line, unit):
			line = line[len(unit):]
		case strings.HasPrefix(line, " "), strings.HasPrefix(line, "\t"):
			line = line[1:]
		}
	}
	return line, line != orig
}
