package lineedit

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/filesystem"
	"hybrid-filesystem/internal/lock"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/pathguard"
	"hybrid-filesystem/internal/textenc"
)

type fixture struct {
	dir    string
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	set, err := pathguard.NewAllowedDirectorySet([]string{dir}, false)
	require.NoError(t, err)
	return &fixture{
		dir:    dir,
		engine: NewEngine(pathguard.NewResolver(set), textenc.NewDetector(), opts...),
	}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func read(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func numbered(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line%d\n", i)
	}
	return b.String()
}

func TestReplaceLineRange(t *testing.T) {
	ctx := context.Background()

	t.Run("end to end report", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "one\ntwo\nthree\n")

		report, err := f.engine.ReplaceLineRange(ctx, p, 2, 2, "TWO\nTWO-B")
		require.NoError(t, err)
		assert.Equal(t, "one\nTWO\nTWO-B\nthree\n", read(t, p))
		assert.Equal(t, 3, report.Lines.Before)
		assert.Equal(t, 4, report.Lines.After)
		assert.Equal(t, 1, report.Lines.Delta())
		assert.Equal(t, "Replaced lines 2-2 (1 lines) with new content\n"+
			"Added 1 lines - Lines 3+ shifted DOWN by 1\n"+
			"Total lines: 3 → 4", report.String())
	})

	t.Run("line count conservation", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", numbered(10))

		report, err := f.engine.ReplaceLineRange(ctx, p, 3, 5, "x\ny")
		require.NoError(t, err)
		assert.Equal(t, 9, report.Lines.After)
		lines := strings.Split(strings.TrimSuffix(read(t, p), "\n"), "\n")
		assert.Len(t, lines, 9)
		assert.Equal(t, []string{"line1", "line2", "x", "y", "line6"}, lines[:5])
		assert.Contains(t, report.String(), "Removed 1 lines - Lines 6+ shifted UP by 1")
	})

	t.Run("whitespace content removes range", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\nc\n")

		report, err := f.engine.ReplaceLineRange(ctx, p, 2, 2, "  \n ")
		require.NoError(t, err)
		assert.Equal(t, "a\nc\n", read(t, p))
		assert.Equal(t, 2, report.Lines.After)
	})

	t.Run("crlf style preserved", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\r\nb\r\nc\r\n")

		_, err := f.engine.ReplaceLineRange(ctx, p, 2, 2, "B1\nB2")
		require.NoError(t, err)
		assert.Equal(t, "a\r\nB1\r\nB2\r\nc\r\n", read(t, p))
	})

	t.Run("unterminated last line kept", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\nc")

		_, err := f.engine.ReplaceLineRange(ctx, p, 1, 1, "A")
		require.NoError(t, err)
		assert.Equal(t, "A\nb\nc", read(t, p))
	})

	t.Run("invalid ranges", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", numbered(3))
		for _, r := range [][2]int{{0, 1}, {2, 1}, {4, 4}, {2, 5}} {
			_, err := f.engine.ReplaceLineRange(ctx, p, r[0], r[1], "x")
			assert.Equal(t, errors.KindInvalidRange, errors.KindOf(err), "range %v", r)
		}
		assert.Equal(t, numbered(3), read(t, p))
	})
}

func TestDeleteLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.write(t, "a.txt", numbered(5))

	report, err := f.engine.DeleteLines(ctx, p, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline5\n", read(t, p))
	assert.Equal(t, "Deleted lines 2-4 (3 lines)", report.Summary)
	assert.Equal(t, models.LineCountDelta{Before: 5, After: 2}, report.Lines)

	_, err = f.engine.DeleteLines(ctx, p, 3, 3)
	assert.Equal(t, errors.KindInvalidRange, errors.KindOf(err))

	q := f.write(t, "b.txt", "a\nb\nc")
	_, err = f.engine.DeleteLines(ctx, q, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", read(t, q))
}

func TestInsertLine(t *testing.T) {
	ctx := context.Background()

	t.Run("multi-line content", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\n")
		report, err := f.engine.InsertLine(ctx, p, 2, "x\ny")
		require.NoError(t, err)
		assert.Equal(t, "a\nx\ny\nb\n", read(t, p))
		assert.Equal(t, 4, report.Lines.After)
		assert.Equal(t, 2, report.ShiftFrom)
	})

	t.Run("clamps past end to append", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb")
		report, err := f.engine.InsertLine(ctx, p, 99, "z")
		require.NoError(t, err)
		assert.Equal(t, "a\nb\nz", read(t, p), "an unterminated file stays unterminated")
		assert.Equal(t, 3, report.Lines.After)
		assert.Zero(t, report.ShiftFrom)
	})

	t.Run("empty file", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "")
		_, err := f.engine.InsertLine(ctx, p, 1, "first")
		require.NoError(t, err)
		assert.Equal(t, "first\n", read(t, p))
	})

	t.Run("empty content inserts blank line", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\n")
		_, err := f.engine.InsertLine(ctx, p, 2, "")
		require.NoError(t, err)
		assert.Equal(t, "a\n\nb\n", read(t, p))
	})

	t.Run("round trip with delete", func(t *testing.T) {
		f := newFixture(t)
		original := numbered(6)
		p := f.write(t, "a.txt", original)
		_, err := f.engine.InsertLine(ctx, p, 4, "X")
		require.NoError(t, err)
		_, err = f.engine.DeleteLines(ctx, p, 4, 4)
		require.NoError(t, err)
		assert.Equal(t, original, read(t, p))
	})

	t.Run("round trip at end of unterminated file", func(t *testing.T) {
		for _, original := range []string{"a\nb", "a\r\nb", "a\nb\n"} {
			f := newFixture(t)
			p := f.write(t, "a.txt", original)
			_, err := f.engine.InsertLine(ctx, p, 3, "X")
			require.NoError(t, err)
			report, err := f.engine.DeleteLines(ctx, p, 3, 3)
			require.NoError(t, err)
			assert.Equal(t, original, read(t, p), "%q", original)
			assert.Equal(t, 2, report.Lines.After)
		}
	})

	t.Run("zero line number", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\n")
		_, err := f.engine.InsertLine(ctx, p, 0, "x")
		assert.Equal(t, errors.KindInvalidRange, errors.KindOf(err))
	})
}

func TestAppendToFile(t *testing.T) {
	ctx := context.Background()

	t.Run("adds terminator", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\n")
		report, err := f.engine.AppendToFile(ctx, p, "b\nc")
		require.NoError(t, err)
		assert.Equal(t, "a\nb\nc\n", read(t, p))
		assert.Equal(t, models.LineCountDelta{Before: 1, After: 3}, report.Lines)
		assert.Equal(t, "Appended 4 characters to file\nAdded 2 lines\nTotal lines: 1 → 3", report.String())
	})

	t.Run("separates unterminated last line", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a")
		report, err := f.engine.AppendToFile(ctx, p, "b\n")
		require.NoError(t, err)
		assert.Equal(t, "a\nb\n", read(t, p))
		assert.Equal(t, 2, report.Lines.After)
	})

	t.Run("empty content is a no-op", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\n")
		report, err := f.engine.AppendToFile(ctx, p, "")
		require.NoError(t, err)
		assert.Equal(t, "a\n", read(t, p))
		assert.Zero(t, report.Lines.Delta())
	})

	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AppendToFile(ctx, filepath.Join(f.dir, "missing.txt"), "x")
		assert.Equal(t, errors.KindFileNotFound, errors.KindOf(err))
	})
}

func TestRegexReplace(t *testing.T) {
	ctx := context.Background()

	t.Run("count limit spans lines", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "aa\naa\n")
		report, err := f.engine.RegexReplace(ctx, p, "a", "b", "", 3)
		require.NoError(t, err)
		assert.Equal(t, "bb\nba\n", read(t, p))
		assert.Equal(t, 3, report.Count)
		assert.Equal(t, "Regex replaced 'a' → 'b' (3 times)", report.Summary)
	})

	t.Run("group references", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "John Smith\nJane Doe\n")
		_, err := f.engine.RegexReplace(ctx, p, `(\w+) (\w+)`, `\2, \1`, "", 0)
		require.NoError(t, err)
		assert.Equal(t, "Smith, John\nDoe, Jane\n", read(t, p))

		_, err = f.engine.RegexReplace(ctx, p, `(?P<last>\w+), (?P<first>\w+)`, `\g<first>-\g<last>`, "", 0)
		require.NoError(t, err)
		assert.Equal(t, "John-Smith\nJane-Doe\n", read(t, p))
	})

	t.Run("dollar is literal", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "price: X\n")
		report, err := f.engine.RegexReplace(ctx, p, "X", "$5.00", "", 0)
		require.NoError(t, err)
		assert.Equal(t, "price: $5.00\n", read(t, p))
		assert.Equal(t, 1, report.Count)

		_, err = f.engine.RegexReplace(ctx, p, `(\d)\.`, `$1/\1.`, "", 0)
		require.NoError(t, err)
		assert.Equal(t, "price: $$1/5.00\n", read(t, p))
	})

	t.Run("case insensitive flag", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "Foo foo FOO\n")
		report, err := f.engine.RegexReplace(ctx, p, "foo", "x", "i", 0)
		require.NoError(t, err)
		assert.Equal(t, "x x x\n", read(t, p))
		assert.Equal(t, 3, report.Count)
	})

	t.Run("no match leaves file untouched", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "abc\n")
		old := time.Now().Add(-time.Hour).Truncate(time.Second)
		require.NoError(t, os.Chtimes(p, old, old))

		report, err := f.engine.RegexReplace(ctx, p, "zzz", "y", "", 0)
		require.NoError(t, err)
		assert.Zero(t, report.Count)
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(old))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "abc\n")
		_, err := f.engine.RegexReplace(ctx, p, "(", "x", "", 0)
		assert.Equal(t, errors.KindInvalidPattern, errors.KindOf(err))
		_, err = f.engine.RegexReplace(ctx, p, "a", "x", "q", 0)
		assert.Equal(t, errors.KindInvalidPattern, errors.KindOf(err))
	})

	t.Run("legacy encoding round trip", func(t *testing.T) {
		f := newFixture(t)
		text := strings.Repeat("안녕하세요 세계입니다.\n", 30) + "교체할 단어\n"
		raw, err := korean.EUCKR.NewEncoder().Bytes([]byte(text))
		require.NoError(t, err)
		p := filepath.Join(f.dir, "ko.txt")
		require.NoError(t, os.WriteFile(p, raw, 0o644))

		report, err := f.engine.RegexReplace(ctx, p, "교체할", "바뀐", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Count)

		want, err := korean.EUCKR.NewEncoder().Bytes([]byte(strings.Replace(text, "교체할", "바뀐", 1)))
		require.NoError(t, err)
		assert.Equal(t, want, []byte(read(t, p)))
	})
}

func TestFindAndReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.write(t, "a.txt", "a.b a.b\naxb\n")

	report, err := f.engine.FindAndReplace(ctx, p, "a.b", "$1", 0)
	require.NoError(t, err)
	assert.Equal(t, "$1 $1\naxb\n", read(t, p))
	assert.Equal(t, 2, report.Count)

	_, err = f.engine.FindAndReplace(ctx, p, "", "x", 0)
	assert.Equal(t, errors.KindInvalidParams, errors.KindOf(err))
}

func TestInsertAtPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.write(t, "a.txt", "hello world")

	report, err := f.engine.InsertAtPosition(ctx, p, 5, ",")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", read(t, p))
	assert.Equal(t, "Inserted 1 characters at position 5", report.Summary)

	report, err = f.engine.InsertAtPosition(ctx, p, 1000, "!\n")
	require.NoError(t, err)
	assert.Equal(t, "hello, world!\n", read(t, p))
	assert.Contains(t, report.Summary, "position 12")

	_, err = f.engine.InsertAtPosition(ctx, p, -1, "x")
	assert.Equal(t, errors.KindInvalidRange, errors.KindOf(err))
}

func TestSmartIndent(t *testing.T) {
	ctx := context.Background()

	t.Run("increase skips blank lines", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\n\nb\nc\n")
		report, err := f.engine.SmartIndent(ctx, p, 1, 3, 1, false)
		require.NoError(t, err)
		assert.Equal(t, "    a\n\n    b\nc\n", read(t, p))
		assert.Equal(t, "Indentation increased for 2 lines", report.Summary)
	})

	t.Run("decrease mixed", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "        a\n\tb\n  c\nd\n")
		report, err := f.engine.SmartIndent(ctx, p, 1, 10, -1, false)
		require.NoError(t, err)
		assert.Equal(t, "    a\nb\n c\nd\n", read(t, p))
		assert.Equal(t, 3, report.Count)
	})

	t.Run("tabs", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\n")
		_, err := f.engine.SmartIndent(ctx, p, 1, 1, 2, true)
		require.NoError(t, err)
		assert.Equal(t, "\t\ta\n", read(t, p))
	})

	t.Run("start past end", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\n")
		_, err := f.engine.SmartIndent(ctx, p, 5, 6, 1, false)
		assert.Equal(t, errors.KindInvalidRange, errors.KindOf(err))
	})
}

func TestPatchApply(t *testing.T) {
	ctx := context.Background()

	t.Run("ordering under original numbering", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\nc\nd\ne\n")
		report, err := f.engine.PatchApply(ctx, p, []models.EditOperation{
			{Type: models.OpDelete, Start: 1, End: 1},
			{Type: models.OpInsert, Start: 3, Content: "X"},
		})
		require.NoError(t, err)
		assert.Equal(t, "b\nX\nc\nd\ne\n", read(t, p))
		assert.Equal(t, models.LineCountDelta{Before: 5, After: 5}, report.Lines)
		assert.Equal(t, "Applied 2 operations (0 replace, 1 insert, 1 delete)", report.Summary)
	})

	t.Run("same start inserts keep input order", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\nc\n")
		_, err := f.engine.PatchApply(ctx, p, []models.EditOperation{
			{Type: models.OpInsert, Start: 2, Content: "X"},
			{Type: models.OpReplace, Start: 2, End: 2, Content: "B"},
			{Type: models.OpInsert, Start: 2, Content: "Y"},
		})
		require.NoError(t, err)
		assert.Equal(t, "a\nX\nY\nB\nc\n", read(t, p))
	})

	t.Run("single replace report", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\nc\n")
		report, err := f.engine.PatchApply(ctx, p, []models.EditOperation{
			{Type: models.OpReplace, Start: 2, Content: "B1\nB2"},
		})
		require.NoError(t, err)
		assert.Equal(t, "a\nB1\nB2\nc\n", read(t, p))
		assert.Equal(t, "Replace lines 2-2 (1 → 2 lines)", report.Summary)
		assert.Equal(t, 3, report.ShiftFrom)
	})

	t.Run("invalid entry rejects batch", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb\nc\n")
		_, err := f.engine.PatchApply(ctx, p, []models.EditOperation{
			{Type: models.OpDelete, Start: 1},
			{Type: models.OpReplace, Start: 2, End: 9, Content: "x"},
		})
		require.Error(t, err)
		assert.Equal(t, errors.KindInvalidRange, errors.KindOf(err))
		assert.Contains(t, err.Error(), "operation 2")
		assert.Equal(t, "a\nb\nc\n", read(t, p))
	})

	t.Run("overlap and unknown type", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", numbered(5))
		_, err := f.engine.PatchApply(ctx, p, []models.EditOperation{
			{Type: models.OpDelete, Start: 1, End: 3},
			{Type: models.OpReplace, Start: 3, End: 4, Content: "x"},
		})
		assert.Equal(t, errors.KindInvalidOperation, errors.KindOf(err))

		_, err = f.engine.PatchApply(ctx, p, []models.EditOperation{
			{Type: models.OpDelete, Start: 1, End: 3},
			{Type: models.OpInsert, Start: 2, Content: "x"},
		})
		assert.Equal(t, errors.KindInvalidOperation, errors.KindOf(err))

		_, err = f.engine.PatchApply(ctx, p, []models.EditOperation{{Type: "move", Start: 1}})
		assert.Equal(t, errors.KindInvalidOperation, errors.KindOf(err))

		_, err = f.engine.PatchApply(ctx, p, nil)
		assert.Equal(t, errors.KindInvalidOperation, errors.KindOf(err))
		assert.Equal(t, numbered(5), read(t, p))
	})

	t.Run("no trailing newline preserved", func(t *testing.T) {
		f := newFixture(t)
		p := f.write(t, "a.txt", "a\nb")
		_, err := f.engine.PatchApply(ctx, p, []models.EditOperation{{Type: models.OpInsert, Start: 3, Content: "c"}})
		require.NoError(t, err)
		assert.Equal(t, "a\nb\nc", read(t, p))
	})
}

// failingFS lets the real adapter create its temp file, then fails the write
// after limit bytes.
type failingFS struct {
	*filesystem.DefaultFileSystemAdapter
	limit int
}

type failingWriter struct {
	w         io.Writer
	remaining int
}

var errDiskFull = stdErrors.New("no space left on device")

func (fw *failingWriter) Write(p []byte) (int, error) {
	if len(p) > fw.remaining {
		n, _ := fw.w.Write(p[:fw.remaining])
		fw.remaining = 0
		return n, errDiskFull
	}
	fw.remaining -= len(p)
	return fw.w.Write(p)
}

func (f failingFS) WriteAtomic(path string, perm os.FileMode, fill func(io.Writer) error) error {
	return f.DefaultFileSystemAdapter.WriteAtomic(path, perm, func(w io.Writer) error {
		return fill(&failingWriter{w: w, remaining: f.limit})
	})
}

func TestAtomicityOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithFileSystem(failingFS{DefaultFileSystemAdapter: filesystem.NewDefaultFileSystemAdapter(), limit: 10}))
	original := numbered(50)
	p := f.write(t, "a.txt", original)
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(p, old, old))

	ops := map[string]func() error{
		"replace": func() error { _, err := f.engine.ReplaceLineRange(ctx, p, 40, 41, "x"); return err },
		"delete":  func() error { _, err := f.engine.DeleteLines(ctx, p, 40, 41); return err },
		"insert":  func() error { _, err := f.engine.InsertLine(ctx, p, 40, "x"); return err },
		"regex":   func() error { _, err := f.engine.RegexReplace(ctx, p, "line", "L", "", 0); return err },
		"patch": func() error {
			_, err := f.engine.PatchApply(ctx, p, []models.EditOperation{{Type: models.OpDelete, Start: 1}})
			return err
		},
		"indent":   func() error { _, err := f.engine.SmartIndent(ctx, p, 1, 50, 1, false); return err },
		"position": func() error { _, err := f.engine.InsertAtPosition(ctx, p, 100, "x"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.Equal(t, errors.KindIOFailure, errors.KindOf(err))
			assert.ErrorIs(t, err, errDiskFull)

			assert.Equal(t, original, read(t, p))
			info, err := os.Stat(p)
			require.NoError(t, err)
			assert.True(t, info.ModTime().Equal(old))

			entries, err := os.ReadDir(f.dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp file left behind")
		})
	}
}

func TestAccessDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	outside := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(outside, []byte("a\n"), 0o644))

	_, err := f.engine.DeleteLines(ctx, outside, 1, 1)
	assert.Equal(t, errors.KindAccessDenied, errors.KindOf(err))
	assert.Equal(t, "a\n", read(t, outside))
}

func TestLockedEdits(t *testing.T) {
	ctx := context.Background()
	lm, err := lock.NewLockManager(t.TempDir())
	require.NoError(t, err)
	f := newFixture(t, WithLocker(lm, 50*time.Millisecond))
	p := f.write(t, "a.txt", "a\n")

	held, err := lm.Acquire(ctx, mustCanonical(t, p))
	require.NoError(t, err)

	_, err = f.engine.AppendToFile(ctx, p, "b")
	assert.Equal(t, errors.KindLockTimeout, errors.KindOf(err))

	require.NoError(t, lm.Release(held))
	_, err = f.engine.AppendToFile(ctx, p, "b")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", read(t, p))
}

func mustCanonical(t *testing.T, p string) string {
	t.Helper()
	c, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return c
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "a.txt", numbered(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.DeleteLines(ctx, p, 1, 1)
	require.Error(t, err)
	assert.Equal(t, numbered(3), read(t, p))
}
