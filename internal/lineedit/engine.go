// Package lineedit implements line-oriented, atomic edits on text files.
//
// Every mutation except AppendToFile streams the original file into a
// temporary file in the same directory and renames it over the original only
// after the whole new content has been written. PatchApply holds the line list
// in memory; all other operations keep at most one line buffered.
package lineedit

import (
	"bufio"
	"context"
	stdErrors "errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/filesystem"
	"hybrid-filesystem/internal/lock"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/pathguard"
	"hybrid-filesystem/internal/textenc"
)

// errNoChange aborts a rewrite that turned out to be a no-op, leaving the
// original untouched.
var errNoChange = stdErrors.New("no change")

// Engine performs the line edit operations. It is safe for concurrent use;
// concurrent edits to the same file are last-writer-wins unless a locker is
// configured.
type Engine struct {
	resolver    *pathguard.Resolver
	detector    *textenc.Detector
	fs          filesystem.FileSystemAdapter
	locker      lock.Locker
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFileSystem replaces the adapter used for atomic writes.
func WithFileSystem(fs filesystem.FileSystemAdapter) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithLocker serializes edits per target through l.
func WithLocker(l lock.Locker, timeout time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTimeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine that authorizes every path through resolver.
func NewEngine(resolver *pathguard.Resolver, detector *textenc.Detector, opts ...Option) *Engine {
	e := &Engine{
		resolver:    resolver,
		detector:    detector,
		fs:          filesystem.NewDefaultFileSystemAdapter(),
		lockTimeout: 5 * time.Second,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// target is an authorized, locked file ready for editing.
type target struct {
	path     string
	perm     os.FileMode
	encoding string
	shape    shape
}

func (t *target) newline() string {
	if t.shape.CRLF {
		return "\r\n"
	}
	return "\n"
}

// encode converts UTF-8 text to the target's encoding.
func (t *target) encode(s string) ([]byte, error) {
	b, err := textenc.Encode(t.encoding, s)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidOperation, err,
			"content cannot be represented in the file's encoding (%s)", t.encoding)
	}
	return b, nil
}

// block renders lines with the target's newline style, each line terminated.
func (t *target) block(lines []string) ([]byte, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	nl := t.newline()
	return t.encode(strings.Join(lines, nl) + nl)
}

// open resolves raw, takes the edit lock if configured and measures the file.
// The returned release func must always be called.
func (e *Engine) open(ctx context.Context, raw string) (*target, func(), error) {
	rp, info, err := e.resolver.ResolveFile(raw)
	if err != nil {
		return nil, nil, err
	}

	release := func() {}
	if e.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
		l, err := e.locker.Acquire(lockCtx, rp.Path)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, errors.LockTimeout(rp.Path, err)
		}
		release = func() {
			if err := e.locker.Release(l); err != nil {
				e.logger.Warn().Err(err).Str("path", rp.Path).Msg("failed to release edit lock")
			}
		}
	}

	enc := e.detector.Detect(rp.Path)
	if !textenc.ASCIICompatible(enc) {
		release()
		return nil, nil, errors.InvalidOperation("line editing is not supported for %s files", enc)
	}

	sh, err := scanShape(ctx, rp.Path)
	if err != nil {
		release()
		return nil, nil, errors.FromOS(rp.Path, "read", err)
	}

	return &target{path: rp.Path, perm: info.Mode().Perm(), encoding: enc, shape: sh}, release, nil
}

// rewrite streams the target through fn into a temp file and renames it into
// place. It returns the number of lines written.
func (e *Engine) rewrite(t *target, fn func(src *bufio.Reader, w io.Writer) error) (int, error) {
	src, err := os.Open(t.path)
	if err != nil {
		return 0, errors.FromOS(t.path, "open", err)
	}
	defer src.Close()

	written := 0
	err = e.fs.WriteAtomic(t.path, t.perm, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		if err := fn(bufio.NewReaderSize(src, readBufferSize), cw); err != nil {
			return err
		}
		written = cw.Lines()
		return nil
	})
	if err != nil {
		return 0, e.writeError(t.path, err)
	}
	return written, nil
}

func (e *Engine) writeError(path string, err error) error {
	if stdErrors.Is(err, errNoChange) {
		return err
	}
	var appErr *errors.Error
	if stdErrors.As(err, &appErr) {
		return appErr
	}
	return errors.FromOS(path, "write", err)
}

// reconcile logs when the predicted line count disagrees with what was written.
// The written count is authoritative.
func (e *Engine) reconcile(report models.EditReport, predicted int) models.EditReport {
	if report.Lines.After != predicted {
		e.logger.Warn().
			Str("path", report.Path).
			Str("operation", report.Operation).
			Int("predicted", predicted).
			Int("actual", report.Lines.After).
			Msg("line count mismatch after edit")
	}
	return report
}

// checkRange validates an inclusive 1-based range against a file of total lines.
func checkRange(start, end, total int) error {
	switch {
	case start < 1:
		return errors.InvalidRange("start line must be >= 1, got %d", start)
	case end < start:
		return errors.InvalidRange("end line %d is before start line %d", end, start)
	case start > total:
		return errors.InvalidRange("start line %d is beyond end of file (%d lines)", start, total)
	case end > total:
		return errors.InvalidRange("end line %d is beyond end of file (%d lines)", end, total)
	}
	return nil
}

func writeAll(w io.Writer, chunks ...[]byte) error {
	for _, c := range chunks {
		if len(c) == 0 {
			continue
		}
		if _, err := w.Write(c); err != nil {
			return err
		}
	}
	return nil
}
