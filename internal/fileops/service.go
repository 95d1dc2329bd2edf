// Package fileops implements the whole-file, directory and metadata tools
// that sit beside the line editor. Every path goes through the resolver.
package fileops

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/filesystem"
	"hybrid-filesystem/internal/pathguard"
	"hybrid-filesystem/internal/textenc"
)

const (
	defaultMaxFileSize = 10 * 1024 * 1024
	defaultWalkLimit   = 100000
	backupTimeLayout   = "20060102_150405"
)

// errWalkLimit stops a walk that reached the entry cap.
var errWalkLimit = stdErrors.New("walk limit reached")

// Service runs file and directory tools within the allowed directories.
type Service struct {
	resolver    *pathguard.Resolver
	detector    *textenc.Detector
	fsAdapter   filesystem.FileSystemAdapter
	maxFileSize int64
	walkLimit   int
	now         func() time.Time
}

type Option func(*Service)

func WithFileSystem(fs filesystem.FileSystemAdapter) Option {
	return func(s *Service) { s.fsAdapter = fs }
}

// WithMaxFileSize bounds read_file and get_file_section.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) { s.maxFileSize = n }
}

// WithWalkLimit caps the number of entries any recursive directory tool visits.
func WithWalkLimit(n int) Option {
	return func(s *Service) { s.walkLimit = n }
}

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(resolver *pathguard.Resolver, detector *textenc.Detector, opts ...Option) *Service {
	s := &Service{
		resolver:    resolver,
		detector:    detector,
		fsAdapter:   filesystem.NewDefaultFileSystemAdapter(),
		maxFileSize: defaultMaxFileSize,
		walkLimit:   defaultWalkLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// walkFiles visits regular, non-hidden files below root in lexical order. It
// reports whether the walk stopped at the entry cap.
func (s *Service) walkFiles(ctx context.Context, root string, fn func(path string, info fs.FileInfo)) (bool, error) {
	visited := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			// Unreadable subtrees are skipped.
			if p != root && d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			if p == root {
				return err
			}
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		visited++
		if s.walkLimit > 0 && visited > s.walkLimit {
			return errWalkLimit
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fn(p, info)
		return nil
	})
	if stdErrors.Is(err, errWalkLimit) {
		return true, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		return false, errors.FromOS(root, "walk", err)
	}
	return false, nil
}

// extensionOf returns the lowercase extension of name, or fallback.
func extensionOf(name, fallback string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == name {
		return fallback
	}
	return ext
}
