package fileops

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
)

// ListDirectory lists the direct children of a directory sorted by name.
func (s *Service) ListDirectory(ctx context.Context, path string) (models.DirectoryListing, error) {
	rp, err := s.resolver.ResolveDir(path)
	if err != nil {
		return models.DirectoryListing{}, err
	}
	entries, err := s.fsAdapter.ListDir(rp.Path)
	if err != nil {
		return models.DirectoryListing{}, errors.FromOS(rp.Path, "list", err)
	}
	listing := models.DirectoryListing{Directory: rp.Path, Entries: make([]models.FileInfo, 0, len(entries))}
	for _, e := range entries {
		listing.Entries = append(listing.Entries, models.FileInfo{
			Name:     e.Name,
			Path:     filepath.Join(rp.Path, e.Name),
			Size:     e.Size,
			Modified: e.ModTime.Format(time.RFC3339),
			IsDir:    e.IsDir,
			Readable: e.Mode&0o444 != 0,
			Writable: e.Mode&0o222 != 0,
		})
	}
	listing.TotalCount = len(listing.Entries)
	return listing, nil
}

// DescribeListing renders a listing as "[FILE] name (N bytes)" lines.
func DescribeListing(l models.DirectoryListing) string {
	if len(l.Entries) == 0 {
		return "Directory is empty"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Directory contents (%d items):", len(l.Entries))
	for _, e := range l.Entries {
		if e.IsDir {
			fmt.Fprintf(&b, "\n[DIRECTORY] %s", e.Name)
			continue
		}
		fmt.Fprintf(&b, "\n[FILE] %s (%d bytes)", e.Name, e.Size)
	}
	return b.String()
}

// CreateDirectory creates path and any missing parents.
func (s *Service) CreateDirectory(ctx context.Context, path string) (string, error) {
	rp, err := s.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(rp.Path, 0o755); err != nil {
		return "", errors.FromOS(rp.Path, "mkdir", err)
	}
	return fmt.Sprintf("Successfully created directory: %s", rp.Path), nil
}

// CreateDirectories creates each path, collecting per-path failures instead
// of stopping at the first one.
func (s *Service) CreateDirectories(ctx context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", errors.InvalidParams("paths", "at least one directory path is required")
	}
	var created, failures []string
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			failures = append(failures, "Invalid path: empty")
			continue
		}
		rp, err := s.resolver.Resolve(p)
		if err == nil {
			if mkErr := os.MkdirAll(rp.Path, 0o755); mkErr != nil {
				err = errors.FromOS(rp.Path, "mkdir", mkErr)
			}
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("Failed to create %s: %v", p, err))
			continue
		}
		created = append(created, rp.Path)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Successfully created %d directories", len(created))
	if len(created) > 0 {
		b.WriteString(":")
		for _, c := range created {
			fmt.Fprintf(&b, "\n• %s", c)
		}
	}
	if len(failures) > 0 {
		b.WriteString("\n\nErrors encountered:")
		for _, f := range failures {
			fmt.Fprintf(&b, "\n• %s", f)
		}
	}
	return b.String(), nil
}

// ListAllowedDirectories renders the canonical allow-list.
func (s *Service) ListAllowedDirectories() string {
	roots := s.resolver.Allowed().Roots()
	var b strings.Builder
	fmt.Fprintf(&b, "Allowed directories (%d):", len(roots))
	for _, r := range roots {
		fmt.Fprintf(&b, "\n• %s", r)
	}
	return b.String()
}

type extCount struct {
	ext   string
	count int
}

// topExtensions orders counts by frequency, then name.
func topExtensions(counts map[string]int, n int) []extCount {
	out := make([]extCount, 0, len(counts))
	for ext, c := range counts {
		out = append(out, extCount{ext, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].ext < out[j].ext
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// CountFiles counts files directly in path with the given extension, or, with
// no extension, every file below path grouped by extension (top five shown).
func (s *Service) CountFiles(ctx context.Context, path, extension string) (string, error) {
	rp, err := s.resolver.ResolveDir(path)
	if err != nil {
		return "", err
	}

	if extension != "" {
		want := "." + strings.ToLower(strings.TrimPrefix(extension, "."))
		entries, err := s.fsAdapter.ListDir(rp.Path)
		if err != nil {
			return "", errors.FromOS(rp.Path, "list", err)
		}
		n := 0
		for _, e := range entries {
			if !e.IsDir && strings.ToLower(filepath.Ext(e.Name)) == want {
				n++
			}
		}
		return fmt.Sprintf("%s: %d files", extension, n), nil
	}

	counts := make(map[string]int)
	total := 0
	truncated, err := s.walkFiles(ctx, rp.Path, func(p string, _ fs.FileInfo) {
		counts[extensionOf(p, "no extension")]++
		total++
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d files", total)
	if truncated {
		b.WriteString(" (walk limit reached)")
	}
	for _, ec := range topExtensions(counts, 5) {
		fmt.Fprintf(&b, "\n%s: %d", ec.ext, ec.count)
	}
	return b.String(), nil
}

// DirectorySize sums the sizes of every file below path.
func (s *Service) DirectorySize(ctx context.Context, path string) (string, error) {
	rp, err := s.resolver.ResolveDir(path)
	if err != nil {
		return "", err
	}
	var total uint64
	files := 0
	truncated, err := s.walkFiles(ctx, rp.Path, func(_ string, info fs.FileInfo) {
		total += uint64(info.Size())
		files++
	})
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("Total: %s (%d files)", humanize.IBytes(total), files)
	if truncated {
		out += " (walk limit reached)"
	}
	return out, nil
}

// RecentFiles lists the most recently modified files below path.
func (s *Service) RecentFiles(ctx context.Context, path string, limit int) (string, error) {
	if limit < 1 {
		return "", errors.InvalidRange("limit must be >= 1, got %d", limit)
	}
	rp, err := s.resolver.ResolveDir(path)
	if err != nil {
		return "", err
	}
	type recent struct {
		rel   string
		mtime time.Time
	}
	var files []recent
	if _, err := s.walkFiles(ctx, rp.Path, func(p string, info fs.FileInfo) {
		rel, relErr := filepath.Rel(rp.Path, p)
		if relErr != nil {
			rel = filepath.Base(p)
		}
		files = append(files, recent{rel, info.ModTime()})
	}); err != nil {
		return "", err
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
	if len(files) > limit {
		files = files[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent files (last %d):", limit)
	for _, f := range files {
		fmt.Fprintf(&b, "\n• %s (%s)", f.rel, f.mtime.Format("01-02 15:04"))
	}
	return b.String(), nil
}

// AnalyzeProject summarizes size, file count and the three most common file
// types below path.
func (s *Service) AnalyzeProject(ctx context.Context, path string) (string, error) {
	rp, err := s.resolver.ResolveDir(path)
	if err != nil {
		return "", err
	}
	counts := make(map[string]int)
	var size uint64
	files := 0
	truncated, err := s.walkFiles(ctx, rp.Path, func(p string, info fs.FileInfo) {
		counts[extensionOf(p, "no ext")]++
		size += uint64(info.Size())
		files++
	})
	if err != nil {
		return "", err
	}

	types := make([]string, 0, 3)
	for _, ec := range topExtensions(counts, 3) {
		types = append(types, fmt.Sprintf("%s(%d)", ec.ext, ec.count))
	}
	out := fmt.Sprintf("Project: %s\nSize: %s\nFiles: %d\nTypes: %s",
		filepath.Base(rp.Path), humanize.IBytes(size), files, strings.Join(types, ", "))
	if truncated {
		out += "\n(walk limit reached)"
	}
	return out, nil
}
