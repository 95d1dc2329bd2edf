// Package search implements line-oriented text and regex search over single
// files and directory trees.
package search

import (
	"bytes"
	"context"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/pathguard"
	"hybrid-filesystem/internal/textenc"
)

const (
	// DefaultMaxFiles caps a directory search when the caller gives no limit.
	DefaultMaxFiles = 100
	// DefaultMaxFileSize is the largest file a search reads into memory.
	DefaultMaxFileSize = 10 * 1024 * 1024

	binarySniff = 8000
)

// Query describes what to look for.
type Query struct {
	Text          string
	CaseSensitive bool
	ContextLines  int
	UseRegex      bool
}

// Engine runs searches. Paths are authorized through the resolver before any
// file is opened.
type Engine struct {
	resolver    *pathguard.Resolver
	maxFileSize int64
	onScan      func(n int)
	logger      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxFileSize sets the size above which files are refused.
func WithMaxFileSize(n int64) Option {
	return func(e *Engine) { e.maxFileSize = n }
}

// WithScanObserver registers fn to be told how many files each directory
// search examined.
func WithScanObserver(fn func(n int)) Option {
	return func(e *Engine) { e.onScan = fn }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(resolver *pathguard.Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver:    resolver,
		maxFileSize: DefaultMaxFileSize,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// compile turns a query into a regexp. Literal queries are quoted, so
// offsets are always byte offsets into the decoded line.
func (q Query) compile() (*regexp.Regexp, error) {
	if q.Text == "" {
		return nil, errors.InvalidParams("search_text", "search text must not be empty")
	}
	if q.ContextLines < 0 {
		return nil, errors.InvalidRange("context_lines must be >= 0, got %d", q.ContextLines)
	}
	expr := q.Text
	if !q.UseRegex {
		expr = regexp.QuoteMeta(expr)
	}
	if !q.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.InvalidPattern(q.Text, err)
	}
	return re, nil
}

// SearchFile returns the matches for q in the file at path. Literal queries
// record the first match on each line; regex queries record every match.
func (e *Engine) SearchFile(ctx context.Context, path string, q Query) (models.FileMatches, error) {
	re, err := q.compile()
	if err != nil {
		return models.FileMatches{}, err
	}
	rp, info, err := e.resolver.ResolveFile(path)
	if err != nil {
		return models.FileMatches{}, err
	}
	lines, err := e.readLines(rp.Path, info.Size())
	if err != nil {
		return models.FileMatches{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.FileMatches{}, err
	}
	return models.FileMatches{Path: rp.Path, Matches: match(lines, re, !q.UseRegex, q.ContextLines)}, nil
}

// SearchDirectory walks root in lexical order and searches every non-hidden
// file whose extension is in extensions (all files when empty). At most
// maxFiles files are examined; files that cannot be read or decoded are listed
// in FilesSkipped and do not fail the search.
func (e *Engine) SearchDirectory(ctx context.Context, root string, q Query, extensions []string, maxFiles int) (models.DirectorySearchResult, error) {
	re, err := q.compile()
	if err != nil {
		return models.DirectorySearchResult{}, err
	}
	if maxFiles < 0 {
		return models.DirectorySearchResult{}, errors.InvalidRange("max_files must be >= 0, got %d", maxFiles)
	}
	if maxFiles == 0 {
		maxFiles = DefaultMaxFiles
	}
	rp, err := e.resolver.ResolveDir(root)
	if err != nil {
		return models.DirectorySearchResult{}, err
	}

	allowed := NormalizeExtensions(extensions)
	result := models.DirectorySearchResult{Root: rp.Path, Query: q.Text, Files: []models.FileMatches{}}

	walkErr := filepath.WalkDir(rp.Path, func(p string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			if p == rp.Path {
				return err
			}
			result.FilesSkipped = append(result.FilesSkipped, p)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p != rp.Path && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if result.FilesSearched >= maxFiles {
			result.Truncated = true
			return filepath.SkipAll
		}
		result.FilesSearched++

		fm, err := e.searchWalked(p, re, q)
		if err != nil {
			e.logger.Debug().Err(err).Str("path", p).Msg("skipping file in directory search")
			result.FilesSkipped = append(result.FilesSkipped, p)
			return nil
		}
		if len(fm.Matches) > 0 {
			result.Files = append(result.Files, fm)
		}
		return nil
	})
	if e.onScan != nil {
		e.onScan(result.FilesSearched)
	}
	if walkErr != nil {
		if stdErrors.Is(walkErr, context.Canceled) || stdErrors.Is(walkErr, context.DeadlineExceeded) {
			return result, walkErr
		}
		return result, errors.FromOS(rp.Path, "walk", walkErr)
	}
	return result, nil
}

// searchWalked searches a file found during a walk. The walk root is already
// authorized, but a symlinked file may still point elsewhere, so each file is
// resolved again.
func (e *Engine) searchWalked(p string, re *regexp.Regexp, q Query) (models.FileMatches, error) {
	rp, info, err := e.resolver.ResolveFile(p)
	if err != nil {
		return models.FileMatches{}, err
	}
	lines, err := e.readLines(rp.Path, info.Size())
	if err != nil {
		return models.FileMatches{}, err
	}
	return models.FileMatches{Path: p, Matches: match(lines, re, !q.UseRegex, q.ContextLines)}, nil
}

// NormalizeExtensions lowercases extensions and adds a leading dot where
// missing ("py" and ".PY" both become ".py").
func NormalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	out := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = true
	}
	return out
}

// readLines loads and decodes a whole file. Search never mutates, so holding
// the content is acceptable; the size cap keeps it bounded.
func (e *Engine) readLines(path string, size int64) ([]string, error) {
	if e.maxFileSize > 0 && size > e.maxFileSize {
		return nil, errors.FileTooLarge(path, int(e.maxFileSize/(1024*1024)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FromOS(path, "read", err)
	}
	sniff := data
	if len(sniff) > binarySniff {
		sniff = sniff[:binarySniff]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return nil, errors.InvalidOperation("'%s' appears to be a binary file", path)
	}

	text, err := textenc.Decode(textenc.UTF8, data)
	if err != nil {
		text, err = textenc.Decode(textenc.CP949, data)
		if err != nil {
			return nil, errors.Wrap(errors.KindInvalidOperation, err, "cannot decode '%s' as utf-8 or cp949", path)
		}
	}
	return SplitLines(text), nil
}

// SplitLines splits text into lines without their terminators. A trailing
// newline does not produce an extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// match scans lines with re and expands the hits with context lines.
func match(lines []string, re *regexp.Regexp, firstOnly bool, contextLines int) []models.SearchMatch {
	limit := -1
	if firstOnly {
		limit = 1
	}

	hits := make(map[int][]models.SearchMatch)
	var order []int
	for i, line := range lines {
		locs := re.FindAllStringIndex(line, limit)
		if len(locs) == 0 {
			continue
		}
		n := i + 1
		order = append(order, n)
		for _, loc := range locs {
			hits[n] = append(hits[n], models.SearchMatch{
				LineNumber: n,
				Line:       line,
				MatchStart: loc[0],
				MatchEnd:   loc[1],
				MatchText:  line[loc[0]:loc[1]],
			})
		}
	}

	if contextLines <= 0 || len(order) == 0 {
		out := make([]models.SearchMatch, 0, len(order))
		for _, n := range order {
			out = append(out, hits[n]...)
		}
		return out
	}

	include := make(map[int]bool)
	for _, n := range order {
		for k := n - contextLines; k <= n+contextLines; k++ {
			if k >= 1 && k <= len(lines) {
				include[k] = true
			}
		}
	}
	numbers := make([]int, 0, len(include))
	for k := range include {
		numbers = append(numbers, k)
	}
	sort.Ints(numbers)

	out := make([]models.SearchMatch, 0, len(numbers))
	for _, k := range numbers {
		if h, ok := hits[k]; ok {
			out = append(out, h...)
			continue
		}
		out = append(out, models.SearchMatch{
			LineNumber: k,
			Line:       lines[k-1],
			MatchStart: -1,
			MatchEnd:   -1,
			IsContext:  true,
		})
	}
	return out
}
