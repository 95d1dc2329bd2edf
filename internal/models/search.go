package models

// SearchMatch is one hit or context line produced by the SearchEngine.
// Context lines carry MatchStart == MatchEnd == -1.
type SearchMatch struct {
	LineNumber int    `json:"line_number"`
	Line       string `json:"line"`
	MatchStart int    `json:"match_start"`
	MatchEnd   int    `json:"match_end"`
	MatchText  string `json:"match_text,omitempty"`
	IsContext  bool   `json:"is_context,omitempty"`
	// Groups holds capture groups for regex_search when requested.
	Groups []string `json:"groups,omitempty"`
}

// FileMatches groups the matches found in one file.
type FileMatches struct {
	Path    string        `json:"path"`
	Matches []SearchMatch `json:"matches"`
}

// MatchCount returns the number of non-context entries.
func (f FileMatches) MatchCount() int {
	n := 0
	for _, m := range f.Matches {
		if !m.IsContext {
			n++
		}
	}
	return n
}

// DirectorySearchResult is returned by SearchDirectory. Files appear in walk
// order; only files with at least one match are listed.
type DirectorySearchResult struct {
	Root          string        `json:"root"`
	Query         string        `json:"query"`
	Files         []FileMatches `json:"files"`
	FilesSearched int           `json:"files_searched"`
	FilesSkipped  []string      `json:"files_skipped,omitempty"`
	Truncated     bool          `json:"truncated"`
}

// ByPath returns the matches for path, or nil.
func (r DirectorySearchResult) ByPath(path string) []SearchMatch {
	for _, f := range r.Files {
		if f.Path == path {
			return f.Matches
		}
	}
	return nil
}

// TotalMatches sums non-context matches across all files.
func (r DirectorySearchResult) TotalMatches() int {
	n := 0
	for _, f := range r.Files {
		n += f.MatchCount()
	}
	return n
}
