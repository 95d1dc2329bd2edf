package search

import (
	"fmt"
	"strings"

	"hybrid-filesystem/internal/models"
)

// FormatFile renders one file's matches as a "=== path ===" block with
// right-aligned line numbers. With highlight set, the match span is wrapped in
// >>> <<< markers. A line with several matches is printed once per match.
func FormatFile(fm models.FileMatches, highlight bool) string {
	var b strings.Builder
	writeFile(&b, fm, highlight, false)
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatGroups is FormatFile for regex_search, listing capture groups under
// each match.
func FormatGroups(fm models.FileMatches) string {
	var b strings.Builder
	writeFile(&b, fm, true, true)
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatDirectory renders every file block followed by a summary line.
func FormatDirectory(r models.DirectorySearchResult) string {
	if len(r.Files) == 0 {
		return fmt.Sprintf("No matches for '%s' in %s (%d files searched)", r.Query, r.Root, r.FilesSearched)
	}
	var b strings.Builder
	for i, fm := range r.Files {
		if i > 0 {
			b.WriteString("\n")
		}
		writeFile(&b, fm, true, false)
	}
	fmt.Fprintf(&b, "\n%d matches in %d files (%d files searched)", r.TotalMatches(), len(r.Files), r.FilesSearched)
	if r.Truncated {
		b.WriteString(", file limit reached")
	}
	if len(r.FilesSkipped) > 0 {
		fmt.Fprintf(&b, ", %d files skipped", len(r.FilesSkipped))
	}
	return b.String()
}

func writeFile(b *strings.Builder, fm models.FileMatches, highlight, groups bool) {
	fmt.Fprintf(b, "=== %s ===\n", fm.Path)
	for _, m := range fm.Matches {
		line := m.Line
		if highlight && m.MatchStart >= 0 && m.MatchEnd <= len(line) {
			line = line[:m.MatchStart] + ">>>" + line[m.MatchStart:m.MatchEnd] + "<<<" + line[m.MatchEnd:]
		}
		fmt.Fprintf(b, "%4d: %s\n", m.LineNumber, line)
		if groups {
			for i, g := range m.Groups {
				fmt.Fprintf(b, "      group %d: %s\n", i+1, g)
			}
		}
	}
}
