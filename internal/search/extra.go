package search

import (
	"context"
	"fmt"
	"strings"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/lineedit"
	"hybrid-filesystem/internal/models"
)

// RegexSearch reports every match of pattern in the file. flags accepts the
// same i/m/s letters as regex_replace. With captureGroups set, each match
// carries its submatches.
func (e *Engine) RegexSearch(ctx context.Context, path, pattern, flags string, captureGroups bool) (models.FileMatches, error) {
	if pattern == "" {
		return models.FileMatches{}, errors.InvalidParams("pattern", "pattern must not be empty")
	}
	re, err := lineedit.CompilePattern(pattern, flags)
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

	result := models.FileMatches{Path: rp.Path, Matches: []models.SearchMatch{}}
	for i, line := range lines {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return models.FileMatches{}, err
			}
		}
		for _, loc := range re.FindAllStringSubmatchIndex(line, -1) {
			m := models.SearchMatch{
				LineNumber: i + 1,
				Line:       line,
				MatchStart: loc[0],
				MatchEnd:   loc[1],
				MatchText:  line[loc[0]:loc[1]],
			}
			if captureGroups {
				for g := 2; g+1 < len(loc); g += 2 {
					if loc[g] < 0 {
						m.Groups = append(m.Groups, "")
						continue
					}
					m.Groups = append(m.Groups, line[loc[g]:loc[g+1]])
				}
			}
			result.Matches = append(result.Matches, m)
		}
	}
	return result, nil
}

// Occurrences is the result of CountOccurrences.
type Occurrences struct {
	Path          string `json:"path"`
	Text          string `json:"text"`
	Total         int    `json:"total"`
	MatchingLines int    `json:"matching_lines"`
	Lines         int    `json:"lines"`
	CaseSensitive bool   `json:"case_sensitive"`
}

func (o Occurrences) String() string {
	suffix := ""
	if !o.CaseSensitive {
		suffix = " (case-insensitive)"
	}
	return fmt.Sprintf("Found '%s' %d times in %d lines (total %d lines)%s",
		o.Text, o.Total, o.MatchingLines, o.Lines, suffix)
}

// CountOccurrences counts non-overlapping occurrences of text per line.
func (e *Engine) CountOccurrences(ctx context.Context, path, text string, caseSensitive bool) (Occurrences, error) {
	if text == "" {
		return Occurrences{}, errors.InvalidParams("search_text", "search text must not be empty")
	}
	rp, info, err := e.resolver.ResolveFile(path)
	if err != nil {
		return Occurrences{}, err
	}
	lines, err := e.readLines(rp.Path, info.Size())
	if err != nil {
		return Occurrences{}, err
	}
	if err := ctx.Err(); err != nil {
		return Occurrences{}, err
	}

	needle := text
	if !caseSensitive {
		needle = strings.ToLower(text)
	}
	out := Occurrences{Path: rp.Path, Text: text, Lines: len(lines), CaseSensitive: caseSensitive}
	for _, line := range lines {
		if !caseSensitive {
			line = strings.ToLower(line)
		}
		if n := strings.Count(line, needle); n > 0 {
			out.Total += n
			out.MatchingLines++
		}
	}
	return out, nil
}
