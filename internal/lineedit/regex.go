package lineedit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/textenc"
)

// CompilePattern builds a regexp from pattern and a flag string made of
// i (case-insensitive), m (multi-line) and s (dot matches newline).
func CompilePattern(pattern, flags string) (*regexp.Regexp, error) {
	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix.String(), f) {
				prefix.WriteRune(f)
			}
		case 'I', 'M', 'S':
			r := f + ('a' - 'A')
			if !strings.ContainsRune(prefix.String(), r) {
				prefix.WriteRune(r)
			}
		default:
			return nil, errors.InvalidPattern(pattern, fmt.Errorf("unknown flag %q", f))
		}
	}
	expr := pattern
	if prefix.Len() > 0 {
		expr = "(?" + prefix.String() + ")" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.InvalidPattern(pattern, err)
	}
	return re, nil
}

var pyGroupRef = regexp.MustCompile(`\\(?:g<(\w+)>|(\d{1,2})|(\\))`)

// ExpandTemplate converts a replacement using Python-style group references
// (\1, \g<name>) into a regexp.Expand template. A '$' in the replacement is
// literal text, never a group reference.
func ExpandTemplate(replacement string) string {
	escaped := strings.ReplaceAll(replacement, "$", "$$")
	return pyGroupRef.ReplaceAllStringFunc(escaped, func(m string) string {
		sub := pyGroupRef.FindStringSubmatch(m)
		switch {
		case sub[1] != "":
			return "${" + sub[1] + "}"
		case sub[2] != "":
			return "${" + sub[2] + "}"
		default:
			return `\`
		}
	})
}

// RegexReplace substitutes matches of pattern line by line, up to maxCount
// substitutions in total (0 means unlimited). Matching never spans lines and
// never sees the line terminator. The file is left untouched when nothing matches.
func (e *Engine) RegexReplace(ctx context.Context, path, pattern, replacement, flags string, maxCount int) (models.EditReport, error) {
	if maxCount < 0 {
		return models.EditReport{}, errors.InvalidRange("count must be >= 0, got %d", maxCount)
	}
	re, err := CompilePattern(pattern, flags)
	if err != nil {
		return models.EditReport{}, err
	}
	tmpl := []byte(ExpandTemplate(replacement))
	expand := func(dst, src []byte, m []int) []byte {
		return re.Expand(dst, tmpl, src, m)
	}

	report, err := e.substitute(ctx, path, "regex_replace", re, expand, maxCount)
	if err != nil {
		return models.EditReport{}, err
	}
	report.Summary = fmt.Sprintf("Regex replaced '%s' → '%s' (%d times)", pattern, replacement, report.Count)
	return report, nil
}

// FindAndReplace replaces literal occurrences of find, up to maxCount in total
// (0 means unlimited).
func (e *Engine) FindAndReplace(ctx context.Context, path, find, replace string, maxCount int) (models.EditReport, error) {
	if find == "" {
		return models.EditReport{}, errors.InvalidParams("find", "find text must not be empty")
	}
	if strings.Contains(find, "\n") {
		return models.EditReport{}, errors.InvalidParams("find", "find text must not span lines")
	}
	if maxCount < 0 {
		return models.EditReport{}, errors.InvalidRange("count must be >= 0, got %d", maxCount)
	}
	re := regexp.MustCompile(regexp.QuoteMeta(find))
	lit := []byte(replace)
	expand := func(dst, _ []byte, _ []int) []byte {
		return append(dst, lit...)
	}

	report, err := e.substitute(ctx, path, "find_and_replace", re, expand, maxCount)
	if err != nil {
		return models.EditReport{}, err
	}
	report.Summary = fmt.Sprintf("Replaced '%s' → '%s' (%d times)", find, replace, report.Count)
	return report, nil
}

func (e *Engine) substitute(ctx context.Context, path, operation string, re *regexp.Regexp,
	expand func(dst, src []byte, m []int) []byte, maxCount int) (models.EditReport, error) {
	t, release, err := e.open(ctx, path)
	if err != nil {
		return models.EditReport{}, err
	}
	defer release()

	legacy := t.encoding != textenc.UTF8
	count := 0
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

			limit := -1
			if maxCount > 0 {
				limit = maxCount - count
			}
			if limit == 0 {
				if err := writeAll(w, line); err != nil {
					return err
				}
				continue
			}

			body, term := splitTerminator(line)
			text := body
			if legacy {
				decoded, err := textenc.Decode(t.encoding, body)
				if err != nil {
					// Undecodable lines are copied verbatim.
					if err := writeAll(w, line); err != nil {
						return err
					}
					continue
				}
				text = []byte(decoded)
			}

			matches := re.FindAllSubmatchIndex(text, limit)
			if len(matches) == 0 {
				if err := writeAll(w, line); err != nil {
					return err
				}
				continue
			}

			out := make([]byte, 0, len(text)+16)
			last := 0
			for _, m := range matches {
				out = append(out, text[last:m[0]]...)
				out = expand(out, text, m)
				last = m[1]
			}
			out = append(out, text[last:]...)
			count += len(matches)

			if legacy {
				encoded, err := t.encode(string(out))
				if err != nil {
					return err
				}
				out = encoded
			}
			if err := writeAll(w, out, term); err != nil {
				return err
			}
		}
		if count == 0 {
			return errNoChange
		}
		return nil
	})
	switch {
	case err == errNoChange:
		written = t.shape.Lines
	case err != nil:
		return models.EditReport{}, err
	}

	report := models.EditReport{
		Path:      t.path,
		Operation: operation,
		Lines:     models.LineCountDelta{Before: t.shape.Lines, After: written},
		Count:     count,
	}
	return report, nil
}
