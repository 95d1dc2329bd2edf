package fileops

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/textenc"
)

// GetFileSection returns lines start..end (1-based, inclusive) widened by
// contextLines on both sides. Requested lines are marked with ">>> ". The
// file is read only up to the last line shown.
func (s *Service) GetFileSection(ctx context.Context, path string, start, end, contextLines int) (string, error) {
	if start < 1 {
		return "", errors.InvalidRange("start_line must be >= 1, got %d", start)
	}
	if end < start {
		return "", errors.InvalidRange("end_line %d is before start_line %d", end, start)
	}
	if contextLines < 0 {
		return "", errors.InvalidRange("context must be >= 0, got %d", contextLines)
	}
	rp, _, err := s.resolver.ResolveFile(path)
	if err != nil {
		return "", err
	}
	enc := s.detector.Detect(rp.Path)
	if !textenc.ASCIICompatible(enc) {
		return "", errors.InvalidOperation("cannot read sections of '%s' encoded as %s", rp.Path, enc)
	}

	f, err := os.Open(rp.Path)
	if err != nil {
		return "", errors.FromOS(rp.Path, "open", err)
	}
	defer f.Close()

	first := max(1, start-contextLines)
	last := end + contextLines
	r := bufio.NewReader(f)
	var out []string
	for n := 1; n <= last; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		line, err := r.ReadBytes('\n')
		if len(line) == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return "", errors.FromOS(rp.Path, "read", err)
		}
		if n >= first {
			text, decErr := textenc.Decode(enc, bytes.TrimRight(line, "\r\n"))
			if decErr != nil {
				return "", errors.Wrap(errors.KindInvalidOperation, decErr, "cannot decode line %d of '%s' as %s", n, rp.Path, enc)
			}
			marker := "    "
			if n >= start && n <= end {
				marker = ">>> "
			}
			out = append(out, fmt.Sprintf("%s%3d: %s", marker, n, text))
		}
		if err == io.EOF {
			break
		}
	}
	return strings.Join(out, "\n"), nil
}
