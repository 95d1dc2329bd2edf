package lineedit

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"
)

const (
	readBufferSize = 64 * 1024
	// ctxCheckEvery is how many lines are processed between cancellation checks.
	ctxCheckEvery = 4096
)

var newlineByte = []byte{'\n'}

// shape summarizes a file without holding its content.
type shape struct {
	Lines    int
	Size     int64
	Trailing bool // last byte is '\n'
	CRLF     bool // first line ends in "\r\n"
}

// scanShape counts lines in one streaming pass. A final line without a
// terminator still counts as a line.
func scanShape(ctx context.Context, path string) (shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return shape{}, err
	}
	defer f.Close()

	var s shape
	var last byte
	seenNewline := false
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return shape{}, err
		}
		n, err := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if !seenNewline {
				if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
					seenNewline = true
					if i > 0 {
						s.CRLF = chunk[i-1] == '\r'
					} else {
						s.CRLF = last == '\r'
					}
				}
			}
			s.Lines += bytes.Count(chunk, newlineByte)
			s.Size += int64(n)
			last = chunk[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return shape{}, err
		}
	}
	s.Trailing = s.Size > 0 && last == '\n'
	if s.Size > 0 && !s.Trailing {
		s.Lines++
	}
	return s, nil
}

// lineReader yields raw lines, terminator included, numbering them from 1.
type lineReader struct {
	ctx context.Context
	r   *bufio.Reader
	n   int
}

func newLineReader(ctx context.Context, r io.Reader) *lineReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, readBufferSize)
	}
	return &lineReader{ctx: ctx, r: br}
}

// next returns the next line or io.EOF. The returned slice is owned by the caller.
func (lr *lineReader) next() ([]byte, error) {
	if lr.n%ctxCheckEvery == 0 {
		if err := lr.ctx.Err(); err != nil {
			return nil, err
		}
	}
	line, err := lr.r.ReadBytes('\n')
	if len(line) > 0 {
		lr.n++
		return line, nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

// splitTerminator separates a raw line from its "\n" or "\r\n" ending.
func splitTerminator(line []byte) (body, term []byte) {
	if bytes.HasSuffix(line, []byte("\r\n")) {
		return line[:len(line)-2], line[len(line)-2:]
	}
	if bytes.HasSuffix(line, newlineByte) {
		return line[:len(line)-1], line[len(line)-1:]
	}
	return line, nil
}

// countingWriter tracks how many lines pass through it.
type countingWriter struct {
	w        io.Writer
	n        int64
	newlines int
	last     byte
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.newlines += bytes.Count(p[:n], newlineByte)
		c.last = p[n-1]
		c.n += int64(n)
	}
	return n, err
}

func (c *countingWriter) Lines() int {
	if c.n > 0 && c.last != '\n' {
		return c.newlines + 1
	}
	return c.newlines
}

// contentLines splits caller text into lines. A trailing newline does not
// start an extra line; empty text has no lines.
func contentLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
