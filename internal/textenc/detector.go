// Package textenc guesses the character encoding of a file and converts text
// between that encoding and UTF-8.
package textenc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

const (
	// SniffSize is the number of leading bytes inspected.
	SniffSize = 8192
	// MinConfidence is the statistical confidence (0-100) below which the
	// fallback list is consulted.
	MinConfidence = 70

	UTF8   = "utf-8"
	CP949  = "cp949"
	EUCKR  = "euc-kr"
	CP1252 = "cp1252"
	Latin1 = "latin1"
)

var (
	// ErrInvalidBytes is returned when data is not valid in the requested encoding.
	ErrInvalidBytes = fmt.Errorf("invalid byte sequence for encoding")
	// ErrUnknownEncoding is returned for names Lookup cannot resolve.
	ErrUnknownEncoding = fmt.Errorf("unknown encoding")
)

// Fallbacks is tried in order when statistical detection is not confident.
var Fallbacks = []string{UTF8, CP949, EUCKR, CP1252, Latin1}

var named = map[string]encoding.Encoding{
	UTF8:           unicode.UTF8,
	"utf8":         unicode.UTF8,
	"ascii":        unicode.UTF8,
	CP949:          korean.EUCKR,
	EUCKR:          korean.EUCKR,
	"uhc":          korean.EUCKR,
	CP1252:         charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	Latin1:         charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
}

// Lookup returns the encoding registered under name. Unknown names are
// resolved through the WHATWG label index.
func Lookup(name string) (encoding.Encoding, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if enc, ok := named[key]; ok {
		return enc, true
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, false
	}
	return enc, true
}

// ASCIICompatible reports whether bytes 0x00-0x7F mean the same thing in the
// named encoding as in ASCII, so a '\n' byte is always a line terminator.
func ASCIICompatible(name string) bool {
	key := strings.ToLower(name)
	return !strings.HasPrefix(key, "utf-16") && !strings.HasPrefix(key, "utf-32")
}

// Detector guesses file encodings. The zero value is not usable; call NewDetector.
type Detector struct {
	text *chardet.Detector
}

func NewDetector() *Detector {
	return &Detector{text: chardet.NewTextDetector()}
}

// Detect reads at most SniffSize bytes of the file and returns a lowercase
// encoding name. It never fails: unreadable or empty files report utf-8.
func (d *Detector) Detect(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return UTF8
	}
	defer f.Close()

	buf := make([]byte, SniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return UTF8
	}
	return d.DetectBytes(buf[:n], n == SniffSize)
}

// DetectBytes runs detection on an in-memory prefix. truncated tells the
// strict decoders that the prefix may end in the middle of a character.
func (d *Detector) DetectBytes(prefix []byte, truncated bool) string {
	if len(prefix) == 0 {
		return UTF8
	}
	if utf8.Valid(trimPartialUTF8(prefix, truncated)) {
		return UTF8
	}

	if res, err := d.text.DetectBest(prefix); err == nil && res != nil && res.Confidence >= MinConfidence {
		name := strings.ToLower(res.Charset)
		if _, ok := Lookup(name); ok && DecodesStrict(name, prefix, truncated) {
			return name
		}
	}

	for _, name := range Fallbacks {
		if DecodesStrict(name, prefix, truncated) {
			return name
		}
	}
	return UTF8
}

// DecodesStrict reports whether data decodes under name without any
// replacement characters that were not already present.
func DecodesStrict(name string, data []byte, truncated bool) bool {
	if isUTF8(name) {
		return utf8.Valid(trimPartialUTF8(data, truncated))
	}
	enc, ok := Lookup(name)
	if !ok {
		return false
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	if !bytes.ContainsRune(out, utf8.RuneError) {
		return true
	}
	if !truncated {
		return false
	}
	// A multi-byte character cut at the end of the prefix decodes to one
	// trailing replacement character; anything earlier is a real failure.
	idx := bytes.IndexRune(out, utf8.RuneError)
	return idx == len(out)-len(string(utf8.RuneError))
}

// Decode converts data in the named encoding to a UTF-8 string, failing on
// any byte sequence that is invalid in that encoding.
func Decode(name string, data []byte) (string, error) {
	if isUTF8(name) {
		if !utf8.Valid(data) {
			return "", ErrInvalidBytes
		}
		return string(data), nil
	}
	enc, ok := Lookup(name)
	if !ok {
		return "", ErrUnknownEncoding
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.ContainsRune(data, utf8.RuneError) {
		return "", ErrInvalidBytes
	}
	return string(out), nil
}

// Encode converts UTF-8 text into the named encoding. Characters that the
// encoding cannot represent produce an error.
func Encode(name string, s string) ([]byte, error) {
	if isUTF8(name) {
		return []byte(s), nil
	}
	enc, ok := Lookup(name)
	if !ok {
		return nil, ErrUnknownEncoding
	}
	return enc.NewEncoder().Bytes([]byte(s))
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case UTF8, "utf8", "ascii", "":
		return true
	}
	return false
}

// trimPartialUTF8 drops an incomplete trailing UTF-8 sequence of up to three
// bytes when the buffer was cut short.
func trimPartialUTF8(b []byte, truncated bool) []byte {
	if !truncated {
		return b
	}
	for i := 1; i <= 3 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < 0x80 {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}
