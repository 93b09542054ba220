package core

// streaming.go cleans an uploaded file on its way into the parser:
//
//   - BOMSkippingReader drops a leading UTF-8 BOM left by spreadsheet exports
//   - UTF8Sanitizer replaces invalid byte sequences with U+FFFD
//   - LimitedReader fails with ErrFileTooLarge past the configured size
//
// WrapUpload applies all three in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader removes a UTF-8 byte order mark from the start of a stream.
type BOMSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{br: bufio.NewReader(r)}
}

func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if head, _ := r.br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			_, _ = r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// UTF8Sanitizer decodes its input rune by rune and re-encodes it, so every
// invalid byte comes out as the replacement character.
type UTF8Sanitizer struct {
	br  *bufio.Reader
	buf []byte // encoded runes not yet handed to the caller
	err error
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{br: bufio.NewReader(r)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.buf) < len(p) && s.err == nil {
		ch, _, err := s.br.ReadRune()
		if err != nil {
			s.err = err
			break
		}
		s.buf = utf8.AppendRune(s.buf, ch)
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	if n == 0 {
		return 0, s.err
	}
	return n, nil
}

// LimitedReader returns ErrFileTooLarge once more than Max bytes are read.
// A Max of zero or less disables the check.
type LimitedReader struct {
	r    io.Reader
	max  int64
	read int64
}

// NewLimitedReader wraps r with a byte cap.
func NewLimitedReader(r io.Reader, max int64) *LimitedReader {
	return &LimitedReader{r: r, max: max}
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		return n, ErrFileTooLarge
	}
	return n, err
}

// BytesRead reports how much of the underlying stream has been consumed.
func (l *LimitedReader) BytesRead() int64 { return l.read }

// WrapUpload caps, de-BOMs and sanitizes an upload stream.
func WrapUpload(r io.Reader, maxBytes int64) io.Reader {
	return NewUTF8Sanitizer(NewBOMSkippingReader(NewLimitedReader(r, maxBytes)))
}
