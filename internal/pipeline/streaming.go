package pipeline

// streaming.go holds the reader wrappers the CSV import path is built on.
// They keep peak memory at O(buffer size) regardless of file size:
//
//   - bomSkipReader drops a leading UTF-8 BOM (common in Windows exports)
//   - sanitizeReader replaces invalid UTF-8 bytes with '?' on the fly
//   - countingReader tracks bytes consumed for progress reporting

import (
	"io"
	"sync/atomic"
	"unicode/utf8"
)

// wrapSource stacks the three wrappers in the required order: BOM removal
// first, sanitization next, counting outermost so progress reflects clean
// input. total may be 0 when the source size is unknown.
func wrapSource(r io.Reader, total int64) *countingReader {
	return &countingReader{r: &sanitizeReader{r: &bomSkipReader{r: r}}, total: total}
}

// bomSkipReader strips the UTF-8 byte order mark (0xEF 0xBB 0xBF) from the
// start of the stream, if present.
type bomSkipReader struct {
	r       io.Reader
	checked bool
	held    []byte
}

func (b *bomSkipReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
			// BOM consumed, nothing to hold back.
		} else {
			b.held = buf[:n]
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// sanitizeReader replaces invalid UTF-8 sequences with '?' as data flows
// through. A possible multi-byte rune split across reads is held back until
// the next read completes it. The replacement is single-byte so the data
// never expands in place.
type sanitizeReader struct {
	r       io.Reader
	pending []byte
}

func (s *sanitizeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	if off < len(s.pending) {
		// p is smaller than the held-back bytes: hand out what fits and
		// keep the tail for the next read.
		s.pending = s.pending[off:]
		return off, nil
	}
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	atEOF := err != nil
	write := 0
	for read := 0; read < n; {
		if p[read] < utf8.RuneSelf {
			p[write] = p[read]
			write++
			read++
			continue
		}

		r, size := utf8.DecodeRune(p[read:n])
		if r == utf8.RuneError && size == 1 {
			// Hold back a prefix that might complete on the next read.
			// A prefix occupying the entire buffer never can: replace it.
			if !atEOF && incompleteRunePrefix(p[read:n]) && (read > 0 || n < len(p)) {
				s.pending = append(s.pending, p[read:n]...)
				break
			}
			p[write] = '?'
			write++
			read++
			continue
		}

		copy(p[write:], p[read:read+size])
		write += size
		read += size
	}

	if write == 0 && err == nil {
		// Everything got held back; try again for more bytes.
		return s.Read(p)
	}
	return write, err
}

// incompleteRunePrefix reports whether b could be the start of a valid
// multi-byte rune that needs more bytes to complete.
func incompleteRunePrefix(b []byte) bool {
	if len(b) == 0 || len(b) >= utf8.UTFMax {
		return false
	}
	want := expectedRuneLen(b[0])
	if want <= len(b) {
		return false
	}
	for _, c := range b[1:] {
		if c&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// expectedRuneLen returns the byte length implied by a UTF-8 leading byte,
// or 0 for a bare continuation byte.
func expectedRuneLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// countingReader tracks bytes read for progress reporting. The counter is
// atomic: the CSV parser goroutine advances it while the consumer goroutine
// polls percent.
type countingReader struct {
	r     io.Reader
	read  atomic.Int64
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read.Add(int64(n))
	return n, err
}

// percent returns read progress as 0-100, or 0 when the total is unknown.
func (c *countingReader) percent() int {
	if c.total <= 0 {
		return 0
	}
	pct := int(c.read.Load() * 100 / c.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
