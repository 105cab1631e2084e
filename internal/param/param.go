// Package param extracts form parameters from a request body that arrives
// as a chain of segments. The body is never joined into one buffer: lookups
// walk the segments with a cursor, so a name or value may straddle any number
// of segment boundaries.
package param

// Stream is a request body as an ordered list of segments.
type Stream [][]byte

// Len returns the total number of bytes across all segments.
func (s Stream) Len() int {
	n := 0
	for _, seg := range s {
		n += len(seg)
	}
	return n
}

// cursor addresses one byte of a Stream.
type cursor struct {
	seg, off int
}

// seek returns a cursor at absolute offset pos, or ok=false past the end.
func (s Stream) seek(pos int) (c cursor, ok bool) {
	for i, seg := range s {
		if pos < len(seg) {
			return cursor{seg: i, off: pos}, true
		}
		pos -= len(seg)
	}
	return cursor{}, false
}

// next advances c by one byte, skipping empty segments.
func (s Stream) next(c cursor) (cursor, bool) {
	c.off++
	for c.seg < len(s) && c.off >= len(s[c.seg]) {
		c.seg++
		c.off = 0
	}
	return c, c.seg < len(s)
}

func (s Stream) byteAt(c cursor) byte {
	return s[c.seg][c.off]
}

// matches reports whether pat occurs at c.
func (s Stream) matches(c cursor, pat []byte) bool {
	for i := range pat {
		if s.byteAt(c) != pat[i] {
			return false
		}
		if i == len(pat)-1 {
			break
		}
		var ok bool
		if c, ok = s.next(c); !ok {
			return false
		}
	}
	return true
}

// Find returns the absolute offset of the first occurrence of pat at or
// after from, or -1.
func (s Stream) Find(pat []byte, from int) int {
	if len(pat) == 0 || from < 0 {
		return -1
	}
	total := s.Len()
	c, ok := s.seek(from)
	for pos := from; ok && pos+len(pat) <= total; pos++ {
		if s.matches(c, pat) {
			return pos
		}
		c, ok = s.next(c)
	}
	return -1
}

// CopyTo copies up to len(dst) bytes starting at absolute offset off and
// returns the number copied.
func (s Stream) CopyTo(dst []byte, off int) int {
	n := 0
	for _, seg := range s {
		if off >= len(seg) {
			off -= len(seg)
			continue
		}
		n += copy(dst[n:], seg[off:])
		off = 0
		if n == len(dst) {
			break
		}
	}
	return n
}

// before returns the byte preceding absolute offset pos.
func (s Stream) before(pos int) byte {
	c, _ := s.seek(pos - 1)
	return s.byteAt(c)
}

// Value looks up the parameter introduced by name (including its trailing
// '=', e.g. "text=") and copies its value into buf. Only a name at the start
// of the stream or right after '&' counts, so "r=" never matches inside
// "bar=". The value ends at the next '&' or the end of the stream.
//
// Value reports false when the parameter is absent, when its value is empty
// and when the value would not fit in buf with one byte to spare: a value too
// long for its buffer is treated as missing rather than truncated.
func Value(s Stream, name string, buf []byte) ([]byte, bool) {
	pat := []byte(name)
	pos := s.Find(pat, 0)
	for pos > 0 && s.before(pos) != '&' {
		pos = s.Find(pat, pos+1)
	}
	if pos < 0 {
		return nil, false
	}
	start := pos + len(pat)
	end := s.Find([]byte{'&'}, start)
	if end < 0 {
		end = s.Len()
	}
	n := end - start
	if n <= 0 || n >= len(buf) {
		return nil, false
	}
	return buf[:s.CopyTo(buf[:n], start)], true
}
