// Package textsan turns form-encoded, possibly accented user text into the
// plain ASCII the OLED font can draw.
//
// All functions work in place on caller-owned buffers and return the used
// prefix; nothing is ever written past len(buf).
package textsan

// DisplayWidth is the number of characters a display line holds.
const DisplayWidth = 16

// Placeholder replaces any glyph that has no ASCII equivalent.
const Placeholder = '?'

// Decode undoes application/x-www-form-urlencoded escaping in place: '+'
// becomes a space and "%XX" becomes the byte XX. Escapes that are cut short or
// carry non-hex digits are copied through literally.
func Decode(buf []byte) []byte {
	dst := 0
	for src := 0; src < len(buf); {
		c := buf[src]
		switch {
		case c == '+':
			buf[dst] = ' '
			dst++
			src++
		case c == '%' && src+2 < len(buf):
			h1, ok1 := unhex(buf[src+1])
			h2, ok2 := unhex(buf[src+2])
			if ok1 && ok2 {
				buf[dst] = h1<<4 | h2
				dst++
				src += 3
				continue
			}
			buf[dst] = c
			dst++
			src++
		default:
			buf[dst] = c
			dst++
			src++
		}
	}
	return buf[:dst]
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// latin1 maps the second byte of a 0xC3-led UTF-8 sequence (U+00C0..U+00FF)
// to its unaccented letter. Zero entries fold to Placeholder.
var latin1 = [64]byte{
	0x00: 'A', 0x01: 'A', 0x02: 'A', 0x03: 'A', 0x04: 'A', 0x05: 'A',
	0x07: 'C',
	0x08: 'E', 0x09: 'E', 0x0A: 'E', 0x0B: 'E',
	0x0C: 'I', 0x0D: 'I', 0x0E: 'I', 0x0F: 'I',
	0x11: 'N',
	0x12: 'O', 0x13: 'O', 0x14: 'O', 0x15: 'O', 0x16: 'O',
	0x19: 'U', 0x1A: 'U', 0x1B: 'U', 0x1C: 'U',
	0x1D: 'Y',
	0x20: 'a', 0x21: 'a', 0x22: 'a', 0x23: 'a', 0x24: 'a', 0x25: 'a',
	0x27: 'c',
	0x28: 'e', 0x29: 'e', 0x2A: 'e', 0x2B: 'e',
	0x2C: 'i', 0x2D: 'i', 0x2E: 'i', 0x2F: 'i',
	0x31: 'n',
	0x32: 'o', 0x33: 'o', 0x34: 'o', 0x35: 'o', 0x36: 'o',
	0x39: 'u', 0x3A: 'u', 0x3B: 'u', 0x3C: 'u',
	0x3D: 'y',
}

// Fold rewrites UTF-8 text in place as printable ASCII. Latin-1 letters lose
// their accents, every other multi-byte sequence collapses to a single
// Placeholder and control bytes are dropped. A sequence truncated by the end
// of buf yields one Placeholder and ends the scan.
func Fold(buf []byte) []byte {
	dst := 0
	for src := 0; src < len(buf); {
		c := buf[src]
		n := seqLen(c)
		switch {
		case n == 1:
			if c >= 0x20 && c < 0x7F {
				buf[dst] = c
				dst++
			}
			src++
			continue
		case n == 0:
			// stray continuation or invalid lead byte
			src++
			continue
		case src+n > len(buf):
			buf[dst] = Placeholder
			dst++
			return buf[:dst]
		}
		out := byte(Placeholder)
		if c == 0xC3 {
			if second := buf[src+1]; second >= 0x80 && second < 0xC0 {
				if r := latin1[second-0x80]; r != 0 {
					out = r
				}
			}
		}
		buf[dst] = out
		dst++
		src += n
	}
	return buf[:dst]
}

// seqLen reports how many bytes the sequence led by c occupies, or 0 when c
// cannot start a sequence.
func seqLen(c byte) int {
	switch {
	case c < 0x80:
		return 1
	case c&0xE0 == 0xC0:
		return 2
	case c&0xF0 == 0xE0:
		return 3
	case c&0xF8 == 0xF0:
		return 4
	}
	return 0
}

// Clamp cuts buf to at most width bytes.
func Clamp(buf []byte, width int) []byte {
	if width >= 0 && len(buf) > width {
		return buf[:width]
	}
	return buf
}

// Sanitize runs Decode, Fold and Clamp over buf and returns the result as a
// string ready for a display line.
func Sanitize(buf []byte, width int) string {
	return string(Clamp(Fold(Decode(buf)), width))
}

// SanitizeString is Sanitize for callers holding a string; the input is copied
// into a scratch buffer first.
func SanitizeString(s string, width int) string {
	return Sanitize([]byte(s), width)
}
