package textsan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreman2200/panelhttpd/internal/textsan"
)

var decodeCases = []struct {
	In     string
	Expect string
}{
	{"hello+world", "hello world"},
	{"a%20b", "a b"},
	{"%41%62%63", "Abc"},
	{"100%", "100%"},
	{"50%2", "50%2"},
	{"%zz", "%zz"},
	{"%4g", "%4g"},
	{"%%41", "%A"},
	{"", ""},
}

func TestDecode(t *testing.T) {
	for _, c := range decodeCases {
		got := textsan.Decode([]byte(c.In))
		assert.Equal(t, c.Expect, string(got), "Decode(%q)", c.In)
	}
}

func TestDecodeNeverGrows(t *testing.T) {
	for _, c := range decodeCases {
		buf := []byte(c.In)
		assert.LessOrEqual(t, len(textsan.Decode(buf)), len(c.In))
	}
}

var foldCases = []struct {
	In     string
	Expect string
}{
	{"Olá mundo", "Ola mundo"},
	{"ÀÉÎÕÜ", "AEIOU"},
	{"ação", "acao"},
	{"Ñandú", "Nandu"},
	{"ý", "y"},
	{"×÷", "??"},
	{"°C", "?C"},
	{"€5", "?5"},
	{"go 🚀!", "go ?!"},
	{"tab\there\n", "tabhere"},
	{"plain ASCII ~", "plain ASCII ~"},
}

func TestFold(t *testing.T) {
	for _, c := range foldCases {
		got := textsan.Fold([]byte(c.In))
		assert.Equal(t, c.Expect, string(got), "Fold(%q)", c.In)
	}
}

func TestFoldTruncatedSequence(t *testing.T) {
	// 0xE2 0x82 is the start of a 3-byte sequence cut by the end of input.
	buf := []byte{'o', 'k', 0xE2, 0x82}
	assert.Equal(t, "ok?", string(textsan.Fold(buf)))

	buf = []byte{'x', 0xC3}
	assert.Equal(t, "x?", string(textsan.Fold(buf)))
}

func TestFoldDropsStrayContinuation(t *testing.T) {
	buf := []byte{'a', 0x80, 'b', 0xFF}
	assert.Equal(t, "ab", string(textsan.Fold(buf)))
}

func TestSanitizeRoundTrip(t *testing.T) {
	assert.Equal(t, "Ola mundo", textsan.SanitizeString("Ol%C3%A1+mundo", textsan.DisplayWidth))
}

func TestSanitizeClampsToWidth(t *testing.T) {
	got := textsan.SanitizeString("0123456789abcdefXYZ", textsan.DisplayWidth)
	assert.Equal(t, "0123456789abcdef", got)

	// width is applied after folding, so multi-byte input is not cut mid-glyph
	got = textsan.SanitizeString("%C3%A9%C3%A9%C3%A9", 2)
	assert.Equal(t, "ee", got)
}

func TestSanitizeStaysInsideBuffer(t *testing.T) {
	src := []byte("%C3%A7a+%E2%82%AC|tail")
	buf := src[:17]
	out := textsan.Sanitize(buf, textsan.DisplayWidth)
	assert.Equal(t, "ca ?", out)
	assert.Equal(t, "|tail", string(src[17:]))
}
