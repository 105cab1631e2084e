package led

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a 24-bit 0xRRGGBB value.
type Color uint32

const Black Color = 0

// RGB builds a Color from its channels.
func RGB(r, g, b uint8) Color {
	return Color(r)<<16 | Color(g)<<8 | Color(b)
}

func (c Color) R() uint8 { return uint8(c >> 16) }
func (c Color) G() uint8 { return uint8(c >> 8) }
func (c Color) B() uint8 { return uint8(c) }

// GRB reorders the channels into the order WS2812 parts shift in.
func (c Color) GRB() uint32 {
	return uint32(c.G())<<16 | uint32(c.R())<<8 | uint32(c.B())
}

func (c Color) String() string {
	return fmt.Sprintf("%06X", uint32(c)&0xFFFFFF)
}

// ParseColor reads a hex token such as "FF8800", "#ff8800" or "0xff8800".
// Empty or malformed tokens yield Black, including tokens with a valid hex
// prefix such as "12ZZ" and tokens over 32 bits. Bits 24..31 are dropped.
func ParseColor(tok string) Color {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimPrefix(tok, "#")
	if len(tok) > 2 && (tok[:2] == "0x" || tok[:2] == "0X") {
		tok = tok[2:]
	}
	v, err := strconv.ParseUint(tok, 16, 32)
	if err != nil {
		return Black
	}
	return Color(v) & 0xFFFFFF
}
