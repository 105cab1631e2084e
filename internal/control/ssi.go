package control

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/coreman2200/panelhttpd/internal/httpd"
)

// Tag indexes, in the order of Tags.
const (
	tagStatus = iota
	tagWelcome
	tagUptime
	tagLEDState
	tagLEDInv
	tagTable
	tagBtnA
	tagBtnB
	tagJoyX
	tagJoyY
	tagJoyBtn
	tagRGBR
	tagRGBG
	tagRGBB
)

var tags = []string{
	"status", "welcome", "uptime", "ledstate", "ledinv", "table",
	"btna", "btnb", "joyx", "joyy", "joybtn", "rgbr", "rgbg", "rgbb",
}

// tableRows is the number of parts of the table tag.
const tableRows = 10

var _ httpd.SSI = (*Controller)(nil)

func (c *Controller) Tags() []string { return tags }

// BeginPass reads the board once for the page being rendered.
func (c *Controller) BeginPass(ctx context.Context) {
	c.snap = c.board.Sample(ctx)
}

// Insert writes the value of one tag. Only table has more than one part.
func (c *Controller) Insert(_ context.Context, index int, insert []byte, part int) (int, int) {
	next := httpd.LastTagPart
	var v string
	switch index {
	case tagStatus:
		v = "Pass"
	case tagWelcome:
		v = "Hello from Pico"
	case tagUptime:
		v = strconv.FormatInt(int64(c.now().Sub(c.started)/time.Second), 10)
	case tagLEDState:
		v = onOff(c.snap.LED)
	case tagLEDInv:
		v = onOff(!c.snap.LED)
	case tagTable:
		v = fmt.Sprintf("<tr><td>This is table row number %d</td></tr>", part+1)
		if part < tableRows-1 {
			next = part + 1
		}
	case tagBtnA:
		v = released(c.snap.Buttons.A)
	case tagBtnB:
		v = released(c.snap.Buttons.B)
	case tagJoyX:
		v = strconv.Itoa(int(c.snap.Joy.X))
	case tagJoyY:
		v = strconv.Itoa(int(c.snap.Joy.Y))
	case tagJoyBtn:
		v = released(c.snap.Buttons.Joy)
	case tagRGBR:
		v = strconv.Itoa(int(c.snap.RGB[0]))
	case tagRGBG:
		v = strconv.Itoa(int(c.snap.RGB[1]))
	case tagRGBB:
		v = strconv.Itoa(int(c.snap.RGB[2]))
	}
	return copy(insert, v), next
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// released renders a button as the page expects it: "0" while pressed.
func released(pressed bool) string {
	if pressed {
		return "0"
	}
	return "1"
}
