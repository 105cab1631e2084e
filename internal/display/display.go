// Package display keeps the text shown on the board's character display.
//
// The display holds a fixed number of lines and scrolls: pushing a line drops
// the oldest one and appends the new one at the bottom, then the whole screen
// is redrawn. Every change happens under the display peripheral lock so a
// concurrent reader never sees a half-shifted buffer.
package display

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/panelhttpd/internal/arbiter"
	"github.com/coreman2200/panelhttpd/internal/textsan"
)

const (
	// Lines is the number of text rows on the display.
	Lines = 8
	// Width is the number of characters per row.
	Width = textsan.DisplayWidth
)

// Align positions a row's text.
type Align int

const (
	Left Align = iota
	Center
)

// Row is one line of text as handed to a Panel.
type Row struct {
	Text  string
	Align Align
}

// Panel draws a full screen of rows. Implementations are only called with the
// display lock held.
type Panel interface {
	Render(ctx context.Context, rows []Row) error
}

// Display is the scrolling line buffer in front of a Panel.
type Display struct {
	lines [Lines]string
	arb   *arbiter.Arbiter
	panel Panel
	log   zerolog.Logger
}

// New returns an empty Display drawing on panel. arb must have the
// arbiter.Display peripheral initialized.
func New(arb *arbiter.Arbiter, panel Panel, log zerolog.Logger) *Display {
	return &Display{arb: arb, panel: panel, log: log}
}

// PushLine scrolls the buffer up by one and shows text on the last row. text
// is expected to be sanitized already; it is cut to Width. The caller waits
// for the display as long as it takes, unless ctx ends first.
func (d *Display) PushLine(ctx context.Context, text string) error {
	if err := d.arb.Acquire(ctx, arbiter.Display, arbiter.Forever); err != nil {
		return err
	}
	defer d.arb.Release(arbiter.Display)

	copy(d.lines[:], d.lines[1:])
	d.lines[Lines-1] = string(textsan.Clamp([]byte(text), Width))
	d.log.Debug().Str("text", d.lines[Lines-1]).Msg("line pushed")

	rows := make([]Row, Lines)
	for i, l := range d.lines {
		rows[i] = Row{Text: l}
	}
	return d.panel.Render(ctx, rows)
}

// Lines returns a copy of the buffer, oldest first. It gives up with
// arbiter.ErrTimeout when the display stays busy for timeout.
func (d *Display) Lines(ctx context.Context, timeout time.Duration) ([]string, error) {
	if err := d.arb.Acquire(ctx, arbiter.Display, timeout); err != nil {
		return nil, err
	}
	defer d.arb.Release(arbiter.Display)
	out := make([]string, Lines)
	copy(out, d.lines[:])
	return out, nil
}

// Banner draws rows directly, without touching the line buffer. It is used
// for boot and connection status screens; the next PushLine replaces it.
func (d *Display) Banner(ctx context.Context, rows ...Row) error {
	if err := d.arb.Acquire(ctx, arbiter.Display, arbiter.Forever); err != nil {
		return err
	}
	defer d.arb.Release(arbiter.Display)

	screen := make([]Row, Lines)
	copy(screen, rows)
	for i := range screen {
		screen[i].Text = string(textsan.Clamp([]byte(screen[i].Text), Width))
	}
	return d.panel.Render(ctx, screen)
}
