// Package control binds the web endpoints to the board.
//
// A Controller owns the state every endpoint works on: the display, the LED
// matrix and the board's small devices. It provides the CGI table, the POST
// handler and the SSI tag callback the httpd engine needs. The engine calls
// it one request at a time.
package control

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/panelhttpd/internal/arbiter"
	"github.com/coreman2200/panelhttpd/internal/board"
	"github.com/coreman2200/panelhttpd/internal/diagnostics"
	"github.com/coreman2200/panelhttpd/internal/display"
	"github.com/coreman2200/panelhttpd/internal/led"
	"github.com/coreman2200/panelhttpd/internal/textsan"
)

// Redirect is the page every handler sends the browser back to.
const Redirect = "/index.shtml"

// Controller is the shared state behind the endpoints.
type Controller struct {
	disp   *display.Display
	matrix *led.Matrix
	board  *board.Board
	diag   diagnostics.Sink

	started time.Time
	now     func() time.Time

	snap  board.Snapshot
	posts map[string]*post
	log   zerolog.Logger
}

// New returns a Controller. The uptime tag counts from now until
// MarkListening is called.
func New(disp *display.Display, matrix *led.Matrix, b *board.Board, diag diagnostics.Sink, log zerolog.Logger) *Controller {
	return &Controller{
		disp:    disp,
		matrix:  matrix,
		board:   b,
		diag:    diag,
		started: time.Now(),
		now:     time.Now,
		posts:   map[string]*post{},
		log:     log,
	}
}

// MarkListening restarts the uptime count. Call it once the server
// accepts connections.
func (c *Controller) MarkListening() { c.started = c.now() }

// Started returns the time uptime counts from.
func (c *Controller) Started() time.Time { return c.started }

// pushText sanitizes raw form text and shows it on the display.
func (c *Controller) pushText(ctx context.Context, raw []byte) {
	text := textsan.Sanitize(raw, display.Width)
	if err := c.disp.PushLine(ctx, text); err != nil {
		c.report(ctx, "oled", err)
		return
	}
	c.log.Debug().Str("text", text).Msg("display line")
}

// setRGB drives the RGB indicator.
func (c *Controller) setRGB(r, g, b uint8) {
	if err := c.board.Indicator.Set(r, g, b); err != nil {
		c.diag.Report(diagnostics.WriteFailed("rgb", err))
		return
	}
	c.log.Debug().Uint8("r", r).Uint8("g", g).Uint8("b", b).Msg("rgb")
}

// setStatus drives the status LED.
func (c *Controller) setStatus(on bool) {
	if err := c.board.Status.Set(on); err != nil {
		c.diag.Report(diagnostics.WriteFailed("status led", err))
	}
}

// setMatrix applies a comma separated list of hex colors to the LEDs from
// index 0 on. LEDs past the list keep their color.
func (c *Controller) setMatrix(data string) {
	colors := ParseColors(data, c.matrix.Grid().Count())
	n, err := c.matrix.SetPixels(0, colors)
	switch {
	case errors.Is(err, led.ErrNotReady):
		c.diag.Report(diagnostics.NotReady("led matrix"))
	case err != nil:
		c.diag.Report(diagnostics.WriteFailed("led matrix", err))
	default:
		c.log.Debug().Int("leds", n).Msg("matrix updated")
	}
}

func (c *Controller) report(ctx context.Context, what string, err error) {
	switch {
	case errors.Is(err, arbiter.ErrTimeout):
		c.diag.Report(diagnostics.Busy(what, err))
	case ctx.Err() != nil:
		c.log.Debug().Err(err).Str("component", what).Msg("request ended")
	default:
		c.diag.Report(diagnostics.WriteFailed(what, err))
	}
}

// ParseColors splits data on commas and reads at most max colors. An empty
// or malformed token is black.
func ParseColors(data string, max int) []led.Color {
	if data == "" || max <= 0 {
		return nil
	}
	toks := strings.SplitN(data, ",", max+1)
	if len(toks) > max {
		toks = toks[:max]
	}
	colors := make([]led.Color, len(toks))
	for i, tok := range toks {
		colors[i] = led.ParseColor(tok)
	}
	return colors
}

// ParseLevel reads a decimal channel level the way atoi does (leading
// spaces, optional sign, digits up to the first non-digit) and clamps the
// result to 0..255.
func ParseLevel(s string) uint8 {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || neg {
		return 0
	}
	v, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil || v > 255 {
		return 255
	}
	return uint8(v)
}
