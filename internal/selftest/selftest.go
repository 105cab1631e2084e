// Package selftest plays wiring check patterns on the LED matrix.
package selftest

import (
	"context"
	"fmt"
	"time"

	"github.com/coreman2200/panelhttpd/internal/layout"
	"github.com/coreman2200/panelhttpd/internal/led"
)

type Kind string

const (
	// IndexSweep lights each chain position in turn, in white.
	IndexSweep Kind = "index_sweep"
	// RGBChannels shows the whole panel red, then green, then blue.
	RGBChannels Kind = "rgb_channels"
	// Rows lights each logical row in turn, in cyan. A wrong serpentine
	// setting shows up as a broken row.
	Rows Kind = "rows"
)

// All is every pattern, in the order Run plays them by default.
var All = []Kind{IndexSweep, RGBChannels, Rows}

const (
	white = led.Color(0xFFFFFF)
	cyan  = led.Color(0x00FFFF)
)

var channels = []led.Color{0xFF0000, 0x00FF00, 0x0000FF}

type Runner struct {
	kind Kind
	step int
}

func NewRunner(k Kind) *Runner { return &Runner{kind: k} }

func (r *Runner) Kind() Kind { return r.kind }

// Step fills frame with the next pattern step; it returns false when the
// pattern is complete.
func (r *Runner) Step(g layout.Grid, frame []led.Color) bool {
	for i := range frame {
		frame[i] = led.Black
	}
	switch r.kind {
	case IndexSweep:
		if r.step >= g.Count() {
			return false
		}
		frame[r.step] = white
	case RGBChannels:
		if r.step >= len(channels) {
			return false
		}
		for i := range frame {
			frame[i] = channels[r.step]
		}
	case Rows:
		if r.step >= g.H {
			return false
		}
		for x := 0; x < g.W; x++ {
			frame[g.Index(x, r.step)] = cyan
		}
	default:
		return false
	}
	r.step++
	return true
}

// Run plays kinds on m, holding each step for hold, and clears the panel.
func Run(ctx context.Context, m *led.Matrix, kinds []Kind, hold time.Duration) error {
	if !m.Ready() {
		return led.ErrNotReady
	}
	g := m.Grid()
	frame := make([]led.Color, g.Count())
	defer m.Clear()
	for _, k := range kinds {
		r := NewRunner(k)
		for r.Step(g, frame) {
			if err := m.SendFrame(frame); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(hold):
			}
		}
	}
	return nil
}
