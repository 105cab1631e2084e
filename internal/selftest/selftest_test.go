package selftest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/panelhttpd/internal/layout"
	"github.com/coreman2200/panelhttpd/internal/led"
)

func steps(k Kind, g layout.Grid) [][]led.Color {
	r := NewRunner(k)
	var out [][]led.Color
	for {
		f := make([]led.Color, g.Count())
		if !r.Step(g, f) {
			return out
		}
		out = append(out, f)
	}
}

func TestIndexSweep(t *testing.T) {
	s := steps(IndexSweep, layout.Matrix5x5)
	require.Len(t, s, 25)
	for i, f := range s {
		for j, c := range f {
			if i == j {
				assert.Equal(t, white, c)
			} else {
				assert.Equal(t, led.Black, c)
			}
		}
	}
}

func TestRGBChannelsEnds(t *testing.T) {
	s := steps(RGBChannels, layout.Matrix5x5)
	require.Len(t, s, 3)
	assert.Equal(t, led.Color(0x00FF00), s[1][24])
}

func TestRowsFollowSerpentine(t *testing.T) {
	s := steps(Rows, layout.Matrix5x5)
	require.Len(t, s, 5)
	// Row 1 runs right to left on the chain, still positions 5..9.
	for i, c := range s[1] {
		if i >= 5 && i < 10 {
			assert.Equal(t, cyan, c, "led %d", i)
		} else {
			assert.Equal(t, led.Black, c, "led %d", i)
		}
	}
}

func TestUnknownKind(t *testing.T) {
	assert.Empty(t, steps("plane_z", layout.Matrix5x5))
}

func TestRunPlaysAndClears(t *testing.T) {
	sim := led.NewSim(25, zerolog.Nop())
	m := led.NewMatrix(layout.Matrix5x5, 0, zerolog.Nop())
	require.True(t, m.Init(func() (led.Driver, error) { return sim, nil }))
	before := sim.Frames()

	require.NoError(t, Run(context.Background(), m, []Kind{RGBChannels, Rows}, time.Millisecond))
	assert.Equal(t, before+3+5+1, sim.Frames())
	for _, c := range m.Frame() {
		assert.Equal(t, led.Black, c)
	}
}

func TestRunNotReady(t *testing.T) {
	m := led.NewMatrix(layout.Matrix5x5, 0, zerolog.Nop())
	assert.ErrorIs(t, Run(context.Background(), m, All, 0), led.ErrNotReady)
}

func TestRunCancelled(t *testing.T) {
	m := led.NewMatrix(layout.Matrix5x5, 0, zerolog.Nop())
	require.True(t, m.Init(func() (led.Driver, error) { return led.NewSim(25, zerolog.Nop()), nil }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Run(ctx, m, All, time.Hour), context.Canceled)
}
