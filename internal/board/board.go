// Package board reads the board's inputs and drives its small outputs.
//
// Each device sits behind an interface with a periph.io backend and a
// simulated one. Board bundles them and produces a Snapshot, the values a
// template render or the live stream needs in one read.
package board

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// AxisMax is the largest joystick reading (12-bit).
	AxisMax = 4095
	// AxisCenter is the reading of a joystick at rest.
	AxisCenter = 2048
)

// Pressed holds the button states; true means held down.
type Pressed struct {
	A   bool `json:"a"`
	B   bool `json:"b"`
	Joy bool `json:"joy"`
}

// Axes is a joystick position, 0..AxisMax per axis.
type Axes struct {
	X uint16 `json:"x"`
	Y uint16 `json:"y"`
}

// Buttons reads the three push buttons.
type Buttons interface {
	Read(ctx context.Context) (Pressed, error)
}

// Joystick reads the analog stick.
type Joystick interface {
	Read(ctx context.Context) (Axes, error)
}

// Indicator is the RGB LED. Levels returns the last levels set.
type Indicator interface {
	Set(r, g, b uint8) error
	Levels() (r, g, b uint8)
}

// StatusLED is the single on/off LED.
type StatusLED interface {
	Set(on bool) error
	On() bool
}

// Snapshot is one read of every input plus the state of the outputs.
type Snapshot struct {
	Buttons Pressed  `json:"buttons"`
	Joy     Axes     `json:"joy"`
	RGB     [3]uint8 `json:"rgb"`
	LED     bool     `json:"led"`
}

// Board groups the devices. Any of them may be a simulated backend.
type Board struct {
	Buttons   Buttons
	Joystick  Joystick
	Indicator Indicator
	Status    StatusLED

	mu   sync.Mutex
	last Snapshot
	log  zerolog.Logger
}

func New(btn Buttons, joy Joystick, ind Indicator, st StatusLED, log zerolog.Logger) *Board {
	return &Board{
		Buttons:   btn,
		Joystick:  joy,
		Indicator: ind,
		Status:    st,
		last:      Snapshot{Joy: Axes{X: AxisCenter, Y: AxisCenter}},
		log:       log,
	}
}

// Sample reads every device once. A device that fails to read keeps its
// previous value in the snapshot, so a busy bus never blanks the page.
func (b *Board) Sample(ctx context.Context) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, err := b.Buttons.Read(ctx); err == nil {
		b.last.Buttons = p
	} else {
		b.log.Warn().Err(err).Msg("buttons read failed")
	}
	if a, err := b.Joystick.Read(ctx); err == nil {
		b.last.Joy = a
	} else if !errors.Is(err, ErrStale) {
		b.log.Warn().Err(err).Msg("joystick read failed")
	}
	r, g, bl := b.Indicator.Levels()
	b.last.RGB = [3]uint8{r, g, bl}
	b.last.LED = b.Status.On()
	return b.last
}

// ErrStale marks a reading that repeats the previous value because the
// device could not be reached this time.
var ErrStale = errors.New("board: stale reading")
