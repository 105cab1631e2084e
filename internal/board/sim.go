package board

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Sim is every device at once, with no hardware behind it. Inputs are set by
// tests or the --sim command line; outputs remember what was written.
type Sim struct {
	mu      sync.Mutex
	pressed Pressed
	axes    Axes
	rgb     [3]uint8
	led     bool
}

func NewSim() *Sim {
	return &Sim{axes: Axes{X: AxisCenter, Y: AxisCenter}}
}

// Press sets the button states.
func (s *Sim) Press(p Pressed) {
	s.mu.Lock()
	s.pressed = p
	s.mu.Unlock()
}

// Move sets the joystick position.
func (s *Sim) Move(a Axes) {
	s.mu.Lock()
	s.axes = a
	s.mu.Unlock()
}

// SimButtons and SimJoystick expose the two Read methods of Sim, which
// clash on name, as separate devices.
type (
	SimButtons  struct{ *Sim }
	SimJoystick struct{ *Sim }
)

func (s SimButtons) Read(context.Context) (Pressed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed, nil
}

func (s SimJoystick) Read(context.Context) (Axes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axes, nil
}

// SimIndicator and SimStatusLED split the two Set methods the same way.
type (
	SimIndicator struct{ *Sim }
	SimStatusLED struct{ *Sim }
)

func (s SimIndicator) Set(r, g, b uint8) error {
	s.mu.Lock()
	s.rgb = [3]uint8{r, g, b}
	s.mu.Unlock()
	return nil
}

func (s SimIndicator) Levels() (uint8, uint8, uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rgb[0], s.rgb[1], s.rgb[2]
}

func (s SimStatusLED) Set(on bool) error {
	s.mu.Lock()
	s.led = on
	s.mu.Unlock()
	return nil
}

func (s SimStatusLED) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// NewSimBoard returns a Board whose every device is s.
func NewSimBoard(s *Sim, log zerolog.Logger) *Board {
	return New(SimButtons{s}, SimJoystick{s}, SimIndicator{s}, SimStatusLED{s}, log)
}
