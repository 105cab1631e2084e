//go:build linux

package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/holoplot/go-evdev"
	"github.com/rs/zerolog"
)

// EvdevCodes are the key codes the gpio-keys overlay reports per button.
type EvdevCodes struct {
	A, B, Joy uint16
}

// EvdevButtons follows a gpio-keys input device. The kernel debounces and
// inverts the lines; a monitor goroutine keeps the current state.
type EvdevButtons struct {
	dev   *evdev.InputDevice
	codes EvdevCodes

	mu    sync.Mutex
	state Pressed
	log   zerolog.Logger
}

// OpenEvdevButtons finds the input device called name and starts watching it
// until ctx ends.
func OpenEvdevButtons(ctx context.Context, name string, codes EvdevCodes, log zerolog.Logger) (*EvdevButtons, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	var devPath string
	for _, ip := range paths {
		if ip.Name == name {
			devPath = ip.Path
			break
		}
	}
	if devPath == "" {
		return nil, fmt.Errorf("no input device named %q", name)
	}
	dev, err := evdev.Open(devPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devPath, err)
	}
	e := &EvdevButtons{dev: dev, codes: codes, log: log.With().Str("device", devPath).Logger()}
	e.log.Info().Str("name", name).Msg("watching buttons")
	go e.monitor(ctx)
	return e, nil
}

func (e *EvdevButtons) monitor(ctx context.Context) {
	go func() {
		<-ctx.Done()
		e.dev.Close()
	}()
	for {
		ev, err := e.dev.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				e.log.Error().Err(err).Msg("input read failed")
			}
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		e.apply(ev.Code, ev.Value)
	}
}

// apply records a key event. Value 1 is a press, 0 a release and 2 an
// autorepeat, which changes nothing.
func (e *EvdevButtons) apply(code evdev.EvCode, value int32) {
	if value == 2 {
		return
	}
	down := value == 1
	e.mu.Lock()
	defer e.mu.Unlock()
	switch uint16(code) {
	case e.codes.A:
		e.state.A = down
	case e.codes.B:
		e.state.B = down
	case e.codes.Joy:
		e.state.Joy = down
	}
}

func (e *EvdevButtons) Read(context.Context) (Pressed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}
