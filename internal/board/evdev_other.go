//go:build !linux

package board

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

type EvdevCodes struct {
	A, B, Joy uint16
}

type EvdevButtons struct{}

func OpenEvdevButtons(context.Context, string, EvdevCodes, zerolog.Logger) (*EvdevButtons, error) {
	return nil, errors.New("evdev buttons need linux")
}

func (*EvdevButtons) Read(context.Context) (Pressed, error) {
	return Pressed{}, errors.New("evdev buttons need linux")
}
