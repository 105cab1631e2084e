package board

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// pin looks a GPIO up by name, as gpioreg knows it ("GPIO14", "P1_8", ...).
func pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return p, nil
}

// GPIOButtons reads active-low buttons wired to pulled-up inputs.
type GPIOButtons struct {
	a, b, joy gpio.PinIn
}

// NewGPIOButtons configures the pins by name.
func NewGPIOButtons(a, b, joy string) (*GPIOButtons, error) {
	var pins [3]gpio.PinIn
	for i, n := range []string{a, b, joy} {
		p, err := pin(n)
		if err != nil {
			return nil, err
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		pins[i] = p
	}
	return NewGPIOButtonsFromPins(pins[0], pins[1], pins[2]), nil
}

// NewGPIOButtonsFromPins uses pins that are already configured as inputs.
func NewGPIOButtonsFromPins(a, b, joy gpio.PinIn) *GPIOButtons {
	return &GPIOButtons{a: a, b: b, joy: joy}
}

func (g *GPIOButtons) Read(context.Context) (Pressed, error) {
	return Pressed{
		A:   g.a.Read() == gpio.Low,
		B:   g.b.Read() == gpio.Low,
		Joy: g.joy.Read() == gpio.Low,
	}, nil
}

// PWMIndicator drives a common-cathode RGB LED from three PWM pins.
type PWMIndicator struct {
	mu   sync.Mutex
	pins [3]gpio.PinOut
	freq physic.Frequency
	lv   [3]uint8
}

// NewPWMIndicator looks the pins up by name and turns the LED off.
func NewPWMIndicator(r, g, b string, freq physic.Frequency) (*PWMIndicator, error) {
	var pins [3]gpio.PinOut
	for i, n := range []string{r, g, b} {
		p, err := pin(n)
		if err != nil {
			return nil, err
		}
		pins[i] = p
	}
	return NewPWMIndicatorFromPins(pins, freq)
}

func NewPWMIndicatorFromPins(pins [3]gpio.PinOut, freq physic.Frequency) (*PWMIndicator, error) {
	p := &PWMIndicator{pins: pins, freq: freq}
	if err := p.Set(0, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// Duty maps a 0..255 level to a PWM duty cycle.
func Duty(level uint8) gpio.Duty {
	return gpio.Duty(int64(level) * int64(gpio.DutyMax) / 255)
}

func (p *PWMIndicator) Set(r, g, b uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, lv := range [3]uint8{r, g, b} {
		if err := p.pins[i].PWM(Duty(lv), p.freq); err != nil {
			return fmt.Errorf("rgb channel %d: %w", i, err)
		}
		p.lv[i] = lv
	}
	return nil
}

func (p *PWMIndicator) Levels() (uint8, uint8, uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lv[0], p.lv[1], p.lv[2]
}

// GPIOStatusLED is an LED on a push-pull output, lit when high.
type GPIOStatusLED struct {
	mu  sync.Mutex
	pin gpio.PinOut
	on  bool
}

func NewGPIOStatusLED(name string) (*GPIOStatusLED, error) {
	p, err := pin(name)
	if err != nil {
		return nil, err
	}
	return NewGPIOStatusLEDFromPin(p)
}

func NewGPIOStatusLEDFromPin(p gpio.PinOut) (*GPIOStatusLED, error) {
	s := &GPIOStatusLED{pin: p}
	if err := s.Set(false); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GPIOStatusLED) Set(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pin.Out(gpio.Level(on)); err != nil {
		return err
	}
	s.on = on
	return nil
}

func (s *GPIOStatusLED) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}
