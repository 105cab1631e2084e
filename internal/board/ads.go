package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/coreman2200/panelhttpd/internal/arbiter"
)

// ADSOpts configures NewADSJoystick.
type ADSOpts struct {
	Addr uint16
	// XChannel and YChannel are single-ended inputs 0..3.
	XChannel, YChannel int
	// Full is the voltage read at full deflection.
	Full physic.ElectricPotential
	// Bus names the lock guarding the I²C bus.
	Bus     arbiter.Peripheral
	Timeout time.Duration
}

var adsChannels = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// ADSJoystick reads a two axis analog stick through an ADS1115 that shares
// the I²C bus with the display.
type ADSJoystick struct {
	x, y    analog.PinADC
	full    physic.ElectricPotential
	arb     *arbiter.Arbiter
	bus     arbiter.Peripheral
	timeout time.Duration

	mu   sync.Mutex
	last Axes
	log  zerolog.Logger
}

// NewADSJoystick opens the converter on bus.
func NewADSJoystick(ctx context.Context, bus i2c.Bus, arb *arbiter.Arbiter, o ADSOpts, log zerolog.Logger) (*ADSJoystick, error) {
	if o.XChannel < 0 || o.XChannel > 3 || o.YChannel < 0 || o.YChannel > 3 {
		return nil, fmt.Errorf("joystick channels %d,%d outside 0..3", o.XChannel, o.YChannel)
	}
	if o.Full <= 0 {
		o.Full = 3300 * physic.MilliVolt
	}
	if o.Addr == 0 {
		o.Addr = ads1x15.DefaultOpts.I2cAddress
	}
	j := &ADSJoystick{
		full:    o.Full,
		arb:     arb,
		bus:     o.Bus,
		timeout: o.Timeout,
		last:    Axes{X: AxisCenter, Y: AxisCenter},
		log:     log,
	}
	err := arb.With(ctx, o.Bus, o.Timeout, func() error {
		adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: o.Addr})
		if err != nil {
			return err
		}
		if j.x, err = adc.PinForChannel(adsChannels[o.XChannel], o.Full, 128*physic.Hertz, ads1x15.SaveEnergy); err != nil {
			return err
		}
		j.y, err = adc.PinForChannel(adsChannels[o.YChannel], o.Full, 128*physic.Hertz, ads1x15.SaveEnergy)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ads1115 init: %w", err)
	}
	return j, nil
}

// NewADSJoystickFromPins reads two already opened analog pins.
func NewADSJoystickFromPins(x, y analog.PinADC, full physic.ElectricPotential, arb *arbiter.Arbiter, bus arbiter.Peripheral, timeout time.Duration, log zerolog.Logger) *ADSJoystick {
	return &ADSJoystick{
		x: x, y: y, full: full,
		arb: arb, bus: bus, timeout: timeout,
		last: Axes{X: AxisCenter, Y: AxisCenter},
		log:  log,
	}
}

// Read converts both axes under the bus lock. When the bus stays busy the
// previous position is returned along with ErrStale.
func (j *ADSJoystick) Read(ctx context.Context) (Axes, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var a Axes
	err := j.arb.With(ctx, j.bus, j.timeout, func() error {
		sx, err := j.x.Read()
		if err != nil {
			return err
		}
		sy, err := j.y.Read()
		if err != nil {
			return err
		}
		a = Axes{X: j.scale(sx), Y: j.scale(sy)}
		return nil
	})
	if err != nil {
		j.log.Debug().Err(err).Msg("joystick keeps last reading")
		return j.last, fmt.Errorf("%w: %v", ErrStale, err)
	}
	j.last = a
	return a, nil
}

// scale maps a sample to 0..AxisMax of the full scale voltage.
func (j *ADSJoystick) scale(s analog.Sample) uint16 {
	v := int64(s.V) * AxisMax / int64(j.full)
	switch {
	case v < 0:
		return 0
	case v > AxisMax:
		return AxisMax
	}
	return uint16(v)
}
