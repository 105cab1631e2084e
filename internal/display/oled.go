package display

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/coreman2200/panelhttpd/internal/arbiter"
)

// OLED draws rows on an SSD1306 controller sharing an I²C bus with other
// devices. Every bus transfer runs under the bus peripheral lock.
type OLED struct {
	dev     *ssd1306.Dev
	arb     *arbiter.Arbiter
	bus     arbiter.Peripheral
	timeout time.Duration
	img     *image1bit.VerticalLSB
	face    font.Face
	rowH    int
	ascent  int
}

// OLEDOpts configures NewOLED.
type OLEDOpts struct {
	W, H int
	// Bus names the lock guarding the I²C bus.
	Bus arbiter.Peripheral
	// Timeout bounds each wait for the bus.
	Timeout time.Duration
}

// NewOLED initializes the controller on bus.
func NewOLED(ctx context.Context, bus i2c.Bus, arb *arbiter.Arbiter, o OLEDOpts) (*OLED, error) {
	if o.W <= 0 {
		o.W = 128
	}
	if o.H <= 0 {
		o.H = 64
	}
	face, err := lineFace(o.H / Lines)
	if err != nil {
		return nil, err
	}
	d := &OLED{
		arb:     arb,
		bus:     o.Bus,
		timeout: o.Timeout,
		img:     image1bit.NewVerticalLSB(image.Rect(0, 0, o.W, o.H)),
		face:    face,
		rowH:    o.H / Lines,
	}
	d.ascent = face.Metrics().Ascent.Ceil()
	if d.ascent >= d.rowH {
		d.ascent = d.rowH - 1
	}

	err = arb.With(ctx, o.Bus, o.Timeout, func() error {
		dev, err := ssd1306.NewI2C(bus, &ssd1306.Opts{W: o.W, H: o.H})
		if err != nil {
			return err
		}
		d.dev = dev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ssd1306 init: %w", err)
	}
	return d, nil
}

// lineFace loads a monospace face sized to fit one text row.
func lineFace(rowH int) (font.Face, error) {
	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("error parsing font: %v", err)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(rowH),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Render rasterizes rows and pushes the image over the bus.
func (d *OLED) Render(ctx context.Context, rows []Row) error {
	for i := range d.img.Pix {
		d.img.Pix[i] = 0
	}
	w := d.img.Bounds().Dx()
	for i, r := range rows {
		if i >= Lines || r.Text == "" {
			continue
		}
		x := 0
		if r.Align == Center {
			x = (w - font.MeasureString(d.face, r.Text).Round()) / 2
			if x < 0 {
				x = 0
			}
		}
		dr := font.Drawer{
			Dst:  d.img,
			Src:  &image.Uniform{C: image1bit.On},
			Face: d.face,
			Dot:  fixed.P(x, i*d.rowH+d.ascent),
		}
		dr.DrawString(r.Text)
	}
	return d.arb.With(ctx, d.bus, d.timeout, func() error {
		return d.dev.Draw(d.img.Bounds(), d.img, image.Point{})
	})
}

// Halt blanks the screen.
func (d *OLED) Halt(ctx context.Context) error {
	return d.arb.With(ctx, d.bus, d.timeout, d.dev.Halt)
}
