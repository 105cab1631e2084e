// Package app assembles the server from a configuration: devices, locks,
// the request handlers and the background tasks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/panelhttpd/internal/arbiter"
	"github.com/coreman2200/panelhttpd/internal/board"
	"github.com/coreman2200/panelhttpd/internal/config"
	"github.com/coreman2200/panelhttpd/internal/control"
	"github.com/coreman2200/panelhttpd/internal/diagnostics"
	"github.com/coreman2200/panelhttpd/internal/display"
	"github.com/coreman2200/panelhttpd/internal/httpd"
	"github.com/coreman2200/panelhttpd/internal/layout"
	"github.com/coreman2200/panelhttpd/internal/led"
	"github.com/coreman2200/panelhttpd/internal/selftest"
	"github.com/coreman2200/panelhttpd/internal/telemetry"
	"github.com/coreman2200/panelhttpd/internal/ws"
	"github.com/coreman2200/panelhttpd/web"
)

type Core struct {
	Cfg     *config.Config
	Arb     *arbiter.Arbiter
	Display *display.Display
	Matrix  *led.Matrix
	Board   *board.Board
	// Sim backs every device that is simulated or failed to open.
	Sim    *board.Sim
	Ctrl   *control.Controller
	Hub    *ws.Hub
	Server *httpd.Server
	// Pub is nil unless mqtt is enabled.
	Pub *telemetry.Publisher

	diag    *diagnostics.Logger
	buses   map[int]i2c.BusCloser
	closers []func() error
	log     zerolog.Logger
}

// InitCore opens every device named by cfg. A device that cannot be opened
// is reported and replaced: the OLED by a console panel, inputs and small
// outputs by their simulated versions. An LED matrix that fails stays
// unavailable and its endpoint does nothing.
func InitCore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Core{
		Cfg:   cfg,
		Arb:   arbiter.New(log.With().Str("component", "arbiter").Logger()),
		Sim:   board.NewSim(),
		diag:  &diagnostics.Logger{Log: log.With().Str("component", "diag").Logger()},
		buses: map[int]i2c.BusCloser{},
		log:   log,
	}
	if c.needsHost() {
		if _, err := host.Init(); err != nil {
			c.diag.Report(diagnostics.InitFailed("periph host", err))
		}
	}

	c.Arb.Init(arbiter.Display)
	c.Arb.Init(arbiter.Bus(cfg.Display.I2CBus))
	c.Arb.Init(arbiter.Bus(cfg.Joystick.I2CBus))

	c.Display = display.New(c.Arb, c.openPanel(ctx), log.With().Str("component", "display").Logger())
	c.Matrix = c.openMatrix()
	c.Board = board.New(
		c.openButtons(ctx),
		c.openJoystick(ctx),
		c.openIndicator(),
		c.openStatusLED(),
		log.With().Str("component", "board").Logger(),
	)

	c.Ctrl = control.New(c.Display, c.Matrix, c.Board, c.diag, log.With().Str("component", "control").Logger())
	root, err := c.webRoot()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Server = httpd.New(root, c.Ctrl.CGI(), c.Ctrl, c.Ctrl, httpd.Options{
		Addr:           cfg.HTTP.Addr,
		MaxPostPayload: cfg.HTTP.PostMaxPayload,
	}, log.With().Str("component", "httpd").Logger())

	c.Hub = ws.NewHub(c.Board, c.Display, cfg.Live.Interval, cfg.Locks.BusTimeout, log.With().Str("component", "ws").Logger())
	c.diag.Next = c.Hub
	c.Server.Handle("/ws", c.Hub)
	c.Server.Handle("/healthz", http.HandlerFunc(c.Hub.HandleHealth))

	if cfg.MQTT.Enabled {
		c.Pub = telemetry.New(c.Board, telemetry.Options{
			Addr:     cfg.MQTT.Addr,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Interval: cfg.MQTT.Interval,
		}, log.With().Str("component", "mqtt").Logger())
	}
	return c, nil
}

// Run serves until ctx is done, then waits for the server to drain and
// releases the devices.
func (c *Core) Run(ctx context.Context) error {
	c.Display.Banner(ctx,
		display.Row{Text: "panelhttpd", Align: display.Center},
		display.Row{Text: "HTTP Server", Align: display.Center},
		display.Row{},
		display.Row{Text: "Starting...", Align: display.Center},
	)
	if c.Cfg.Matrix.SelfTest {
		if err := selftest.Run(ctx, c.Matrix, selftest.All, c.Cfg.Matrix.SelfTestHold); err != nil {
			c.log.Warn().Err(err).Msg("matrix self test")
		} else {
			c.log.Info().Msg("matrix self test done")
		}
	}
	if err := c.Server.Start(ctx); err != nil {
		c.Close()
		return err
	}
	c.Ctrl.MarkListening()
	addr := c.Server.Addr().String()
	c.Display.Banner(ctx,
		display.Row{Text: "panelhttpd", Align: display.Center},
		display.Row{Text: "HTTP Server", Align: display.Center},
		display.Row{},
		display.Row{Text: "Listening", Align: display.Center},
		display.Row{},
		display.Row{Text: addr, Align: display.Center},
	)
	c.log.Info().Str("addr", addr).Bool("matrix", c.Matrix.Ready()).Msg("ready")

	go c.Hub.Run(ctx)
	if c.Pub != nil {
		go c.Pub.Run(ctx)
	}

	<-ctx.Done()
	<-c.Server.Done()
	return c.Close()
}

// Close releases the devices and buses, joining their errors.
func (c *Core) Close() error {
	var errs []error
	if c.Matrix != nil {
		errs = append(errs, c.Matrix.Close())
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	for n, b := range c.buses {
		errs = append(errs, b.Close())
		delete(c.buses, n)
	}
	return errors.Join(errs...)
}

func (c *Core) needsHost() bool {
	cfg := c.Cfg
	return cfg.Display.Driver == "ssd1306" || cfg.Matrix.Driver == "spi" ||
		cfg.RGB.Driver == "pwm" || cfg.StatusLED.Driver == "gpio" ||
		cfg.Buttons.Source == "gpio" || cfg.Joystick.Source == "ads1x15"
}

func (c *Core) webRoot() (fs.FS, error) {
	if c.Cfg.HTTP.WebRoot == "" {
		return web.FS(), nil
	}
	st, err := os.Stat(c.Cfg.HTTP.WebRoot)
	if err != nil {
		return nil, fmt.Errorf("web root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("web root %s is not a directory", c.Cfg.HTTP.WebRoot)
	}
	return os.DirFS(c.Cfg.HTTP.WebRoot), nil
}

// bus opens I²C bus n once.
func (c *Core) bus(n int) (i2c.Bus, error) {
	if b, ok := c.buses[n]; ok {
		return b, nil
	}
	b, err := i2creg.Open(strconv.Itoa(n))
	if err != nil {
		return nil, fmt.Errorf("i2c bus %d: %w", n, err)
	}
	c.buses[n] = b
	return b, nil
}

func (c *Core) openPanel(ctx context.Context) display.Panel {
	cfg := c.Cfg.Display
	console := display.NewConsole(c.log.With().Str("component", "oled").Logger())
	if cfg.Driver != "ssd1306" {
		return console
	}
	b, err := c.bus(cfg.I2CBus)
	if err == nil {
		var d *display.OLED
		d, err = display.NewOLED(ctx, b, c.Arb, display.OLEDOpts{
			W:       cfg.Width,
			H:       cfg.Height,
			Bus:     arbiter.Bus(cfg.I2CBus),
			Timeout: cfg.BusTimeout,
		})
		if err == nil {
			c.closers = append(c.closers, func() error { return d.Halt(context.Background()) })
			return d
		}
	}
	c.diag.Report(diagnostics.InitFailed("oled", err))
	return console
}

func (c *Core) openMatrix() *led.Matrix {
	cfg := c.Cfg.Matrix
	m := led.NewMatrix(layout.Matrix5x5, cfg.ResetGap, c.log.With().Str("component", "matrix").Logger())
	var openErr error
	ok := m.Init(func() (led.Driver, error) {
		if cfg.Driver == "sim" {
			return led.NewSim(layout.Matrix5x5.Count(), c.log.With().Str("component", "matrix-sim").Logger()), nil
		}
		port, err := spireg.Open(cfg.SPIDev)
		if err != nil {
			openErr = err
			return nil, err
		}
		d, err := led.NewSPI(port, layout.Matrix5x5.Count(), physic.Frequency(cfg.SpeedHz)*physic.Hertz, cfg.ResetUs)
		if err != nil {
			port.Close()
			openErr = err
			return nil, err
		}
		return d, nil
	})
	if !ok {
		c.diag.Report(diagnostics.InitFailed("led matrix", openErr))
	}
	return m
}

func (c *Core) openButtons(ctx context.Context) board.Buttons {
	cfg := c.Cfg.Buttons
	var (
		btn board.Buttons
		err error
	)
	switch cfg.Source {
	case "gpio":
		btn, err = board.NewGPIOButtons(cfg.A, cfg.B, cfg.Joy)
	case "evdev":
		btn, err = board.OpenEvdevButtons(ctx, cfg.Device, board.EvdevCodes{A: cfg.Keys.A, B: cfg.Keys.B, Joy: cfg.Keys.Joy},
			c.log.With().Str("component", "evdev").Logger())
	default:
		return board.SimButtons{Sim: c.Sim}
	}
	if err != nil {
		c.diag.Report(diagnostics.InitFailed("buttons", err))
		return board.SimButtons{Sim: c.Sim}
	}
	return btn
}

func (c *Core) openJoystick(ctx context.Context) board.Joystick {
	cfg := c.Cfg.Joystick
	if cfg.Source != "ads1x15" {
		return board.SimJoystick{Sim: c.Sim}
	}
	b, err := c.bus(cfg.I2CBus)
	if err == nil {
		var j *board.ADSJoystick
		j, err = board.NewADSJoystick(ctx, b, c.Arb, board.ADSOpts{
			Addr:     cfg.Address,
			XChannel: cfg.XChannel,
			YChannel: cfg.YChannel,
			Full:     physic.ElectricPotential(cfg.FullMv) * physic.MilliVolt,
			Bus:      arbiter.Bus(cfg.I2CBus),
			Timeout:  c.Cfg.Locks.BusTimeout,
		}, c.log.With().Str("component", "joystick").Logger())
		if err == nil {
			return j
		}
	}
	c.diag.Report(diagnostics.InitFailed("joystick", err))
	return board.SimJoystick{Sim: c.Sim}
}

func (c *Core) openIndicator() board.Indicator {
	cfg := c.Cfg.RGB
	if cfg.Driver != "pwm" {
		return board.SimIndicator{Sim: c.Sim}
	}
	p, err := board.NewPWMIndicator(cfg.R, cfg.G, cfg.B, physic.Frequency(cfg.PWMHz)*physic.Hertz)
	if err != nil {
		c.diag.Report(diagnostics.InitFailed("rgb led", err))
		return board.SimIndicator{Sim: c.Sim}
	}
	return p
}

func (c *Core) openStatusLED() board.StatusLED {
	cfg := c.Cfg.StatusLED
	if cfg.Driver != "gpio" {
		return board.SimStatusLED{Sim: c.Sim}
	}
	s, err := board.NewGPIOStatusLED(cfg.Pin)
	if err != nil {
		c.diag.Report(diagnostics.InitFailed("status led", err))
		return board.SimStatusLED{Sim: c.Sim}
	}
	return s
}
