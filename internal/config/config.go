package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
	// WebRoot serves pages from a directory instead of the built-in ones.
	WebRoot        string `yaml:"web_root,omitempty"`
	PostMaxPayload int64  `yaml:"post_max_payload"`
}

type Display struct {
	Driver     string        `yaml:"driver"` // "ssd1306" | "console"
	I2CBus     int           `yaml:"i2c_bus"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	BusTimeout time.Duration `yaml:"bus_timeout"`
}

type Matrix struct {
	Driver   string        `yaml:"driver"` // "spi" | "sim"
	SPIDev   string        `yaml:"spi_dev"`
	SpeedHz  int64         `yaml:"speed_hz"`
	ResetUs  int           `yaml:"reset_us"`
	ResetGap time.Duration `yaml:"reset_gap"`
	// SelfTest plays the wiring check patterns once at start.
	SelfTest     bool          `yaml:"self_test"`
	SelfTestHold time.Duration `yaml:"self_test_hold"`
}

type RGB struct {
	Driver string `yaml:"driver"` // "pwm" | "sim"
	R      string `yaml:"r"`
	G      string `yaml:"g"`
	B      string `yaml:"b"`
	PWMHz  int64  `yaml:"pwm_hz"`
}

type StatusLED struct {
	Driver string `yaml:"driver"` // "gpio" | "sim"
	Pin    string `yaml:"pin"`
}

type EvdevKeys struct {
	A   uint16 `yaml:"a"`
	B   uint16 `yaml:"b"`
	Joy uint16 `yaml:"joy"`
}

type Buttons struct {
	Source string    `yaml:"source"` // "gpio" | "evdev" | "sim"
	A      string    `yaml:"a"`
	B      string    `yaml:"b"`
	Joy    string    `yaml:"joy"`
	Device string    `yaml:"device,omitempty"`
	Keys   EvdevKeys `yaml:"keys,omitempty"`
}

type Joystick struct {
	Source   string `yaml:"source"` // "ads1x15" | "sim"
	I2CBus   int    `yaml:"i2c_bus"`
	Address  uint16 `yaml:"address"`
	XChannel int    `yaml:"x_channel"`
	YChannel int    `yaml:"y_channel"`
	FullMv   int    `yaml:"full_mv"`
}

type Locks struct {
	BusTimeout time.Duration `yaml:"bus_timeout"`
}

type Live struct {
	Interval time.Duration `yaml:"interval"`
}

type MQTT struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Display   Display   `yaml:"display"`
	Matrix    Matrix    `yaml:"matrix"`
	RGB       RGB       `yaml:"rgb"`
	StatusLED StatusLED `yaml:"status_led"`
	Buttons   Buttons   `yaml:"buttons"`
	Joystick  Joystick  `yaml:"joystick"`
	Locks     Locks     `yaml:"locks"`
	Live      Live      `yaml:"live"`
	MQTT      MQTT      `yaml:"mqtt"`
	Log       Log       `yaml:"log"`
}

// Default is the configuration of the reference board: OLED and ADC on
// I²C bus 1, matrix on spidev0.0, buttons on GPIO5/6/22.
func Default() *Config {
	return &Config{
		HTTP:    HTTP{Addr: ":8080", PostMaxPayload: 4096},
		Display: Display{Driver: "ssd1306", I2CBus: 1, Width: 128, Height: 64, BusTimeout: 50 * time.Millisecond},
		Matrix: Matrix{
			Driver:       "spi",
			SPIDev:       "/dev/spidev0.0",
			SpeedHz:      2400000,
			ResetUs:      300,
			ResetGap:     100 * time.Microsecond,
			SelfTestHold: 60 * time.Millisecond,
		},
		RGB:       RGB{Driver: "pwm", R: "GPIO12", G: "GPIO13", B: "GPIO19", PWMHz: 1000},
		StatusLED: StatusLED{Driver: "gpio", Pin: "GPIO26"},
		Buttons: Buttons{
			Source: "gpio",
			A:      "GPIO5",
			B:      "GPIO6",
			Joy:    "GPIO22",
			Keys:   EvdevKeys{A: 30, B: 48, Joy: 317},
		},
		Joystick: Joystick{Source: "ads1x15", I2CBus: 1, Address: 0x48, XChannel: 0, YChannel: 1, FullMv: 3300},
		Locks:    Locks{BusTimeout: 50 * time.Millisecond},
		Live:     Live{Interval: 200 * time.Millisecond},
		MQTT: MQTT{
			Addr:     "localhost:1883",
			ClientID: "panelhttpd",
			Topic:    "panelhttpd/state",
			Interval: 5 * time.Second,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults: keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// UseSim switches every device to its simulated backend.
func (c *Config) UseSim() {
	c.Display.Driver = "console"
	c.Matrix.Driver = "sim"
	c.RGB.Driver = "sim"
	c.StatusLED.Driver = "sim"
	c.Buttons.Source = "sim"
	c.Joystick.Source = "sim"
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf(format, a...))
	}
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		bad("%s: %q is not one of %v", field, v, allowed)
	}

	if c.HTTP.Addr == "" {
		bad("http.addr is empty")
	}
	if c.HTTP.PostMaxPayload < 512 {
		bad("http.post_max_payload: %d is below one 512 byte segment", c.HTTP.PostMaxPayload)
	}

	oneOf("display.driver", c.Display.Driver, "ssd1306", "console")
	if c.Display.Driver == "ssd1306" && (c.Display.Width <= 0 || c.Display.Height < 8 || c.Display.Height%8 != 0) {
		bad("display: %dx%d is not a valid panel size", c.Display.Width, c.Display.Height)
	}

	oneOf("matrix.driver", c.Matrix.Driver, "spi", "sim")
	if c.Matrix.Driver == "spi" {
		if c.Matrix.SPIDev == "" {
			bad("matrix.spi_dev is empty")
		}
		if c.Matrix.SpeedHz <= 0 {
			bad("matrix.speed_hz must be positive")
		}
		if c.Matrix.ResetUs < 50 {
			bad("matrix.reset_us: %d is shorter than a WS2812 latch", c.Matrix.ResetUs)
		}
	}
	if c.Matrix.SelfTest && c.Matrix.SelfTestHold <= 0 {
		bad("matrix.self_test_hold must be positive")
	}

	oneOf("rgb.driver", c.RGB.Driver, "pwm", "sim")
	if c.RGB.Driver == "pwm" && c.RGB.PWMHz <= 0 {
		bad("rgb.pwm_hz must be positive")
	}
	oneOf("status_led.driver", c.StatusLED.Driver, "gpio", "sim")

	oneOf("buttons.source", c.Buttons.Source, "gpio", "evdev", "sim")
	if c.Buttons.Source == "evdev" && c.Buttons.Device == "" {
		bad("buttons.device is required with the evdev source")
	}

	oneOf("joystick.source", c.Joystick.Source, "ads1x15", "sim")
	if c.Joystick.Source == "ads1x15" {
		for _, ch := range []int{c.Joystick.XChannel, c.Joystick.YChannel} {
			if ch < 0 || ch > 3 {
				bad("joystick channel %d outside 0..3", ch)
			}
		}
		if c.Joystick.XChannel == c.Joystick.YChannel {
			bad("joystick x and y share channel %d", c.Joystick.XChannel)
		}
	}

	if c.Locks.BusTimeout <= 0 {
		bad("locks.bus_timeout must be positive")
	}
	if c.Live.Interval <= 0 {
		bad("live.interval must be positive")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Addr == "" || c.MQTT.Topic == "" {
			bad("mqtt.addr and mqtt.topic are required when mqtt is enabled")
		}
		if c.MQTT.Interval <= 0 {
			bad("mqtt.interval must be positive")
		}
	}
	oneOf("log.format", c.Log.Format, "console", "json")
	return errors.Join(errs...)
}
