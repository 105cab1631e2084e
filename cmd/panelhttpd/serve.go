package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/panelhttpd/internal/app"
	"github.com/coreman2200/panelhttpd/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Long: `Open the board's devices and serve the control panel.

Without -c the built-in defaults are used. Flags override the file.
The server runs until interrupted (Ctrl+C) or SIGTERM.

Example:
  panelhttpd serve -c /etc/panelhttpd.yaml
  panelhttpd serve --sim --addr :8080 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringP("config", "c", "", "path to config file")
	f.Bool("sim", false, "simulate every device")
	f.String("addr", "", "HTTP listen address")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (console, json)")
}

// loadConfig reads the file named by --config, or the defaults, and applies
// the flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()
	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}
	if sim, _ := f.GetBool("sim"); sim {
		cfg.UseSim()
	}
	if v, _ := f.GetString("addr"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v, _ := f.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := f.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, cfg.Validate()
}

// newLogger sets the global logger from cfg and returns it.
func newLogger(cfg config.Log, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return log.Logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.InitCore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("display", cfg.Display.Driver).
		Str("matrix", cfg.Matrix.Driver).
		Bool("mqtt", cfg.MQTT.Enabled).
		Str("version", version).
		Msg("starting")

	if err := core.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
