package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreman2200/panelhttpd/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a config file",
	Long: `Load a configuration file over the defaults and validate it without
opening any device.

Exit codes:
  0 - config is valid
  1 - config is invalid (every problem is printed)`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = checkCmd.MarkFlagRequired("config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Listen:   %s\n", cfg.HTTP.Addr)
	fmt.Fprintf(out, "  Display:  %s\n", cfg.Display.Driver)
	fmt.Fprintf(out, "  Matrix:   %s\n", cfg.Matrix.Driver)
	fmt.Fprintf(out, "  Buttons:  %s\n", cfg.Buttons.Source)
	fmt.Fprintf(out, "  Joystick: %s\n", cfg.Joystick.Source)
	fmt.Fprintf(out, "  MQTT:     %t\n", cfg.MQTT.Enabled)
	return nil
}
