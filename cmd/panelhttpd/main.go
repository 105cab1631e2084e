// Command panelhttpd serves the control panel of a small LED and display
// board.
//
// Usage:
//
//	panelhttpd serve -c config.yaml [--sim]   # run the server
//	panelhttpd check -c config.yaml           # validate a config file
//	panelhttpd version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "panelhttpd",
	Short: "Web control panel for an OLED, LED matrix and RGB LED board",
	Long: `panelhttpd serves a small web UI that drives the board's OLED display,
5x5 LED matrix, RGB LED and status LED, and shows its buttons and joystick.

Quick start:
  panelhttpd serve --sim                # no hardware needed
  panelhttpd serve -c config.yaml       # on the board`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "panelhttpd %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
