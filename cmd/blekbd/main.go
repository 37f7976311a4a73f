// Command blekbd runs the keyboard firmware core on a desktop: a virtual
// switch matrix fed by the desktop keyboard or a script, scanned and
// reported over BLE HID or replayed locally.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/conn"
)

// exitWatchdog is the exit code after a connection protocol violation.
const exitWatchdog = 3

var configPath string

var rootCmd = &cobra.Command{
	Use:   "blekbd",
	Short: "BLE wireless keyboard core",
	Long: `blekbd scans a virtual key matrix, debounces and deghosts it, and
reports key presses to a host over BLE HID, or replays them locally.

Examples:
  blekbd run                          # Type through the desktop key hook
  blekbd run --transport log          # Log reports instead of sending them
  blekbd run --script demo.yaml       # Play a scripted session
  blekbd bonds list                   # Show bonded hosts
  blekbd layout                       # Print the configured layout`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/blekbd/config.yaml)")
	rootCmd.AddCommand(runCmd, bondsCmd, layoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, conn.ErrUnexpectedEvent) {
			os.Exit(exitWatchdog)
		}
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or from the default
// path, writing the defaults there on first use. It also installs the
// logger at the configured level.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		written, err := config.WriteDefault()
		if err != nil {
			return nil, err
		}
		if written != "" {
			fmt.Fprintf(os.Stderr, "Wrote default config to %s\n", written)
		}
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	slog.Debug("[CONFIG] loaded", "path", path)
	return cfg, nil
}
