// Graylogic-tasmota controls Tasmota devices over MQTT and HTTP.
//
// It keeps the configured devices' state in sync, runs routines against
// them and serves the result over a REST and WebSocket API.
//
// Usage:
//
//	graylogic-tasmota serve [--config configs/config.yaml]
//	graylogic-tasmota discover [--timeout 5s]
//	graylogic-tasmota token --subject dashboard
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "graylogic-tasmota",
		Short: "Tasmota device controller",
		Long: `Controls Tasmota devices over MQTT and HTTP.

The serve command brings up every configured device, keeps its state in sync
and exposes it through a REST and WebSocket API. discover lists the devices
answering on the broker.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newServeCmd(), newDiscoverCmd(), newTokenCmd(), newVersionCmd())
	return root
}

// loadConfig reads the config file. An explicitly named file must exist;
// the default path falls back to built-in defaults when absent.
func loadConfig() (*config.Config, string, error) {
	path, explicit := configPath, configPath != ""
	if !explicit {
		if env := os.Getenv("GRAYLOGIC_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	cfg, err = config.Default()
	if err != nil {
		return nil, "", fmt.Errorf("loading default config: %w", err)
	}
	return cfg, "", nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-tasmota %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
