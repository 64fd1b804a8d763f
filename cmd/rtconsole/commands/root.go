package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/acolytehealth/rtconsole/cmd/rtconsole/internal/config"
)

var (
	// Global flags
	verbose bool

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rtconsole",
	Short: "Realtime voice/chat console",
	Long: `rtconsole - a console for realtime speech model conversations.

The chat command opens a peer session to the realtime service, relays
JSON control events over the data channel, and augments outgoing
messages with passage-retrieval context. The serve command exposes the
internal HTTP endpoints (credential issuance, context queries) for a
browser frontend.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/rtconsole/
  Linux:   ~/.config/rtconsole/
  Windows: %AppData%/rtconsole/

Use 'rtconsole config' to manage contexts and service configurations.

Examples:
  # Create a context and configure the console
  rtconsole config add-context dev
  rtconsole config set dev console api_key YOUR_KEY
  rtconsole config use-context dev

  # Start chatting
  rtconsole chat

  # Run the HTTP gateway
  rtconsole serve --addr 127.0.0.1:8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load()
	if err != nil {
		// Store the error for deferred reporting so commands that do
		// not need config, like 'rtconsole version', still work.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
// Returns an error if the config could not be loaded (e.g., HOME not set).
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// envOr returns the environment value when set, else the fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
