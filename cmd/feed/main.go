// Command feed streams public market data from an OKX-style WebSocket feed
// into TimescaleDB.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rickgao/okx-feed/internal/config"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "feed",
	Short:         "Resilient market data feed client",
	Long:          "Connects to an OKX-style public WebSocket, keeps subscriptions alive across reconnects, and stores pushes in TimescaleDB.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/feed.yaml", "path to config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file loaded before the config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("feed failed", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
