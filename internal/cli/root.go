// Package cli implements the agent-gateway CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-gateway/internal/config"
)

var (
	configPath   string
	portFlag     int
	stateDirFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-gateway",
	Short: "Session and memory gateway for AI agents",
	Long:  "The agent gateway daemon: durable session transcripts, hook dispatch, and tiered conversation memory. Single binary, SQLite-backed.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config path (default: $AGENT_GATEWAY_CONFIG or ~/.agent-gateway/config.yaml)")
	RootCmd.PersistentFlags().IntVarP(&portFlag, "port", "p", 0, "Gateway port (overrides config)")
	RootCmd.PersistentFlags().StringVar(&stateDirFlag, "state-dir", "", "State directory (overrides config)")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("AGENT_GATEWAY_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-gateway", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if portFlag > 0 {
		cfg.Port = portFlag
	}
	if stateDirFlag != "" {
		cfg.StateDir = stateDirFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
