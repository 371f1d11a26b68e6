package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/loqalabs/quoteplay/internal/config"
)

var version = "0.1.0-dev"

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
)

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "quoteplay",
	Short: "Speak quotes aloud with remote voice models",
	Long: `quoteplay sends a quote to a text-to-speech inference service, waits for
the job, downloads the audio and plays it locally. It runs as a one-shot
command or as an MCP tool server over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		if verbose {
			cfg.Telemetry.LogLevel = "debug"
		}
		logger = newConsoleLogger(cmd.ErrOrStderr(), cfg.Telemetry.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("QUOTEPLAY_CONFIG"), "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// newConsoleLogger renders slog records through charmbracelet/log for
// interactive use.
func newConsoleLogger(w io.Writer, level string) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           charmLevel(level),
		ReportTimestamp: true,
	})
	return slog.New(handler)
}

// newJSONLogger is used by serve, where stdout belongs to the MCP stream.
func newJSONLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)}))
}

func charmLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func slogLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
