package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/loqalabs/quoteplay/internal/config"
	"github.com/loqalabs/quoteplay/internal/mcpserver"
	"github.com/loqalabs/quoteplay/internal/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the quote_play tool over MCP stdio",
	Long: `Serve registers the quote_play tool and speaks MCP over stdin/stdout.
Logs are written to stderr as JSON. When a config file is given its voice
model list is reloaded on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := newJSONLogger(cmd.ErrOrStderr(), cfg.Telemetry.LogLevel)
	ctx := cmd.Context()

	rt := runtime.New(cfg, log)
	defer rt.Close()
	if err := rt.Open(ctx); err != nil {
		return err
	}
	if err := rt.StartOps(); err != nil {
		return err
	}

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, log, func(next config.Config) {
				rt.Speech().SetModels(next.Inference.Models)
			})
			if err != nil {
				log.Warn("config watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	server := mcpserver.New(rt.Speech(), version, log)
	caps := rt.Capabilities()
	log.Info("serving MCP over stdio",
		slog.String("tool", mcpserver.ToolName),
		slog.String("version", version),
		slog.Bool("speaker", caps.Speaker),
		slog.String("speaker_reason", caps.Reason))
	if err := mcpserver.Serve(ctx, server); err != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("serve mcp: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
