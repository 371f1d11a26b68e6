// Package mcpserver exposes quote playback as an MCP tool.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loqalabs/quoteplay/internal/speech"
)

const ToolName = "quote_play"

// Speaker is the part of speech.Service the tool needs.
type Speaker interface {
	Say(ctx context.Context, text string) speech.Response
}

// QuoteInput is the tool argument object.
type QuoteInput struct {
	Quote string `json:"quote" jsonschema:"The quote to speak aloud"`
}

// New registers the quote_play tool on a fresh MCP server.
func New(speaker Speaker, version string, log *slog.Logger) *mcp.Server {
	logger := log.With(slog.String("component", "mcp"))
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "quoteplay",
		Title:   "Quote Player",
		Version: version,
	}, nil)

	tool := &mcp.Tool{
		Name:        ToolName,
		Title:       "Play a quote",
		Description: "Speaks a quote aloud with a remote voice model and returns the audio URL",
		Annotations: &mcp.ToolAnnotations{
			Title:        "Play a quote",
			ReadOnlyHint: false,
		},
	}
	mcp.AddTool(s, tool, func(ctx context.Context, _ *mcp.CallToolRequest, input QuoteInput) (*mcp.CallToolResult, any, error) {
		logger.Info("quote requested", slog.Int("length", len(input.Quote)))
		resp := speaker.Say(ctx, input.Quote)
		if resp.IsError {
			logger.Warn("quote failed", slog.String("message", resp.Message))
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: resp.Message}},
			IsError: resp.IsError,
		}, nil, nil
	})
	return s
}

// Serve runs the server over stdio until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}
