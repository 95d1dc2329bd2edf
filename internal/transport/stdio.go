package transport

import (
	"context"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"hybrid-filesystem/internal/mcp"
	"hybrid-filesystem/internal/service"
)

// StdioHandler speaks MCP over a line-delimited input/output pair.
type StdioHandler struct {
	stdio  *server.StdioServer
	logger zerolog.Logger
}

// NewStdioHandler registers the dispatcher's catalog on an MCP server.
// Protocol-level errors from the library are routed to logger.
func NewStdioHandler(d *service.Dispatcher, version string, logger zerolog.Logger) (*StdioHandler, error) {
	s, err := mcp.NewServer(d, version)
	if err != nil {
		return nil, err
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(logger.With().Str("component", "mcp").Logger(), "", 0))
	return &StdioHandler{stdio: stdio, logger: logger}, nil
}

// Start serves requests from input until it reaches EOF or ctx is done.
// Nothing but protocol frames may be written to output.
func (h *StdioHandler) Start(ctx context.Context, input io.Reader, output io.Writer) error {
	h.logger.Info().Msg("Starting stdio MCP handler")
	err := h.stdio.Listen(ctx, input, output)
	if err != nil && ctx.Err() == nil {
		h.logger.Error().Err(err).Msg("Error reading from stdio")
		return err
	}
	h.logger.Info().Msg("Stdio MCP handler finished")
	return nil
}
