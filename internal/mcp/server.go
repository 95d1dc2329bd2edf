// Package mcp exposes the tool dispatcher as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/service"
)

const serverName = "hybrid-filesystem"

const instructions = `Line-oriented file editing and search inside the allowed directories.
Line numbers are 1-based. Every edit reports how later line numbers shifted;
use that report instead of re-reading the file. Prefer get_file_section and
search_in_file over read_file for large files.`

// NewServer registers every catalog tool on a new MCP server.
func NewServer(d *service.Dispatcher, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	cat := d.Catalog()
	for _, spec := range cat.Tools {
		schema, err := cat.JSONSchema(spec.Name)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %s: %w", spec.Name, err)
		}
		tool := mcpgo.NewToolWithRawSchema(spec.Name, spec.Description, raw)
		tool.Annotations.ReadOnlyHint = mcpgo.ToBoolPtr(spec.ReadOnly)
		tool.Annotations.DestructiveHint = mcpgo.ToBoolPtr(spec.Destructive)
		s.AddTool(tool, ToolHandler(d, spec.Name))
	}
	return s, nil
}

// ToolHandler adapts one dispatcher tool to mcp-go. Tool failures are
// reported as error results so the agent sees them; protocol errors are
// left to the library.
func ToolHandler(d *service.Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		res, err := d.Call(ctx, name, req.GetArguments())
		if err != nil {
			return mcpgo.NewToolResultError(FormatError(err)), nil
		}
		return mcpgo.NewToolResultText(res.String()), nil
	}
}

// FormatError renders err as "Error [kind]: message".
func FormatError(err error) string {
	detail := errors.ToErrorDetail(err, "")
	return fmt.Sprintf("Error [%s]: %s", errors.KindOf(err), detail.Message)
}
