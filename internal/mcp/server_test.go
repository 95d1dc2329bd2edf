package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-filesystem/internal/config"
	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/service"
)

func setup(t *testing.T) (*service.Dispatcher, string) {
	t.Helper()
	cfg := config.Default()
	cfg.AllowedDirectories = []string{t.TempDir()}
	d, err := service.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	dir, err := filepath.EvalSymlinks(cfg.AllowedDirectories[0])
	require.NoError(t, err)
	return d, dir
}

func callTool(t *testing.T, d *service.Dispatcher, name string, args map[string]any) *mcpgo.CallToolResult {
	t.Helper()
	var req mcpgo.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := ToolHandler(d, name)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	return res
}

func text(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	tc, ok := res.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestToolHandler(t *testing.T) {
	d, dir := setup(t)
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("a\nb\nc\n"), 0o644))

	res := callTool(t, d, "delete_lines", map[string]any{"path": "a.txt", "start_line": 2, "end_line": 3})
	assert.False(t, res.IsError)
	assert.Equal(t, "Deleted lines 2-3 (2 lines)\nRemoved 2 lines - Lines 4+ shifted UP by 2\nTotal lines: 3 → 1", text(t, res))

	res = callTool(t, d, "delete_lines", map[string]any{"path": "a.txt", "start_line": 5})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Error [invalid_range]: ")

	res = callTool(t, d, "read_file", map[string]any{"path": "/etc/passwd"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error [access_denied]: Access denied: /etc/passwd not in allowed directories", text(t, res))
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "Error [file_not_found]: File 'x' not found", FormatError(errors.FileNotFound("x")))
	assert.Equal(t, "Error [internal]: Internal error", FormatError(assert.AnError))
}

func TestNewServer_ListsCatalog(t *testing.T) {
	d, _ := setup(t)
	s, err := NewServer(d, "test")
	require.NoError(t, err)

	ctx := context.Background()
	s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`))
	resp := s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded struct {
		Result struct {
			Tools []struct {
				Name        string          `json:"name"`
				InputSchema json.RawMessage `json:"inputSchema"`
				Annotations struct {
					ReadOnlyHint    *bool `json:"readOnlyHint"`
					DestructiveHint *bool `json:"destructiveHint"`
				} `json:"annotations"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Result.Tools, len(d.Catalog().Tools))

	for _, tool := range decoded.Result.Tools {
		if tool.Name != "delete_file" {
			continue
		}
		require.NotNil(t, tool.Annotations.DestructiveHint)
		assert.True(t, *tool.Annotations.DestructiveHint)
		assert.Contains(t, string(tool.InputSchema), `"force"`)
	}
}

func TestNewServer_CallTool(t *testing.T) {
	d, dir := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x\n"), 0o644))
	s, err := NewServer(d, "test")
	require.NoError(t, err)

	resp := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"append_to_file","arguments":{"path":"a.txt","content":"y"}}}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `Appended 2 characters to file`)
	assert.Equal(t, "x\ny\n", readFile(t, filepath.Join(dir, "a.txt")))
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}
