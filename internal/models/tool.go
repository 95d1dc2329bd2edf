package models

import (
	"encoding/json"
	"fmt"
)

// ToolsListResponse is returned by GET /tools.
type ToolsListResponse struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolDefinition describes a single tool available through the server.
type ToolDefinition struct {
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	ArgumentsSchema Schema          `json:"arguments_schema"`
	Annotations     ToolAnnotations `json:"annotations"`
}

// Schema represents a JSON schema.
type Schema map[string]interface{}

// ToolAnnotations provides hints about the tool's behavior.
type ToolAnnotations struct {
	ReadOnlyHint    bool `json:"readOnlyHint"`
	DestructiveHint bool `json:"destructiveHint"`
}

// ToolResult is what every handler returns. Text is the agent-facing rendering;
// Data, when set, is the structured form served over HTTP.
type ToolResult struct {
	Text string      `json:"text,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// TextResult wraps a plain message.
func TextResult(format string, args ...interface{}) ToolResult {
	return ToolResult{Text: fmt.Sprintf(format, args...)}
}

// String returns Text, or a JSON rendering of Data when Text is empty.
func (r ToolResult) String() string {
	if r.Text != "" || r.Data == nil {
		return r.Text
	}
	b, err := json.MarshalIndent(r.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Data)
	}
	return string(b)
}

// ToolCallResponse is the HTTP success envelope for POST /tools/{name}.
type ToolCallResponse struct {
	Tool   string     `json:"tool"`
	Result ToolResult `json:"result"`
}
