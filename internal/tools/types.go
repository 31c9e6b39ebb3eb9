// Package tools implements the Agent Runtime's tool registry, safety
// classifier, and built-in tool surface.
package tools

import "context"

// Source identifies where a tool came from: the fixed built-in list, or
// a connected MCP server named "mcp:<server>".
type Source string

const BuiltinSource Source = "builtin"

// MCPSource formats the Source for a tool discovered from the named
// remote server.
func MCPSource(server string) Source {
	return Source("mcp:" + server)
}

// Tool describes one callable action exposed to the model.
type Tool struct {
	Name             string
	Description      string
	Parameters       []byte // JSON-schema, as raw bytes for direct template embedding
	Source           Source
	RequiresApproval bool
}

// Handler executes a tool call and returns its string result. Errors
// are never thrown out of the agent loop: callers wrap
// handler errors into an error-prefixed string result themselves.
type Handler func(ctx context.Context, args map[string]any) (string, error)
