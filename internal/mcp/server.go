// Package mcp exposes the agent's own tool surface as a Model Context
// Protocol server, so external MCP clients (editors, other agents) can
// call search, read_file, index_status and the rest through the same
// safety-classified registry the agent loop uses. The inverse
// direction — consuming remote MCP servers — lives in
// internal/mcpclient.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/localagent/internal/tools"
	"github.com/Aman-CERP/localagent/pkg/version"
)

// Server wraps the SDK server around a tool registry snapshot.
type Server struct {
	registry *tools.Registry
	mcp      *sdk.Server
	log      *slog.Logger

	// autoApproveSafe mirrors the user setting: Moderate-risk tools are
	// served to external clients under the same approval table as the
	// agent loop.
	autoApproveSafe bool
}

// NewServer builds the MCP surface over the registry. Only tools that
// pass the auto-approval table are callable; Dangerous tools are
// registered but always answer with a denial, matching the agent
// loop's deny-and-record behavior.
func NewServer(registry *tools.Registry, autoApproveSafe bool) *Server {
	s := &Server{
		registry:        registry,
		log:             slog.Default(),
		autoApproveSafe: autoApproveSafe,
	}

	s.mcp = sdk.NewServer(
		&sdk.Implementation{
			Name:    "localagent",
			Title:   "LocalAgent",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// registerTools mirrors the registry snapshot into SDK tool
// definitions. Execution goes back through Registry.Execute so risk
// classification and redaction apply identically for remote callers.
func (s *Server) registerTools() {
	for _, t := range s.registry.List() {
		tool := t

		raw := tool.Parameters
		if len(raw) == 0 {
			raw = []byte(`{"type":"object","properties":{}}`)
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(raw, &schema); err != nil {
			s.log.Warn("tool schema unparseable, serving an open schema",
				slog.String("tool", tool.Name), slog.Any("error", err))
			schema = jsonschema.Schema{Type: "object"}
		}

		s.mcp.AddTool(
			&sdk.Tool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: &schema,
			},
			func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
				return s.dispatch(ctx, tool, req)
			},
		)
	}
}

func (s *Server) dispatch(ctx context.Context, tool tools.Tool, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var args map[string]any
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	risk := tools.Classify(tool, args)
	if !tools.AutoApprove(risk, s.autoApproveSafe) {
		s.log.Warn("mcp tool call denied",
			slog.String("tool", tool.Name), slog.String("risk", string(risk)))
		return errorResult(fmt.Sprintf("Tool '%s' requires user approval: it is classified %s risk and was not executed.", tool.Name, risk)), nil
	}

	result, err := s.registry.Execute(ctx, tool.Name, args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	result = tools.TruncateToolResult(result)

	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: result}},
	}, nil
}

func errorResult(message string) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: message}},
	}
}

// Run serves MCP over the process's stdio until ctx ends. This is the
// transport editors spawn the binary with.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &sdk.StdioTransport{})
}
