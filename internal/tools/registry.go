package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
)

// entry pairs a Tool's metadata with its execution handler.
type entry struct {
	tool    Tool
	handler Handler
}

// Registry merges the fixed built-in tool list with tools discovered
// from connected MCP servers at run start. Lookup is by
// exact name; duplicate names across sources resolve in registration
// order — the first registration wins and later ones are rejected and
// logged.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool and its handler. A duplicate name is rejected
// (not overwritten) and logged; names resolve in registration order.
func (r *Registry) Register(tool Tool, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		slog.Warn("duplicate tool registration rejected",
			slog.String("name", tool.Name),
			slog.String("source", string(tool.Source)),
		)
		return fmt.Errorf("tool %q already registered", tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	r.order = append(r.order, tool.Name)
	return nil
}

// Get looks up a tool and its handler by exact name.
func (r *Registry) Get(name string) (Tool, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Tool{}, nil, false
	}
	return e.tool, e.handler, true
}

// List returns a snapshot of every registered tool in registration
// order. The returned slice is a copy; mutating it does not affect the
// registry.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// toolSchema is the JSON-schema-ish shape a chat template expects for
// each tool.
type toolSchema struct {
	Type     string          `json:"type"`
	Function functionSchema  `json:"function"`
}

type functionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolsJSON serializes the registry snapshot into the JSON array a
// model's chat template consumes. Returns (nil, nil) when the tool set
// is empty — serialization is skipped.
func (r *Registry) ToolsJSON() ([]byte, error) {
	tools := r.List()
	if len(tools) == 0 {
		return nil, nil
	}

	// Sorted for deterministic prompt construction across runs.
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	schemas := make([]toolSchema, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		schemas = append(schemas, toolSchema{
			Type: "function",
			Function: functionSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	b, err := json.Marshal(schemas)
	if err != nil {
		return nil, agenterrors.New(agenterrors.ErrCodeInternal, "failed to marshal tool schemas", err)
	}
	return b, nil
}

// Execute looks up and runs a tool by name. Returns agenterrors-wrapped
// ErrCodeToolNotFound if no tool with that name is registered.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	_, handler, ok := r.Get(name)
	if !ok {
		return "", agenterrors.New(agenterrors.ErrCodeToolNotFound, fmt.Sprintf("unknown tool %q", name), nil)
	}
	return handler(ctx, args)
}
