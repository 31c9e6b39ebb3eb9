// Package mcpclient manages connections to remote tool servers speaking
// the Model Context Protocol: child processes over stdio, or HTTP
// streaming endpoints. Discovered tools are merged into the agent's
// tool registry at run start under the "mcp:<server>" source.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/localagent/internal/tools"
)

// ServerConfig describes one remote tool server. Exactly one of
// Command or URL must be set.
type ServerConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command,omitempty"` // child process, stdio transport
	Args    []string `json:"args,omitempty"`
	URL     string   `json:"url,omitempty"` // HTTP streaming transport
}

// connection is one live server session.
type connection struct {
	config  ServerConfig
	session *mcp.ClientSession
}

// Manager tracks the set of connected servers.
type Manager struct {
	impl *mcp.Implementation
	log  *slog.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

// NewManager constructs an empty manager.
func NewManager() *Manager {
	return &Manager{
		impl:  &mcp.Implementation{Name: "localagent", Version: "1.0"},
		log:   slog.Default(),
		conns: make(map[string]*connection),
	}
}

// Connect establishes a session to the configured server. Connecting a
// name that is already connected is an error; disconnect first.
func (m *Manager) Connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("server config needs a name")
	}
	if (cfg.Command == "") == (cfg.URL == "") {
		return fmt.Errorf("server %q must set exactly one of command or url", cfg.Name)
	}

	m.mu.Lock()
	if _, exists := m.conns[cfg.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("server %q is already connected", cfg.Name)
	}
	m.mu.Unlock()

	var transport mcp.Transport
	if cfg.Command != "" {
		transport = &mcp.CommandTransport{Command: exec.Command(cfg.Command, cfg.Args...)}
	} else {
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	}

	client := mcp.NewClient(m.impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to server %q: %w", cfg.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conns[cfg.Name]; exists {
		_ = session.Close()
		return fmt.Errorf("server %q is already connected", cfg.Name)
	}
	m.conns[cfg.Name] = &connection{config: cfg, session: session}
	m.log.Info("tool server connected", slog.String("server", cfg.Name))
	return nil
}

// Disconnect closes one server's session.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	if ok {
		delete(m.conns, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("server %q is not connected", name)
	}
	return conn.session.Close()
}

// ListServers returns the connected server names, sorted.
func (m *Manager) ListServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTools fetches one server's tool descriptions.
func (m *Manager) ListTools(ctx context.Context, server string) ([]tools.Tool, error) {
	conn, err := m.connection(server)
	if err != nil {
		return nil, err
	}

	result, err := conn.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools on %q: %w", server, err)
	}

	out := make([]tools.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		params, err := json.Marshal(t.InputSchema)
		if err != nil {
			params = []byte(`{"type":"object"}`)
		}
		out = append(out, tools.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
			Source:      tools.MCPSource(server),
		})
	}
	return out, nil
}

// CallTool invokes a tool on a server and flattens its content blocks
// into the string result the agent loop consumes.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	conn, err := m.connection(server)
	if err != nil {
		return "", err
	}

	result, err := conn.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s on %q: %w", tool, server, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", tool, text)
	}
	return text, nil
}

// RegisterAll snapshots every connected server's tools into the
// registry. Duplicate names resolve in registration order — the
// registry keeps the first and logs the rejection — so built-ins
// registered earlier always win.
func (m *Manager) RegisterAll(ctx context.Context, registry *tools.Registry) {
	for _, server := range m.ListServers() {
		discovered, err := m.ListTools(ctx, server)
		if err != nil {
			m.log.Warn("tool discovery failed", slog.String("server", server), slog.Any("error", err))
			continue
		}
		for _, t := range discovered {
			tool := t
			server := server
			handler := func(ctx context.Context, args map[string]any) (string, error) {
				return m.CallTool(ctx, server, tool.Name, args)
			}
			if err := registry.Register(tool, handler); err != nil {
				continue // duplicate: first registration wins
			}
		}
	}
}

// Close disconnects every server.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*connection)
	m.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) connection(name string) (*connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[name]
	if !ok {
		return nil, fmt.Errorf("server %q is not connected", name)
	}
	return conn, nil
}

func flattenContent(blocks []mcp.Content) string {
	var b strings.Builder
	for _, block := range blocks {
		if tc, ok := block.(*mcp.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
