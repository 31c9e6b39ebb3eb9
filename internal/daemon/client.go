package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/localagent/internal/eventbus"
)

// DialTimeout bounds the initial socket connect.
const DialTimeout = 2 * time.Second

// Client is the CLI's connection factory to a running daemon. Each
// request opens a fresh connection; Subscribe holds one open.
type Client struct {
	socketPath string
	seq        atomic.Uint64
}

// NewClient builds a client against the daemon socket.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// IsRunning reports whether something answers a ping on the socket.
func (c *Client) IsRunning(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// Ping round-trips the trivial request.
func (c *Client) Ping(ctx context.Context) error {
	var result PingResult
	if err := c.call(ctx, MethodPing, nil, &result); err != nil {
		return err
	}
	if !result.Pong {
		return fmt.Errorf("daemon replied without pong")
	}
	return nil
}

// Status fetches the daemon's status summary.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var result StatusResult
	err := c.call(ctx, MethodStatus, nil, &result)
	return result, err
}

// Index asks the daemon to ingest a path.
func (c *Client) Index(ctx context.Context, params IndexParams) (IndexResult, error) {
	var result IndexResult
	err := c.call(ctx, MethodIndex, params, &result)
	return result, err
}

// Search runs a hybrid query through the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	var results []SearchResult
	err := c.call(ctx, MethodSearch, params, &results)
	return results, err
}

// Ask runs one agent turn through the daemon and returns the final
// answer. Progress streams on the event subscription, not here.
func (c *Client) Ask(ctx context.Context, params AskParams) (AskResult, error) {
	var result AskResult
	err := c.call(ctx, MethodAsk, params, &result)
	return result, err
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	var result map[string]bool
	return c.call(ctx, MethodShutdown, nil, &result)
}

// Subscribe opens a dedicated connection in event-stream mode and
// forwards decoded events to handler until ctx ends or the daemon
// closes the stream.
func (c *Client) Subscribe(ctx context.Context, handler func(eventbus.Event)) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := Request{JSONRPC: "2.0", Method: MethodSubscribe, ID: c.nextID()}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	// First line is the acknowledgment response.
	if !scanner.Scan() {
		return fmt.Errorf("subscription closed before acknowledgment")
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for scanner.Scan() {
		var event eventbus.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		handler(event)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID()}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	var resp Response
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read %s response: %w", method, err)
		}
		return fmt.Errorf("daemon closed the connection")
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	if result == nil {
		return nil
	}

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", c.socketPath, err)
	}
	return conn, nil
}

func (c *Client) nextID() string {
	return strconv.FormatUint(c.seq.Add(1), 10)
}
