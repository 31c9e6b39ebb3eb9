package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/localagent/internal/agent"
	"github.com/Aman-CERP/localagent/internal/embed"
	"github.com/Aman-CERP/localagent/internal/eventbus"
	"github.com/Aman-CERP/localagent/internal/ingest"
	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/search"
	"github.com/Aman-CERP/localagent/internal/settings"
	"github.com/Aman-CERP/localagent/internal/store"
)

// flushInterval paces periodic persistence of the vector-index
// snapshot; the SQLite side is durable on its own through WAL.
const flushInterval = 5 * time.Minute

// Components are the live subsystems a Server serves. The daemon owns
// them; connections borrow.
type Components struct {
	Store    *store.Store
	Embedder *embed.Service
	Engine   *search.Engine
	Pipeline *ingest.Pipeline
	Agent    *agent.Engine
	Backend  model.Backend
	Bus      *eventbus.Bus
	Settings settings.Settings
	Watched  []string
}

// Server accepts CLI connections on a unix socket and dispatches
// requests against the live components.
type Server struct {
	socketPath string
	components Components
	log        *slog.Logger
	started    time.Time

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewServer prepares a server; ListenAndServe binds the socket.
func NewServer(socketPath string, c Components) *Server {
	return &Server{
		socketPath: socketPath,
		components: c,
		log:        slog.Default(),
		started:    time.Now(),
	}
}

// ListenAndServe binds the unix socket and serves until ctx is
// cancelled. A stale socket file from a dead daemon is removed first.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go s.flushLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	s.log.Info("daemon listening", slog.String("socket", s.socketPath))

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed", slog.Any("error", err))
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

// flushLoop periodically persists the vector-index snapshot.
func (s *Server) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.components.Store.Flush(); err != nil {
				s.log.Warn("vector index flush failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "malformed request"))
			continue
		}

		if req.Method == MethodSubscribe {
			// The connection becomes a one-way event stream and never
			// returns to request/response mode.
			s.streamEvents(ctx, encoder, req)
			return
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

// streamEvents replays the bus onto this connection as JSON lines,
// starting with a success acknowledgment and a state snapshot carrying
// the current tool registry. Lag events surface to the client like any
// other so it can resync with a status call.
func (s *Server) streamEvents(ctx context.Context, encoder *json.Encoder, req Request) {
	sub := s.components.Bus.Subscribe()
	defer sub.Close()

	if err := encoder.Encode(NewSuccessResponse(req.ID, map[string]bool{"subscribed": true})); err != nil {
		return
	}

	if snapshot, err := s.toolsSnapshot(); err == nil {
		if err := encoder.Encode(snapshot); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := encoder.Encode(event); err != nil {
				return
			}
		}
	}
}

// toolsSnapshot builds a STATE_SNAPSHOT event describing the tools the
// agent currently exposes, so a freshly attached client can render the
// catalog without an extra round trip.
func (s *Server) toolsSnapshot() (eventbus.Event, error) {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Source      string `json:"source"`
	}
	available := s.components.Agent.AvailableTools()
	infos := make([]toolInfo, 0, len(available))
	for _, t := range available {
		infos = append(infos, toolInfo{Name: t.Name, Description: t.Description, Source: string(t.Source)})
	}
	state, err := json.Marshal(map[string]any{"tools": infos})
	if err != nil {
		return eventbus.Event{}, err
	}
	return eventbus.Event{
		Type:      eventbus.StateSnapshot,
		Timestamp: time.Now().UnixMilli(),
		StateJSON: state,
	}, nil
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status(ctx))
	case MethodIndex:
		return s.handleIndex(ctx, req)
	case MethodSearch:
		return s.handleSearch(ctx, req)
	case MethodAsk:
		return s.handleAsk(ctx, req)
	case MethodShutdown:
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = s.Close()
		}()
		return NewSuccessResponse(req.ID, map[string]bool{"stopping": true})
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func decodeParams[T any](req Request) (T, error) {
	var out T
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Server) handleIndex(ctx context.Context, req Request) Response {
	params, err := decodeParams[IndexParams](req)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	info, err := os.Stat(params.Path)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	if info.IsDir() {
		result, err := s.components.Pipeline.IngestDirectory(ctx, params.Path)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeIndexFailed, err.Error())
		}
		return NewSuccessResponse(req.ID, IndexResult{Total: result.Total, Indexed: result.Indexed, Failed: result.Failed})
	}

	if err := s.components.Pipeline.IngestFile(ctx, params.Path); err != nil {
		return NewErrorResponse(req.ID, ErrCodeIndexFailed, err.Error())
	}
	return NewSuccessResponse(req.ID, IndexResult{Total: 1, Indexed: 1})
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	params, err := decodeParams[SearchParams](req)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	results, err := s.components.Engine.Search(ctx, params.Query, search.SearchOptions{
		Limit:     params.Limit,
		Extension: params.Extension,
	})
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeSearchFailed, err.Error())
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ChunkID:    r.ChunkID,
			Path:       r.Path,
			Filename:   r.Filename,
			Extension:  r.Extension,
			Snippet:    r.Snippet,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
			Source:     string(r.Source),
		})
	}
	return NewSuccessResponse(req.ID, out)
}

func (s *Server) handleAsk(ctx context.Context, req Request) Response {
	params, err := decodeParams[AskParams](req)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	ag := s.components.Settings.Agent
	result, err := s.components.Agent.Run(ctx,
		[]agent.Message{{Role: model.RoleUser, Content: params.Message}},
		agent.Options{
			RunID:           params.RunID,
			ModelID:         ag.ModelID,
			MaxIterations:   ag.MaxIterations,
			MaxTokens:       ag.MaxTokens,
			ContextSize:     ag.ContextWindow,
			Temperature:     ag.Temperature,
			ConversationID:  params.ConversationID,
			AutoApproveSafe: ag.AutoApproveSafe,
		},
		s.components.Bus,
	)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeRunFailed, err.Error())
	}

	return NewSuccessResponse(req.ID, AskResult{
		RunID:         params.RunID,
		Content:       result.Content,
		Iterations:    result.Iterations,
		ToolCallCount: len(result.ToolCallsExecuted),
		DurationMS:    result.Duration.Milliseconds(),
		ModelID:       result.ModelID,
	})
}

func (s *Server) status(ctx context.Context) StatusResult {
	result := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		EmbeddingState: string(s.components.Embedder.Status()),
		EmbeddingModel: s.components.Embedder.ModelName(),
		ModelState:     string(s.components.Backend.Status()),
		VectorEnabled:  s.components.Store.VectorEnabled(),
		WatchedRoots:   len(s.components.Watched),
	}
	if stats, err := s.components.Store.GetStats(ctx); err == nil {
		result.DocumentCount = stats.DocumentCount
		result.ChunkCount = stats.ChunkCount
		result.EmbeddedChunks = stats.EmbeddedChunkCount
	}
	return result
}

// Close shuts the listener down and removes the socket file. Safe to
// call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	_ = os.Remove(s.socketPath)
	return err
}
