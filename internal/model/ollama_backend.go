package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
	"github.com/Aman-CERP/localagent/internal/lifecycle"
)

// DefaultHost is the managed Ollama endpoint used when no in-process
// backend is available.
const DefaultHost = lifecycle.DefaultHost

// OllamaBackend is the HTTP fallback Backend: chat-template application
// and sampling are delegated to a locally-running Ollama whose process
// lifecycle this codebase already manages. Contexts are not pooled —
// each Generate is an independent request against the loaded model.
type OllamaBackend struct {
	host   string
	client *http.Client
	lc     *lifecycle.OllamaManager

	mu        sync.Mutex
	status    Status
	loading   bool
	loadedID  string
	loadedTag string
}

var _ Backend = (*OllamaBackend)(nil)

// NewOllamaBackend constructs the fallback backend against host
// (DefaultHost when empty).
func NewOllamaBackend(host string) *OllamaBackend {
	if host == "" {
		host = DefaultHost
	}
	return &OllamaBackend{
		host:   host,
		client: &http.Client{},
		lc:     lifecycle.NewOllamaManagerWithHost(host),
		status: StatusUnloaded,
	}
}

// EnsureLoaded triggers a background load, collapsing concurrent calls
// onto a single in-flight load. Registry ids are translated to the
// runtime's own model tags before pulling.
func (b *OllamaBackend) EnsureLoaded(modelID string) {
	b.mu.Lock()
	if b.loading || (b.status == StatusReady && b.loadedID == modelID) {
		b.mu.Unlock()
		return
	}
	b.loading = true
	b.status = StatusLoading
	b.mu.Unlock()

	tag := modelID
	if entry, ok := ResolveModelID(modelID); ok && entry.OllamaTag != "" {
		tag = entry.OllamaTag
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lifecycle.PullTimeout)
		defer cancel()

		err := b.lc.EnsureReady(ctx, tag, lifecycle.DefaultEnsureOpts())

		b.mu.Lock()
		b.loading = false
		if err != nil {
			slog.Warn("model load failed", slog.String("model", modelID), slog.String("tag", tag), slog.Any("error", err))
			b.status = StatusErrored
		} else {
			b.status = StatusReady
			b.loadedID = modelID
			b.loadedTag = tag
		}
		b.mu.Unlock()
	}()
}

func (b *OllamaBackend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *OllamaBackend) IsLoading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// chatMessage / chatRequest / chatResponse mirror Ollama's /api/chat
// wire shape.
type chatMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls []chatToolCall  `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	Function chatToolCallFn `json:"function"`
}

type chatToolCallFn struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Tools    json.RawMessage `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  chatOptions     `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        int64   `json:"seed,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatStreamChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Generate applies the chat template (delegated to Ollama's own
// template engine) and runs the decode loop, streaming content deltas
// through req.OnTextDelta as they arrive.
func (b *OllamaBackend) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	b.mu.Lock()
	status := b.status
	tag := b.loadedTag
	b.mu.Unlock()
	if status != StatusReady {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeModelNotFound, fmt.Sprintf("model %q is not loaded (status=%s)", req.ModelID, status), nil)
	}
	if tag == "" {
		tag = req.ModelID
	}

	body := chatRequest{
		Model:  tag,
		Tools:  req.Tools,
		Stream: true,
		Options: chatOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Seed:        req.Seed,
			NumPredict:  req.MaxTokens,
			NumCtx:      req.ContextSize,
		},
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, toChatMessage(m))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeInternal, "failed to marshal chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeInternal, "failed to build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeDecodeFailed, "chat request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeDecodeFailed, fmt.Sprintf("chat endpoint returned %d", resp.StatusCode), nil)
	}

	return b.streamResponse(ctx, resp, req)
}

func (b *OllamaBackend) streamResponse(ctx context.Context, resp *http.Response, req GenerateRequest) (GenerateResult, error) {
	var content strings.Builder
	var toolCalls []chatToolCall
	decoder := &UTF8StreamDecoder{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeDecodeFailed, "generation cancelled", ctx.Err())
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}

		if delta := decoder.Push([]byte(chunk.Message.Content)); delta != "" {
			content.WriteString(delta)
			if req.OnTextDelta != nil {
				req.OnTextDelta(delta)
				time.Sleep(15 * time.Millisecond) // pacing
			}
		}
		if len(chunk.Message.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.Message.ToolCalls...)
		}
		if chunk.Done {
			break
		}
	}
	if rest := decoder.Flush(); rest != "" {
		content.WriteString(rest)
		if req.OnTextDelta != nil {
			req.OnTextDelta(rest)
		}
	}
	if err := scanner.Err(); err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeDecodeFailed, "failed reading chat stream", err)
	}

	normalized, err := normalizeToolCalls(toolCalls)
	if err != nil {
		return GenerateResult{}, err
	}

	return GenerateResult{
		Content:   content.String(),
		ToolCalls: normalized,
	}, nil
}

func toChatMessage(m ChatMessage) chatMessage {
	return chatMessage{Role: string(m.Role), Content: m.Content}
}

// normalizeToolCalls converts the wire-level calls, unwrapping
// arguments that arrive as a JSON-encoded string of an object so
// downstream code only ever sees objects.
func normalizeToolCalls(raw []chatToolCall) ([]ToolCall, error) {
	out := make([]ToolCall, 0, len(raw))
	for i, tc := range raw {
		args, err := normalizeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, agenterrors.New(agenterrors.ErrCodeTokenization, fmt.Sprintf("tool call %d has unparseable arguments", i), err)
		}
		out = append(out, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
