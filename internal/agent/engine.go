package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
	"github.com/Aman-CERP/localagent/internal/eventbus"
	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/store"
	"github.com/Aman-CERP/localagent/internal/tools"
)

// streamChunkRunes is how much final text goes into each
// TEXT_MESSAGE_CONTENT event; chunks are paced so consumers can render
// progressively.
const (
	streamChunkRunes = 48
	streamPaceDelay  = 15 * time.Millisecond
)

// Engine ties the tool registry, model backend, event bus, and document
// store together into the reason-and-act loop: the model thinks, calls
// tools, sees their results, and eventually answers. Every observable
// step is also published on the bus so consumers can render it and
// tests can assert on the stream.
type Engine struct {
	Backend  model.Backend
	Registry *tools.Registry
	Metadata store.MetadataStore

	SkillsDirectory string

	// convLocks serializes concurrent runs against the same
	// conversation id so persisted messages never interleave.
	convLocks sync.Map // int64 -> *sync.Mutex
}

// NewEngine constructs an Engine. metadata may be nil for callers that
// do not need index-state context or conversation persistence.
func NewEngine(backend model.Backend, registry *tools.Registry, metadata store.MetadataStore) *Engine {
	return &Engine{Backend: backend, Registry: registry, Metadata: metadata}
}

// Run executes one agent run to completion, publishing lifecycle,
// message, and tool events on bus as it goes. bus may have zero
// subscribers, in which case publication is a no-op.
func (e *Engine) Run(ctx context.Context, messages []Message, opts Options, bus *eventbus.Bus) (RunResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	if opts.ConversationID != 0 {
		mu := e.conversationLock(opts.ConversationID)
		mu.Lock()
		defer mu.Unlock()
	}

	bus.Publish(eventbus.Event{Type: eventbus.RunStarted, RunID: runID})

	// Snapshot the tool registry now: discovery never races execution.
	toolsJSON, err := e.Registry.ToolsJSON()
	if err != nil {
		e.publishRunError(bus, runID, err)
		return RunResult{}, err
	}

	skills, err := LoadSkills(e.SkillsDirectory)
	if err != nil {
		slog.Warn("failed to load skills", slog.Any("error", err))
	}
	systemPrompt := BuildSystemPrompt(ctx, e.Metadata, skills, LastUserMessage(messages))

	working := make([]model.ChatMessage, 0, len(messages)+1)
	working = append(working, model.ChatMessage{Role: model.RoleSystem, Content: systemPrompt})
	for _, m := range messages {
		working = append(working, model.ChatMessage{Role: m.Role, Content: m.Content})
	}

	var (
		executed     []ExecutedToolCall
		finalContent string
		iterations   int
		hitMax       = true
	)

	for i := 0; i < maxIterations; i++ {
		if ctx.Err() != nil {
			err := agenterrors.New(agenterrors.ErrCodeInternal, "run cancelled", ctx.Err())
			e.publishRunError(bus, runID, err)
			return RunResult{}, err
		}

		iterations = i + 1
		stepName := "reasoning"
		if i == 0 {
			stepName = "thinking"
		}
		bus.Publish(eventbus.Event{Type: eventbus.StepStarted, RunID: runID, StepName: stepName, StepIndex: i})

		result, err := e.Backend.Generate(ctx, model.GenerateRequest{
			ModelID:     opts.ModelID,
			Messages:    working,
			Tools:       toolsJSON,
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			MaxTokens:   opts.MaxTokens,
			ContextSize: opts.ContextSize,
			Seed:        opts.Seed,
		})
		if err != nil {
			e.publishRunError(bus, runID, err)
			return RunResult{}, err
		}

		if len(result.ToolCalls) == 0 {
			// No tool calls: this is the final response.
			finalContent = result.Content
			e.streamText(bus, runID, finalContent)
			bus.Publish(eventbus.Event{Type: eventbus.StepFinished, RunID: runID, StepName: stepName, StepIndex: i})
			hitMax = false
			break
		}

		working = append(working, model.ChatMessage{
			Role:      model.RoleAssistant,
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})
		e.streamText(bus, runID, result.Content)

		for _, tc := range result.ToolCalls {
			call := e.executeToolCall(ctx, runID, tc, opts.AutoApproveSafe, bus)
			executed = append(executed, call)
			working = append(working, model.ChatMessage{
				Role:     model.RoleTool,
				Content:  call.Result,
				ToolName: call.Name,
			})
		}

		// The model must see the tool results, so the loop continues.
		bus.Publish(eventbus.Event{Type: eventbus.StepFinished, RunID: runID, StepName: stepName, StepIndex: i})
	}

	if hitMax {
		bus.Publish(eventbus.Event{Type: eventbus.Custom, RunID: runID, Name: "max_iterations_reached", Value: maxIterations})
	}

	if opts.ConversationID != 0 && e.Metadata != nil {
		e.persist(ctx, opts.ConversationID, messages, finalContent, executed, opts.ModelID)
	}

	duration := time.Since(start)
	bus.Publish(eventbus.Event{
		Type:  eventbus.Custom,
		RunID: runID,
		Name:  "generation_stats",
		Value: map[string]any{
			"iterations":      iterations,
			"tool_call_count": len(executed),
			"duration_ms":     duration.Milliseconds(),
			"model_id":        opts.ModelID,
		},
	})

	bus.Publish(eventbus.Event{Type: eventbus.RunFinished, RunID: runID})

	return RunResult{
		Content:           finalContent,
		Iterations:        iterations,
		ToolCallsExecuted: executed,
		Duration:          duration,
		ModelID:           opts.ModelID,
	}, nil
}

func (e *Engine) conversationLock(id int64) *sync.Mutex {
	mu, _ := e.convLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// streamText publishes one start/content*/end triple for content, paced
// so consumers can render progressively. Empty content emits nothing.
func (e *Engine) streamText(bus *eventbus.Bus, runID, content string) {
	if content == "" {
		return
	}
	msgID := uuid.NewString()
	bus.Publish(eventbus.Event{Type: eventbus.TextMessageStart, RunID: runID, MessageID: msgID})

	runes := []rune(content)
	for start := 0; start < len(runes); start += streamChunkRunes {
		end := start + streamChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		bus.Publish(eventbus.Event{Type: eventbus.TextMessageContent, RunID: runID, MessageID: msgID, Delta: string(runes[start:end])})
		if end < len(runes) {
			time.Sleep(streamPaceDelay)
		}
	}

	bus.Publish(eventbus.Event{Type: eventbus.TextMessageEnd, RunID: runID, MessageID: msgID})
}

// executeToolCall classifies, approves-or-denies, and runs a single
// tool call, publishing its start/args/end/result events and returning
// the record appended to the run result.
func (e *Engine) executeToolCall(ctx context.Context, runID string, tc model.ToolCall, autoApproveSafe bool, bus *eventbus.Bus) ExecutedToolCall {
	argsJSON, _ := json.Marshal(tc.Arguments)

	bus.Publish(eventbus.Event{Type: eventbus.ToolCallStart, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name})
	bus.Publish(eventbus.Event{Type: eventbus.ToolCallArgs, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgsJSON: argsJSON})

	record := ExecutedToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}

	tool, _, ok := e.Registry.Get(tc.Name)
	if !ok {
		err := agenterrors.New(agenterrors.ErrCodeToolNotFound, fmt.Sprintf("unknown tool %q", tc.Name), nil)
		record.Result = "Error: " + err.Error()
		bus.Publish(eventbus.Event{Type: eventbus.ToolCallEnd, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name})
		bus.Publish(eventbus.Event{Type: eventbus.ToolCallResult, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: record.Result, ToolIsError: true})
		return record
	}

	risk := tools.Classify(tool, tc.Arguments)
	if !tools.AutoApprove(risk, autoApproveSafe) {
		record.Denied = true
		record.Result = fmt.Sprintf("Tool '%s' requires user approval: it is classified %s risk and was not executed.", tc.Name, risk)
		bus.Publish(eventbus.Event{Type: eventbus.Custom, RunID: runID, Name: "tool_approval_required", Value: map[string]any{
			"tool_call_id": tc.ID,
			"tool_name":    tc.Name,
			"risk":         string(risk),
		}})
		bus.Publish(eventbus.Event{Type: eventbus.ToolCallEnd, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name})
		bus.Publish(eventbus.Event{Type: eventbus.ToolCallResult, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: record.Result})
		return record
	}

	result, err := e.Registry.Execute(ctx, tc.Name, tc.Arguments)
	isError := err != nil
	if isError {
		// Tool errors flow back into the conversation, never up the
		// stack — the model can retry with corrected arguments.
		result = "Error: " + err.Error()
	}
	result = tools.TruncateToolResult(result)
	record.Result = result

	bus.Publish(eventbus.Event{Type: eventbus.ToolCallEnd, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name})
	bus.Publish(eventbus.Event{Type: eventbus.ToolCallResult, RunID: runID, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: result, ToolIsError: isError})

	return record
}

func (e *Engine) publishRunError(bus *eventbus.Bus, runID string, err error) {
	bus.Publish(eventbus.Event{Type: eventbus.RunError, RunID: runID, Error: err.Error()})
}

// persist appends the last user message and the assistant's final turn
// to conversation memory.
func (e *Engine) persist(ctx context.Context, conversationID int64, messages []Message, finalContent string, executed []ExecutedToolCall, modelID string) {
	if lastUser := LastUserMessage(messages); lastUser != "" {
		_, err := e.Metadata.AppendMessage(ctx, store.Message{
			ConversationID: conversationID,
			Role:           store.RoleUser,
			Content:        lastUser,
			Timestamp:      time.Now(),
		})
		if err != nil {
			slog.Warn("failed to persist user message", slog.Any("error", err))
		}
	}

	toolCallsJSON := ""
	if len(executed) > 0 {
		if b, err := json.Marshal(executed); err == nil {
			toolCallsJSON = string(b)
		}
	}
	_, err := e.Metadata.AppendMessage(ctx, store.Message{
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        finalContent,
		Timestamp:      time.Now(),
		ToolCallsJSON:  toolCallsJSON,
		ModelID:        modelID,
	})
	if err != nil {
		slog.Warn("failed to persist assistant message", slog.Any("error", err))
	}
}

// AvailableTools exposes the tool-registry snapshot, used by the
// catalog and by the MCP-server surface presenting the agent itself as
// a tool provider.
func (e *Engine) AvailableTools() []tools.Tool {
	return e.Registry.List()
}
