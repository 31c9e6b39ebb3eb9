// Package model is the on-device language-model backend behind the
// Agent Runtime. It resolves a model id against a fixed registry,
// ensures the weights are cached, and drives chat-template application,
// grammar-constrained sampling, and tool-call parsing as one Generate
// call. Two backends exist: an in-process native binding, and a managed
// Ollama HTTP fallback for machines without the shared library.
package model

import (
	"context"
	"encoding/json"
)

// Role mirrors store.MessageRole without importing the store package,
// keeping this package usable without a Document Store dependency.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one model-issued tool invocation, already normalized so
// Arguments is always an object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ChatMessage is one turn in the working conversation fed to the
// template application step.
type ChatMessage struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	ToolName  string // set on RoleTool messages: the tool the result came from
}

// ToolSpec is the JSON-schema-shaped tool description the chat
// template consumes, produced by tools.Registry.ToolsJSON.
type ToolSpec = json.RawMessage

// TemplateResult is what chat-template application returns: a prompt
// plus an optional grammar and its trigger conditions.
type TemplateResult struct {
	Prompt               string
	Grammar              string
	GrammarIsLazy        bool
	GrammarTriggerWords  []string
	GrammarTriggerTokens []int32
	AdditionalStops      []string
	ParseToolCalls       bool
}

// GenerateRequest bundles everything the decode loop needs.
type GenerateRequest struct {
	ModelID     string
	Messages    []ChatMessage
	Tools       ToolSpec // nil when no tools are registered
	Temperature float64
	TopP        float64
	MaxTokens   int
	ContextSize int
	Seed        int64

	// OnTextDelta, when non-nil, is invoked with each incremental chunk
	// of assistant text content as it streams, before the final parse
	// step runs. Used by the agent loop's TEXT_MESSAGE_CONTENT events.
	OnTextDelta func(delta string)
}

// GenerateResult is the parsed output of one decode.
type GenerateResult struct {
	Content   string
	ToolCalls []ToolCall
	// GrammarFellBack is true when a grammar was requested but failed
	// to build, so generation proceeded unconstrained.
	GrammarFellBack bool
}

// Status is the backend's deferred-load state machine:
// unloaded -> loading -> {ready | errored | none}.
type Status string

const (
	StatusUnloaded Status = "unloaded"
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusErrored  Status = "errored"
	StatusNone     Status = "none"
)

// Backend is the process-wide singleton handle to the loaded
// language-model.
type Backend interface {
	// EnsureLoaded triggers a background load of modelID if not
	// already loading or ready; concurrent callers collapse onto the
	// same load.
	EnsureLoaded(modelID string)

	// Status returns the current load state for UI display.
	Status() Status

	// IsLoading reports whether a load is currently in flight.
	IsLoading() bool

	// Generate runs one ReAct-loop inference step. It blocks until a
	// complete response (or error) is available; the agent loop calls it
	// on the goroutine of the run that issues it.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}
