// Package agent is the Agent Runtime: the reason-and-act loop that
// turns a chat history and a tool registry into an assistant reply,
// streaming every observable step through the Event Bus.
package agent

import (
	"time"

	"github.com/Aman-CERP/localagent/internal/model"
)

// Message is one turn of input history handed to Run. Conversation
// persistence reads and writes store.Message; Message is the runtime's
// own in-memory shape so simple callers need not import internal/store.
type Message struct {
	Role    model.Role
	Content string
}

// ExecutedToolCall records one tool invocation for the run result and
// for conversation persistence.
type ExecutedToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Result    string
	Denied    bool
}

// RunResult is what Run returns once a run reaches a terminal state.
type RunResult struct {
	Content           string
	Iterations        int
	ToolCallsExecuted []ExecutedToolCall
	Duration          time.Duration
	ModelID           string
}

// DefaultMaxIterations caps the loop when Options does not.
const DefaultMaxIterations = 10

// Options configures one Run call. Zero values select the defaults.
type Options struct {
	// RunID identifies this run in every emitted event; one is
	// generated when empty.
	RunID string

	ModelID         string
	MaxIterations   int
	MaxTokens       int
	ContextSize     int
	Temperature     float64
	TopP            float64
	Seed            int64
	ConversationID  int64 // 0 means "do not persist"
	AutoApproveSafe bool
}
