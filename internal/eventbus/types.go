// Package eventbus is the Event Bus (C6): a typed multi-producer/
// multi-consumer broadcast of run/message/tool/state events. Every
// externally visible behavior of the Agent Runtime is mirrored here so
// that UI and remote clients can render progressively, and tests can
// assert on the stream rather than on internal method calls.
package eventbus

import "encoding/json"

// Type is the SCREAMING_SNAKE_CASE event discriminator carried over the
// wire as the "type" field.
type Type string

const (
	RunStarted  Type = "RUN_STARTED"
	RunFinished Type = "RUN_FINISHED"
	RunError    Type = "RUN_ERROR"

	StepStarted  Type = "STEP_STARTED"
	StepFinished Type = "STEP_FINISHED"

	TextMessageStart   Type = "TEXT_MESSAGE_START"
	TextMessageContent Type = "TEXT_MESSAGE_CONTENT"
	TextMessageEnd     Type = "TEXT_MESSAGE_END"

	ToolCallStart  Type = "TOOL_CALL_START"
	ToolCallArgs   Type = "TOOL_CALL_ARGS"
	ToolCallEnd    Type = "TOOL_CALL_END"
	ToolCallResult Type = "TOOL_CALL_RESULT"

	StateSnapshot Type = "STATE_SNAPSHOT"
	StateDelta    Type = "STATE_DELTA"

	ReasoningStart   Type = "REASONING_START"
	ReasoningContent Type = "REASONING_CONTENT"
	ReasoningEnd     Type = "REASONING_END"

	Custom Type = "CUSTOM"

	// Lag is synthesized by the bus itself (never emitted by a
	// producer) and delivered in place of events a slow subscriber
	// missed, so consumers learn they lagged instead of silently
	// desyncing.
	Lag Type = "LAG"
)

// Event is one entry on the bus. Payload fields are a flattened union;
// only the fields relevant to Type are populated, matching the
// "flattened payload" wire shape
type Event struct {
	Type      Type   `json:"type"`
	RunID     string `json:"runId"`
	ThreadID  string `json:"threadId,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix millis

	// Step events.
	StepName  string `json:"stepName,omitempty"`
	StepIndex int    `json:"stepIndex,omitempty"`

	// Text / reasoning message events.
	MessageID string `json:"messageId,omitempty"`
	Delta     string `json:"delta,omitempty"`

	// Tool call events.
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	ToolArgsJSON json.RawMessage `json:"toolArgs,omitempty"`
	ToolResult   string          `json:"toolResult,omitempty"`
	ToolIsError  bool            `json:"toolIsError,omitempty"`

	// State events.
	StateJSON json.RawMessage `json:"state,omitempty"`

	// Run-error / custom events.
	Error string `json:"error,omitempty"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`

	// LagCount is populated only on a synthetic Lag event: the number
	// of events this subscriber missed.
	LagCount int `json:"lagCount,omitempty"`
}
