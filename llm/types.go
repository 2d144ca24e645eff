package llm

import (
	"context"
	"encoding/json"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message represents a single message in a conversation.
// This is provider-neutral: adapters convert it to whatever shape their
// wire format requires.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool-role messages.
	Name string `json:"name,omitempty"`
}

// ToolCall represents a single tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the name and raw JSON arguments of a tool call.
// Arguments stays a string until a stage actually needs it parsed; see
// tools.ParseArguments for the lenient decode path.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool in the shape providers expect.
type ToolDefinition struct {
	Type     string             `json:"type"` // always "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the schema half of a tool definition.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice forces the provider toward a specific tool on the next turn.
type ToolChoice struct {
	Type     string `json:"type"` // "function"
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// ForceTool builds a ToolChoice requiring the named tool.
func ForceTool(name string) *ToolChoice {
	tc := &ToolChoice{Type: "function"}
	tc.Function.Name = name
	return tc
}

// ProviderName identifies a provider implementation.
type ProviderName string

// ModelRef identifies a provider/model pair. It is constructed once during
// model selection and carried through the pipeline so later stages never
// re-parse a combined string.
type ModelRef struct {
	Provider ProviderName
	ModelID  string
}

func (r ModelRef) String() string {
	return string(r.Provider) + ":" + r.ModelID
}

// CompletionOptions carries per-request settings into a provider call.
type CompletionOptions struct {
	Model        string
	ModelRef     ModelRef
	MaxTokens    int64
	Temperature  *float64
	Stream       bool
	EnableTools  bool
	Tools        []ToolDefinition
	ToolChoice   *ToolChoice
	SystemPrompt string

	// ToolExecutionStatus carries per-call outcome summaries into follow-up
	// requests for providers that want them (Ollama).
	ToolExecutionStatus []ToolStatus
}

// ToolStatus is a compact outcome summary for a single executed tool call.
type ToolStatus struct {
	CallID   string `json:"toolCallId"`
	Name     string `json:"name"`
	Success  bool   `json:"success"`
	Duration int64  `json:"durationMs"`
	Error    string `json:"error,omitempty"`
}

// StreamChunk is a single increment of a streaming response. Text is always
// a suffix delta, never cumulative.
type StreamChunk struct {
	Text string
	Done bool
	Raw  *ChunkMeta
}

// ChunkMeta carries provider identification and structured side-channel
// data alongside a chunk.
type ChunkMeta struct {
	Provider      ProviderName
	Model         string
	Thinking      string
	ToolExecution *ToolExecutionEvent
}

// ToolExecutionEventType classifies a mid-stream tool lifecycle event.
type ToolExecutionEventType string

const (
	ToolEventStart    ToolExecutionEventType = "start"
	ToolEventUpdate   ToolExecutionEventType = "update"
	ToolEventComplete ToolExecutionEventType = "complete"
	ToolEventError    ToolExecutionEventType = "error"
)

// ToolExecutionEvent is the structured envelope emitted to stream consumers
// while a tool call runs.
type ToolExecutionEvent struct {
	Type      ToolExecutionEventType `json:"type"`
	CallID    string                 `json:"toolCallId"`
	ToolName  string                 `json:"tool"`
	Arguments map[string]any         `json:"args,omitempty"`
	Result    string                 `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// StreamFunc delivers chunks to a callback until the stream ends or the
// context is cancelled. It may be invoked at most once per Response.
type StreamFunc func(ctx context.Context, fn func(StreamChunk) error) error

// Response is the normalized result of a provider completion. For a
// streaming call Stream is non-nil and Text/ToolCalls are populated only
// after the stream has been drained.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Provider  ProviderName
	Model     string
	Stream    StreamFunc
}

// HasToolCalls reports whether the assistant requested any tool work.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// HasToolCalls reports whether the message carries tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// NewTextMessage creates a plain text message with the given role.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{Role: role, Content: text}
}

// NewToolCallMessage creates an assistant message carrying tool calls.
func NewToolCallMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// NewToolResultMessage creates a tool-role message answering one call.
func NewToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// ToJSON marshals a message for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
