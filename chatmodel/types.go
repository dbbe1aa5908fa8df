// Package chatmodel defines the uniform chat-model abstraction (C1) that the
// agent core drives: one request/response shape regardless of vendor wire
// format, normalized ChatMessage/ToolCall/ToolDefinition types, and the
// per-vendor provider implementations.
package chatmodel

// Role identifies the speaker of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is the core's transcript record. Messages are append-only
// within a session; ordering is strict and preserved across persistence.
type ChatMessage struct {
	Role Role `json:"role"`

	// Content is optional: an assistant message carrying only tool calls
	// has an empty Content.
	Content string `json:"content,omitempty"`

	// ToolCalls is set only on assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool-role message to the call it answers.
	// Set only on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name carries the tool name on tool-role messages, for providers
	// whose wire format identifies a tool result by name rather than by
	// call id (Gemini's functionResponse).
	Name string `json:"name,omitempty"`
}

// ToolCall is produced only by the model: an id, a function name, and a
// JSON-encoded argument object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded object
}

// ParameterType enumerates the JSON-Schema type tokens the core accepts
// for a ToolDefinition's parameter properties.
type ParameterType string

const (
	ParameterTypeString  ParameterType = "string"
	ParameterTypeInteger ParameterType = "integer"
	ParameterTypeNumber  ParameterType = "number"
	ParameterTypeBoolean ParameterType = "boolean"
	ParameterTypeArray   ParameterType = "array"
	ParameterTypeObject  ParameterType = "object"
)

// Parameter describes one property of a ToolDefinition's input schema.
type Parameter struct {
	Type        ParameterType `json:"type"`
	Description string        `json:"description,omitempty"`
	Enum        []string      `json:"enum,omitempty"`
}

// ToolDefinition is the uniform tool-catalog entry sent to the model. The
// core only ever receives these from a tool-server via schema mapping
// (C3); it never hand-authors one per vendor.
type ToolDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters"`
	Required    []string             `json:"required"`
}

// ToolResult is the paired output of a tool call, opaque to the core.
type ToolResult struct {
	CallID  string
	Name    string
	Status  ToolResultStatus
	Payload string
}

type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultFailure ToolResultStatus = "failure"
)

// Usage carries token-usage counts when a provider populates them. Absent
// counts must be treated as unknown, not zero — see spec Open Questions.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ChatRequest is the normalized request every provider variant accepts.
type ChatRequest struct {
	Messages []ChatMessage
	Tools    []ToolDefinition

	// Parameters are vendor-agnostic knobs (temperature, top_p, max
	// tokens, ...) that each provider maps to its vendor-specific keys.
	// Keys a provider does not recognize are dropped without a warning.
	// The orchestrator does not set this field, so a provider's
	// model_config.parameters table from configuration does not reach
	// the providers.
	Parameters map[string]any
}

// ChatResponse is the normalized reply, representable as an assistant
// ChatMessage.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

// AsMessage renders the response as the logical assistant ChatMessage the
// orchestrator appends to session history.
func (r ChatResponse) AsMessage() ChatMessage {
	return ChatMessage{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}
