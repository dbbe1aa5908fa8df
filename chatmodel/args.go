package chatmodel

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DecodeToolArguments parses a ToolCall's JSON-encoded argument object,
// as required by vendor SDKs (Ollama, Gemini) and by toolserver, which
// all want a map rather than the raw string ChatMessage carries.
func DecodeToolArguments(argsJSON string) (map[string]any, error) {
	if argsJSON == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// EncodeToolArguments renders a vendor-native argument map back to the
// JSON-encoded string form ChatMessage.ToolCalls requires.
func EncodeToolArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// synthesizeToolCallID produces a call id for vendors (Ollama, Gemini)
// whose wire format omits one.
func synthesizeToolCallID() string {
	return "call_" + uuid.NewString()
}
