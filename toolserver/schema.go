package toolserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/volition-run/volition/chatmodel"
)

// mapSchema implements C3: translate an MCP tool's inputSchema into the
// uniform chatmodel.ToolDefinition parameters. Grounded on an existing
// mcp/tool_converter.go, rewritten against chatmodel.Parameter instead of
// a vendor-specific tool type.
//
// Nested objects and arrays-of-objects collapse to generic object/array
// with their description only — a deliberate simplification this mapping
// calls for in §4.3.
func mapSchema(tool mcp.Tool) (chatmodel.ToolDefinition, error) {
	schema := tool.InputSchema

	if schema.Type != "" && schema.Type != "object" {
		return chatmodel.ToolDefinition{}, fmt.Errorf("tool %q: %w (got %q)", tool.Name, ErrSchemaRejected, schema.Type)
	}

	properties := make(map[string]chatmodel.Parameter, len(schema.Properties))
	seen := make(map[string]bool, len(schema.Properties))

	for name, raw := range schema.Properties {
		if seen[name] {
			return chatmodel.ToolDefinition{}, fmt.Errorf("tool %q property %q: %w", tool.Name, name, ErrDuplicateProperty)
		}
		seen[name] = true

		properties[name] = mapProperty(raw)
	}

	return chatmodel.ToolDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  properties,
		Required:    append([]string{}, schema.Required...),
	}, nil
}

// mapProperty converts one JSON-Schema property description (as decoded
// into map[string]any by the mcp-go client) into a chatmodel.Parameter.
// Nested object/array schemas collapse to their bare type token plus the
// original description; the model sees the JSON shape, not the nested
// schema.
func mapProperty(raw any) chatmodel.Parameter {
	m, ok := raw.(map[string]any)
	if !ok {
		return chatmodel.Parameter{Type: chatmodel.ParameterTypeString}
	}

	param := chatmodel.Parameter{Type: mapParameterType(m["type"])}

	if desc, ok := m["description"].(string); ok {
		param.Description = desc
	}

	if enumVal, ok := m["enum"].([]any); ok {
		for _, v := range enumVal {
			if s, ok := v.(string); ok {
				param.Enum = append(param.Enum, s)
			}
		}
	}

	return param
}

func mapParameterType(raw any) chatmodel.ParameterType {
	token, _ := raw.(string)
	switch token {
	case "string":
		return chatmodel.ParameterTypeString
	case "integer":
		return chatmodel.ParameterTypeInteger
	case "number":
		return chatmodel.ParameterTypeNumber
	case "boolean":
		return chatmodel.ParameterTypeBoolean
	case "array":
		return chatmodel.ParameterTypeArray
	case "object":
		return chatmodel.ParameterTypeObject
	default:
		return chatmodel.ParameterTypeString
	}
}
