package chatmodel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAICompatibleProvider speaks the OpenAI-compatible wire format
// described in spec.md §4.1: {model, messages, tools?, parameters...},
// tools wrapped as {type:"function", function:{...}}, authorization via
// "Authorization: Bearer <key>" (omitted when apiKey is empty, for local
// servers emulating the wire format).
//
// Per the design note on vendor divergence, this file contains exactly
// the three operations buildOpenAIMessages/buildOpenAITools (payload),
// client construction (headers), and parseOpenAIChoice (response) — no
// centralized vendor switch.
type OpenAICompatibleProvider struct {
	client http.Client
	api    openai.Client
	model  string
	name   string
}

// NewOpenAICompatible constructs a provider against any OpenAI-compatible
// endpoint (OpenAI itself, or a local server emulating the wire format).
// An empty apiKey omits the Authorization header, matching Ollama-served
// OpenAI-compatible endpoints.
func NewOpenAICompatible(name, baseURL, apiKey, model string) (*OpenAICompatibleProvider, error) {
	if baseURL == "" {
		return nil, &ProviderError{Provider: name, Kind: ProviderErrorConfig, Err: errors.New("endpoint is required")}
	}
	if model == "" {
		return nil, &ProviderError{Provider: name, Kind: ProviderErrorConfig, Err: errors.New("model_name is required")}
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	return &OpenAICompatibleProvider{
		api:   openai.NewClient(opts...),
		model: model,
		name:  name,
	}, nil
}

func (p *OpenAICompatibleProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: buildOpenAIMessages(req.Messages),
	}

	if tools := buildOpenAITools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	applyOpenAIParameters(&params, req.Parameters)

	completion, err := p.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatResponse{}, classifyOpenAIError(p.name, err)
	}
	if len(completion.Choices) == 0 {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorParse, Err: errors.New("no choices in completion")}
	}

	return parseOpenAIChoice(completion), nil
}

func buildOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func buildOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  toolDefinitionJSONSchema(t),
		}))
	}
	return out
}

func applyOpenAIParameters(params *openai.ChatCompletionNewParams, parameters map[string]any) {
	for key, value := range parameters {
		switch key {
		case "temperature":
			if f, ok := asFloat(value); ok {
				params.Temperature = openai.Float(f)
			}
		case "top_p":
			if f, ok := asFloat(value); ok {
				params.TopP = openai.Float(f)
			}
		case "max_tokens":
			if f, ok := asFloat(value); ok {
				params.MaxCompletionTokens = openai.Int(int64(f))
			}
		default:
			// Unknown keys are ignored without a warning.
		}
	}
}

func parseOpenAIChoice(completion *openai.ChatCompletion) ChatResponse {
	choice := completion.Choices[0]

	resp := ChatResponse{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		fn := tc.Function
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      fn.Name,
			Arguments: fn.Arguments,
		})
	}

	if completion.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		}
	}

	return resp
}

func classifyOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   provider,
			Kind:       ProviderErrorStatus,
			Body:       apiErr.RawJSON(),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &ProviderError{Provider: provider, Kind: ProviderErrorNetwork, Err: err}
}

func toolDefinitionJSONSchema(t ToolDefinition) map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	for name, p := range t.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enumValues := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enumValues[i] = v
			}
			prop["enum"] = enumValues
		}
		properties[name] = prop
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(t.Required) > 0 {
		schema["required"] = t.Required
	}
	return schema
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
