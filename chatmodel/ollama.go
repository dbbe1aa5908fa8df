package chatmodel

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaProvider speaks Ollama's native chat API: same wire shape as an
// OpenAI-compatible endpoint (spec.md §4.1), no authorization required,
// tool support subject to the served model. If the reply carries no
// tool_calls they are treated as empty rather than an error.
type OllamaProvider struct {
	client *api.Client
	model  string
	name   string
}

func NewOllama(name, baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		return nil, &ProviderError{Provider: name, Kind: ProviderErrorConfig, Err: errors.New("model_name is required")}
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ProviderError{Provider: name, Kind: ProviderErrorConfig, Err: err}
	}

	return &OllamaProvider{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
		name:   name,
	}, nil
}

func (p *OllamaProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: buildOllamaMessages(req.Messages),
		Tools:    buildOllamaTools(req.Tools),
		Stream:   boolPtr(false),
		Options:  buildOllamaOptions(req.Parameters),
	}

	var resp ChatResponse
	var gotResponse bool

	err := p.client.Chat(ctx, chatReq, func(chunk api.ChatResponse) error {
		resp = parseOllamaResponse(chunk)
		gotResponse = true
		return nil
	})
	if err != nil {
		return ChatResponse{}, classifyOllamaError(p.name, err)
	}
	if !gotResponse {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorParse, Err: errors.New("ollama returned no response")}
	}

	return resp, nil
}

func buildOllamaMessages(messages []ChatMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			args, _ := DecodeToolArguments(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func buildOllamaTools(tools []ToolDefinition) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(tools))
	for _, t := range tools {
		properties := make(map[string]api.ToolProperty, len(t.Parameters))
		for name, p := range t.Parameters {
			prop := api.ToolProperty{Type: api.PropertyType{string(p.Type)}, Description: p.Description}
			for _, e := range p.Enum {
				prop.Enum = append(prop.Enum, e)
			}
			properties[name] = prop
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Required:   t.Required,
					Properties: properties,
				},
			},
		})
	}
	return out
}

func buildOllamaOptions(parameters map[string]any) map[string]any {
	if len(parameters) == 0 {
		return nil
	}
	opts := make(map[string]any)
	for key, value := range parameters {
		switch key {
		case "temperature", "top_p", "top_k", "num_predict":
			opts[key] = value
		}
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func parseOllamaResponse(chunk api.ChatResponse) ChatResponse {
	resp := ChatResponse{Content: chunk.Message.Content}
	for _, tc := range chunk.Message.ToolCalls {
		// Ollama's wire format carries no call id; synthesize one so the
		// core's pairing invariant (spec.md P1) still holds.
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        synthesizeToolCallID(),
			Name:      tc.Function.Name,
			Arguments: EncodeToolArguments(tc.Function.Arguments),
		})
	}
	if chunk.EvalCount > 0 || chunk.PromptEvalCount > 0 {
		resp.Usage = &Usage{
			InputTokens:  int64(chunk.PromptEvalCount),
			OutputTokens: int64(chunk.EvalCount),
		}
	}
	return resp
}

func classifyOllamaError(provider string, err error) error {
	var apiErr api.StatusError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: provider, Kind: ProviderErrorStatus, Body: apiErr.ErrorMessage, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: provider, Kind: ProviderErrorNetwork, Err: err}
}

func boolPtr(b bool) *bool { return &b }
