package chatmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GeminiProvider speaks Gemini's native wire format (spec.md §4.1):
// messages reshaped into "contents" with role ∈ {user, model}; system
// prompts flow into a top-level "system_instruction"; tools map to
// {functionDeclarations:[...]}; authorization via the x-goog-api-key
// header; responses read from candidates[0].content.parts.
//
// This is deliberately built on net/http + encoding/json rather than a
// vendor SDK: the payload is built by buildGeminiPayload, the headers
// are set in Complete, and the response is parsed by parseGeminiResponse,
// all of which an SDK client would hide behind its own request/response
// types. See
// DESIGN.md for the dropped-SDK rationale.
type GeminiProvider struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
	name     string
}

func NewGemini(name, endpoint, apiKey, model string) (*GeminiProvider, error) {
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		return nil, &ProviderError{Provider: name, Kind: ProviderErrorConfig, Err: fmt.Errorf("model_name is required")}
	}
	if apiKey == "" {
		return nil, &ProviderError{Provider: name, Kind: ProviderErrorConfig, Err: fmt.Errorf("api key is required for gemini")}
	}

	return &GeminiProvider{
		client:   http.DefaultClient,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		name:     name,
	}, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	payload := buildGeminiPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorParse, Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.endpoint, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorNetwork, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorNetwork, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorNetwork, Err: err}
	}

	if httpResp.StatusCode >= 400 {
		return ChatResponse{}, &ProviderError{
			Provider:   p.name,
			Kind:       ProviderErrorStatus,
			Body:       string(respBody),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("gemini returned status %d", httpResp.StatusCode),
		}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.name, Kind: ProviderErrorParse, Err: err}
	}

	return parseGeminiResponse(p.name, parsed)
}

type geminiPayload struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Tools             []geminiToolDeclaration `json:"tools,omitempty"`
	GenerationConfig  map[string]any          `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResp *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiToolDeclaration struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	UsageMeta  *struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

func buildGeminiPayload(req ChatRequest) geminiPayload {
	var payload geminiPayload

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case RoleUser:
			payload.Contents = append(payload.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		case RoleAssistant:
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args, _ := DecodeToolArguments(tc.Arguments)
				content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}})
			}
			payload.Contents = append(payload.Contents, content)
		case RoleTool:
			args, _ := DecodeToolArguments(m.Content)
			payload.Contents = append(payload.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResp: &geminiFunctionResp{Name: m.Name, Response: map[string]any{"result": args}},
				}},
			})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolDefinitionJSONSchema(t),
			})
		}
		payload.Tools = []geminiToolDeclaration{{FunctionDeclarations: decls}}
	}

	if config := buildGeminiGenerationConfig(req.Parameters); len(config) > 0 {
		payload.GenerationConfig = config
	}

	return payload
}

func buildGeminiGenerationConfig(parameters map[string]any) map[string]any {
	config := make(map[string]any)
	for key, value := range parameters {
		switch key {
		case "temperature":
			config["temperature"] = value
		case "top_p":
			config["topP"] = value
		case "max_tokens":
			config["maxOutputTokens"] = value
		}
	}
	return config
}

// geminiRefusalReasons are finish reasons indicating the model refused to
// answer; these must surface as a failure of the chat
// call, not an empty success.
var geminiRefusalReasons = map[string]bool{
	"SAFETY":         true,
	"RECITATION":     true,
	"BLOCKLIST":      true,
	"PROHIBITED_CONTENT": true,
	"SPII":           true,
}

func parseGeminiResponse(provider string, resp geminiResponse) (ChatResponse, error) {
	if len(resp.Candidates) == 0 {
		return ChatResponse{}, &ProviderError{Provider: provider, Kind: ProviderErrorParse, Err: fmt.Errorf("no candidates in gemini response")}
	}

	candidate := resp.Candidates[0]
	if geminiRefusalReasons[candidate.FinishReason] {
		return ChatResponse{}, &ProviderError{
			Provider: provider,
			Kind:     ProviderErrorRefusal,
			Err:      fmt.Errorf("gemini refused with finish reason %q", candidate.FinishReason),
		}
	}

	var out ChatResponse
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        synthesizeToolCallID(),
				Name:      part.FunctionCall.Name,
				Arguments: EncodeToolArguments(part.FunctionCall.Args),
			})
		}
	}

	if resp.UsageMeta != nil {
		out.Usage = &Usage{
			InputTokens:  resp.UsageMeta.PromptTokenCount,
			OutputTokens: resp.UsageMeta.CandidatesTokenCount,
		}
	}

	return out, nil
}
