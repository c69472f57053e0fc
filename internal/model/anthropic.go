package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Anthropic calls the Messages API with a single forced tool.
type Anthropic struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewAnthropic(apiKey, model, baseURL string, httpClient *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &Anthropic{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (a *Anthropic) Name() string      { return "anthropic" }
func (a *Anthropic) RequiresKey() bool { return true }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type anthropicRequest struct {
	Model      string              `json:"model"`
	MaxTokens  int                 `json:"max_tokens"`
	System     string              `json:"system,omitempty"`
	Messages   []anthropicMessage  `json:"messages"`
	Tools      []anthropicTool     `json:"tools"`
	ToolChoice anthropicToolChoice `json:"tool_choice"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Anthropic) Call(ctx context.Context, q Query) (map[string]any, error) {
	reqBody := anthropicRequest{
		Model:     a.model,
		MaxTokens: q.MaxOutputTokens,
		System:    q.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: q.Text},
		},
		Tools: []anthropicTool{{
			Name:        q.Function,
			Description: q.Description,
			InputSchema: JSONSchema(q.Schema),
		}},
		ToolChoice: anthropicToolChoice{Type: "tool", Name: q.Function},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, networkError(a.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, networkError(a.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(a.Name(), resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &MalformedResponseError{Provider: a.Name(), Reason: "decode response: " + err.Error()}
	}
	if apiResp.Error != nil {
		return nil, &MalformedResponseError{Provider: a.Name(), Reason: apiResp.Error.Type + ": " + apiResp.Error.Message}
	}
	for _, block := range apiResp.Content {
		if block.Type != "tool_use" || block.Name != q.Function {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal(block.Input, &args); err != nil {
			return nil, &MalformedResponseError{Provider: a.Name(), Reason: "tool input is not an object"}
		}
		return args, nil
	}
	return nil, &MalformedResponseError{Provider: a.Name(), Reason: fmt.Sprintf("no %s tool call (stop_reason %q)", q.Function, apiResp.StopReason)}
}
