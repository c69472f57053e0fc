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

// OpenAI calls a chat completions endpoint with one forced function tool.
// Any OpenAI-compatible server works through BaseURL.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAI(apiKey, model, baseURL string, httpClient *http.Client) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (o *OpenAI) Name() string      { return "openai" }
func (o *OpenAI) RequiresKey() bool { return true }

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIRequest struct {
	Model      string          `json:"model"`
	Messages   []openAIMessage `json:"messages"`
	Tools      []openAITool    `json:"tools"`
	ToolChoice any             `json:"tool_choice"`
	MaxTokens  int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAI) Call(ctx context.Context, q Query) (map[string]any, error) {
	var messages []openAIMessage
	if q.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: q.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: q.Text})

	reqBody := openAIRequest{
		Model:    o.model,
		Messages: messages,
		Tools: []openAITool{{
			Type: "function",
			Function: openAIFunction{
				Name:        q.Function,
				Description: q.Description,
				Parameters:  JSONSchema(q.Schema),
			},
		}},
		ToolChoice: map[string]any{
			"type":     "function",
			"function": map[string]string{"name": q.Function},
		},
		MaxTokens: q.MaxOutputTokens,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, networkError(o.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, networkError(o.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(o.Name(), resp.StatusCode, string(respBody))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &MalformedResponseError{Provider: o.Name(), Reason: "decode response: " + err.Error()}
	}
	if apiResp.Error != nil {
		return nil, &MalformedResponseError{Provider: o.Name(), Reason: apiResp.Error.Message}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &MalformedResponseError{Provider: o.Name(), Reason: "no choices"}
	}
	for _, call := range apiResp.Choices[0].Message.ToolCalls {
		if call.Function.Name != q.Function {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, &MalformedResponseError{Provider: o.Name(), Reason: "function arguments are not a JSON object"}
		}
		return args, nil
	}
	return nil, &MalformedResponseError{
		Provider: o.Name(),
		Reason:   fmt.Sprintf("no %s function call (finish_reason %q)", q.Function, apiResp.Choices[0].FinishReason),
	}
}
