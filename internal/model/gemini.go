package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Gemini calls generateContent with a single function declaration and
// function calling mode ANY.
type Gemini struct {
	client *genai.Client // nil without a credential
	model  string
}

func NewGemini(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*Gemini, error) {
	g := &Gemini{model: model}
	if apiKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Name() string      { return "gemini" }
func (g *Gemini) RequiresKey() bool { return true }

func (g *Gemini) Call(ctx context.Context, q Query) (map[string]any, error) {
	if g.client == nil {
		return nil, &TransportError{Provider: g.Name(), Message: "missing credential"}
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: int32(q.MaxOutputTokens),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        q.Function,
				Description: q.Description,
				Parameters:  GenaiSchema(q.Schema),
			}},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{q.Function},
			},
		},
	}
	if q.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: q.System}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(q.Text), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, statusError(g.Name(), apiErr.Code, apiErr.Message)
		}
		return nil, networkError(g.Name(), err)
	}

	for _, call := range resp.FunctionCalls() {
		if call.Name == q.Function {
			if call.Args == nil {
				return map[string]any{}, nil
			}
			return call.Args, nil
		}
	}
	return nil, &MalformedResponseError{Provider: g.Name(), Reason: fmt.Sprintf("no %s function call", q.Function)}
}
