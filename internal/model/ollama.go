package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// Ollama asks a local model for a reply constrained to the schema through
// the chat format field. It needs no credential.
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(model, baseURL string, httpClient *http.Client) (*Ollama, error) {
	host := envconfig.Host()
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse ollama url: %w", err)
		}
		host = u
	}
	return &Ollama{
		client: api.NewClient(host, httpClient),
		model:  model,
	}, nil
}

func (o *Ollama) Name() string      { return "ollama" }
func (o *Ollama) RequiresKey() bool { return false }

func (o *Ollama) Call(ctx context.Context, q Query) (map[string]any, error) {
	format, err := json.Marshal(JSONSchema(q.Schema))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	system := q.System
	if q.Description != "" {
		system = strings.TrimSpace(system + "\n\nReply with the arguments of " + q.Function + ": " + q.Description)
	}
	var messages []api.Message
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	messages = append(messages, api.Message{Role: "user", Content: q.Text})

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
		Options: map[string]interface{}{
			"temperature": 0,
			"num_predict": q.MaxOutputTokens,
		},
	}

	var reply strings.Builder
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		_, err := reply.WriteString(resp.Message.Content)
		return err
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, statusError(o.Name(), statusErr.StatusCode, statusErr.ErrorMessage)
		}
		return nil, networkError(o.Name(), err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply.String())), &args); err != nil {
		return nil, &MalformedResponseError{Provider: o.Name(), Reason: "reply is not a JSON object: " + truncate(reply.String(), 120)}
	}
	return args, nil
}
