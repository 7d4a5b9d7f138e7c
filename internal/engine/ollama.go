package engine

import (
	"context"
	"errors"
	"io"

	"github.com/kalambet/leafwise/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Name() string { return "ollama" }

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
		for _, img := range m.Images {
			msgs[i].Images = append(msgs[i].Images, img.Data)
		}
	}

	out, err := e.client.Chat(ctx, model, msgs, toOllamaSchema(jsonSchema))
	if err != nil {
		var se *ollama.StatusError
		if errors.As(err, &se) {
			return "", &StatusError{Backend: e.Name(), Code: se.Code, Err: err}
		}
		return "", err
	}
	return out, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

// EnsureReady pulls and warms model, writing progress to w.
func (e *OllamaEngine) EnsureReady(ctx context.Context, model string, w io.Writer) error {
	return ollama.EnsureReady(ctx, e.client, model, w)
}

func toOllamaSchema(s *Schema) *ollama.Schema {
	if s == nil {
		return nil
	}
	out := &ollama.Schema{
		Type:        s.Type,
		Description: s.Description,
		Items:       toOllamaSchema(s.Items),
		Required:    s.Required,
	}
	if s.Properties != nil {
		out.Properties = make(map[string]*ollama.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toOllamaSchema(v)
		}
	}
	return out
}
