package engine

import "context"

// Engine abstracts a prompt backend (local Ollama or hosted Anthropic).
// The identification service depends on this interface rather than on a
// concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// Name identifies the backend in logs and errors.
	Name() string
}
