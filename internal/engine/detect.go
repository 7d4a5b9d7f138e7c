package engine

import "fmt"

// Backend names accepted by Detect.
const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendNone      = "none"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend         string
	OllamaBaseURL   string
	AnthropicAPIKey string
}

// Detect returns the configured prompt backend. It returns a nil Engine
// and no error when prompting is disabled, or when the hosted backend is
// selected without an API key; identification then reports the missing
// configuration.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case BackendAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, nil
		}
		return NewAnthropicEngine(cfg.AnthropicAPIKey), nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown prompt backend %q (want ollama, anthropic or none)", cfg.Backend)
	}
}
