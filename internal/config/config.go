package config

import (
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	PlantNet  PlantNetConfig
	Prompt    PromptConfig
	Identify  IdentifyConfig
	Reminders RemindersConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir       string
	MaxValueBytes int
}

type PlantNetConfig struct {
	BaseURL           string
	APIKey            string
	Project           string
	RequestsPerMinute int
}

// PromptConfig selects the prompt backend. Backend is "ollama",
// "anthropic" or "none".
type PromptConfig struct {
	Backend         string
	OllamaURL       string
	Model           string
	AnthropicAPIKey string
	AnthropicModel  string
}

type IdentifyConfig struct {
	MinConfidence float64
	CacheTTL      time.Duration
}

type RemindersConfig struct {
	CheckInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir:       defaultDataDir(),
			MaxValueBytes: 64 << 20,
		},
		PlantNet: PlantNetConfig{
			BaseURL:           "https://my-api.plantnet.org",
			Project:           "all",
			RequestsPerMinute: 30,
		},
		Prompt: PromptConfig{
			Backend:        "ollama",
			OllamaURL:      "http://localhost:11434",
			Model:          "llava",
			AnthropicModel: "claude-sonnet-4-5",
		},
		Identify: IdentifyConfig{
			MinConfidence: 0.1,
			CacheTTL:      time.Hour,
		},
		Reminders: RemindersConfig{
			CheckInterval: time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// PromptModel returns the model name for the selected prompt backend.
func (c Config) PromptModel() string {
	if strings.EqualFold(c.Prompt.Backend, "anthropic") {
		return c.Prompt.AnthropicModel
	}
	return c.Prompt.Model
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.leafwise.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/leafwise/config.json
// and secrets come from environment variables or
// $XDG_DATA_HOME/leafwise/secrets.json.
//
// Environment variables (LEAFWISE_*) override backend values on all
// platforms. Missing API keys are not an error: the features that need
// them report themselves as not configured.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	return cfg, nil
}
