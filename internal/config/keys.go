package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account is the secret store entry for secret keys.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LEAFWISE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LEAFWISE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.max_value_bytes", typ: kInt, env: "LEAFWISE_STORAGE_MAX_VALUE_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Storage.MaxValueBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.MaxValueBytes },
	},
	{
		key: "plantnet.base_url", typ: kString, env: "LEAFWISE_PLANTNET_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.PlantNet.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.PlantNet.BaseURL },
	},
	{
		key: "plantnet.api_key", typ: kString, env: "LEAFWISE_PLANTNET_API_KEY",
		secret: true, account: "plantnet_api_key",
		apply:   func(cfg *Config, v any) { cfg.PlantNet.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.PlantNet.APIKey },
	},
	{
		key: "plantnet.project", typ: kString, env: "LEAFWISE_PLANTNET_PROJECT",
		apply:   func(cfg *Config, v any) { cfg.PlantNet.Project = v.(string) },
		extract: func(cfg Config) any { return cfg.PlantNet.Project },
	},
	{
		key: "plantnet.requests_per_minute", typ: kInt, env: "LEAFWISE_PLANTNET_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.PlantNet.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.PlantNet.RequestsPerMinute },
	},
	{
		key: "prompt.backend", typ: kString, env: "LEAFWISE_PROMPT_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Prompt.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.Backend },
	},
	{
		key: "prompt.ollama_url", typ: kString, env: "LEAFWISE_PROMPT_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.Prompt.OllamaURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.OllamaURL },
	},
	{
		key: "prompt.model", typ: kString, env: "LEAFWISE_PROMPT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Prompt.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.Model },
	},
	{
		key: "prompt.anthropic_api_key", typ: kString, env: "LEAFWISE_ANTHROPIC_API_KEY",
		secret: true, account: "anthropic_api_key",
		apply:   func(cfg *Config, v any) { cfg.Prompt.AnthropicAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.AnthropicAPIKey },
	},
	{
		key: "prompt.anthropic_model", typ: kString, env: "LEAFWISE_PROMPT_ANTHROPIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Prompt.AnthropicModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.AnthropicModel },
	},
	{
		key: "identify.min_confidence", typ: kFloat, env: "LEAFWISE_IDENTIFY_MIN_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Identify.MinConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Identify.MinConfidence },
	},
	{
		key: "identify.cache_ttl", typ: kDuration, env: "LEAFWISE_IDENTIFY_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Identify.CacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Identify.CacheTTL },
	},
	{
		key: "reminders.check_interval", typ: kDuration, env: "LEAFWISE_REMINDERS_CHECK_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Reminders.CheckInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Reminders.CheckInterval },
	},
	{
		key: "log.level", typ: kString, env: "LEAFWISE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of spec s.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secrets still empty after the environment from the
// platform secret store.
func applySecrets(cfg *Config, kc Keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
