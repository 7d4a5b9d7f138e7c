package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (m mapBackend) SetString(key, val string) error  { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m[key] = val; return nil }
func (m mapBackend) Delete(key string) error          { delete(m, key); return nil }

// mockKeychain is a test double for the platform secret store.
type mockKeychain struct {
	values map[string]string
	err    error
}

func newMockKeychain() *mockKeychain {
	return &mockKeychain{values: make(map[string]string)}
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[service+"/"+account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	t.Setenv(apiTokenEnv, "")
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Prompt.Backend != "ollama" || cfg.Prompt.Model != "llava" {
		t.Errorf("Prompt = %+v", cfg.Prompt)
	}
	if cfg.PlantNet.Project != "all" || cfg.PlantNet.BaseURL != "https://my-api.plantnet.org" {
		t.Errorf("PlantNet = %+v", cfg.PlantNet)
	}
	if cfg.Identify.MinConfidence != 0.1 || cfg.Identify.CacheTTL != time.Hour {
		t.Errorf("Identify = %+v", cfg.Identify)
	}
	if cfg.Reminders.CheckInterval != time.Minute {
		t.Errorf("Reminders.CheckInterval = %v", cfg.Reminders.CheckInterval)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestMissingSecretsAreNotFatal verifies Load succeeds without any API key.
func TestMissingSecretsAreNotFatal(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, &mockKeychain{err: errors.New("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PlantNet.APIKey != "" || cfg.Prompt.AnthropicAPIKey != "" {
		t.Errorf("unexpected secrets: %+v %+v", cfg.PlantNet, cfg.Prompt)
	}
}

// TestBackendValues verifies all value types are read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := mapBackend{
		"server.port":              5000,
		"storage.data_dir":         "/tmp/leafwise-test",
		"plantnet.project":         "weurope",
		"prompt.backend":           "anthropic",
		"identify.min_confidence":  "0.25",
		"identify.cache_ttl":       "10m",
		"reminders.check_interval": "30s",

		// Secrets are never read from the plain backend.
		"plantnet.api_key": "leaked",
	}
	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/leafwise-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.PlantNet.Project != "weurope" {
		t.Errorf("PlantNet.Project = %q", cfg.PlantNet.Project)
	}
	if cfg.Identify.MinConfidence != 0.25 || cfg.Identify.CacheTTL != 10*time.Minute {
		t.Errorf("Identify = %+v", cfg.Identify)
	}
	if cfg.Reminders.CheckInterval != 30*time.Second {
		t.Errorf("Reminders.CheckInterval = %v", cfg.Reminders.CheckInterval)
	}
	if cfg.PlantNet.APIKey != "" {
		t.Errorf("secret read from backend: %q", cfg.PlantNet.APIKey)
	}
	if cfg.PromptModel() != "claude-sonnet-4-5" {
		t.Errorf("PromptModel() = %q", cfg.PromptModel())
	}
}

// TestMalformedValueKeepsDefault verifies unparsable values fall back to the default.
func TestMalformedValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEAFWISE_IDENTIFY_CACHE_TTL", "forever")

	cfg, err := loadWith(mapBackend{"identify.min_confidence": "high"}, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Identify.MinConfidence != 0.1 || cfg.Identify.CacheTTL != time.Hour {
		t.Errorf("Identify = %+v", cfg.Identify)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEAFWISE_SERVER_PORT", "6000")
	t.Setenv("LEAFWISE_PLANTNET_API_KEY", "env-key")

	kc := newMockKeychain()
	kc.values["leafwise/plantnet_api_key"] = "keychain-key"

	cfg, err := loadWith(mapBackend{"server.port": 5000}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.PlantNet.APIKey != "env-key" {
		t.Errorf("PlantNet.APIKey = %q, want env-key", cfg.PlantNet.APIKey)
	}
}

// TestKeychainFallback verifies the secret store is consulted when env has no key.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	kc := newMockKeychain()
	kc.values["leafwise/anthropic_api_key"] = "keychain-secret"

	cfg, err := loadWith(mapBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prompt.AnthropicAPIKey != "keychain-secret" {
		t.Errorf("AnthropicAPIKey = %q, want %q", cfg.Prompt.AnthropicAPIKey, "keychain-secret")
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}
	kc := newMockKeychain()

	if err := setKeyWith(b, kc, "server.port", "4200"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if b["server.port"] != 4200 {
		t.Errorf("server.port = %v", b["server.port"])
	}
	if err := setKeyWith(b, kc, "reminders.check_interval", "5m"); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	if b["reminders.check_interval"] != "5m" {
		t.Errorf("reminders.check_interval = %v", b["reminders.check_interval"])
	}
	if err := setKeyWith(b, kc, "plantnet.api_key", "s3cret"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if _, inBackend := b["plantnet.api_key"]; inBackend || kc.values["leafwise/plantnet_api_key"] != "s3cret" {
		t.Error("secret not routed to the secret store")
	}

	if err := setKeyWith(b, kc, "server.port", "many"); err == nil {
		t.Error("expected error for bad int")
	}
	if err := setKeyWith(b, kc, "identify.cache_ttl", "soon"); err == nil {
		t.Error("expected error for bad duration")
	}
	err := setKeyWith(b, kc, "proxy.default_model", "x")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v, want unknown key", err)
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.PlantNet.APIKey = "s3cret"

	for _, k := range ShowAll(cfg) {
		switch k.Key {
		case "plantnet.api_key":
			if k.Value != "(set)" {
				t.Errorf("plantnet.api_key shown as %q", k.Value)
			}
		case "prompt.anthropic_api_key":
			if k.Value != "(unset)" {
				t.Errorf("prompt.anthropic_api_key shown as %q", k.Value)
			}
		case "identify.cache_ttl":
			if k.Value != "1h0m0s" {
				t.Errorf("identify.cache_ttl shown as %q", k.Value)
			}
		}
		if strings.Contains(k.Value, "s3cret") {
			t.Errorf("secret leaked in %s", k.Key)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys() = %d keys, want %d", len(ValidKeys()), len(specs))
	}
}

func TestGetAPIToken(t *testing.T) {
	clearEnv(t)
	kc := newMockKeychain()

	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}
	second, err := GetAPIToken(kc)
	if err != nil || second != first {
		t.Errorf("token not reused: %q vs %q (%v)", second, first, err)
	}

	t.Setenv(apiTokenEnv, "from-env")
	if tok, _ := GetAPIToken(kc); tok != "from-env" {
		t.Errorf("env token ignored: %q", tok)
	}
}

func TestGetAPITokenStoreFailure(t *testing.T) {
	clearEnv(t)
	if _, err := GetAPIToken(&mockKeychain{err: errors.New("locked")}); err == nil {
		t.Error("expected error when the token cannot be stored")
	}
}
