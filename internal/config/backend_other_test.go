//go:build !darwin

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	b := newPlatformBackend()
	if err := b.SetString("prompt.backend", "anthropic"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	reopened := newPlatformBackend()
	if v, ok, err := reopened.GetString("prompt.backend"); err != nil || !ok || v != "anthropic" {
		t.Errorf("prompt.backend = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := reopened.GetInt("server.port"); err != nil || !ok || v != 4200 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}

	if err := reopened.Delete("server.port"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newPlatformBackend().GetInt("server.port"); ok {
		t.Error("server.port still set after Delete")
	}
}

func TestFileBackend_HandEdited(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "leafwise", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	body := `{"identify.min_confidence": 0.25, "server.port": 4300, "plantnet.requests_per_minute": 2.5, "log.level": ["debug"]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newPlatformBackend()
	if v, _, err := b.GetString("identify.min_confidence"); err != nil || v != "0.25" {
		t.Errorf("min_confidence = %q, %v", v, err)
	}
	if v, _, err := b.GetInt("server.port"); err != nil || v != 4300 {
		t.Errorf("server.port = %d, %v", v, err)
	}
	if _, ok, err := b.GetInt("plantnet.requests_per_minute"); !ok || err == nil {
		t.Errorf("fractional int: ok=%v err=%v, want an error", ok, err)
	}
	if _, ok, err := b.GetString("log.level"); !ok || err == nil {
		t.Errorf("array value: ok=%v err=%v, want an error", ok, err)
	}
}

func TestFileBackend_CorruptFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "leafwise", "config.json")
	os.MkdirAll(filepath.Dir(path), 0o700)
	os.WriteFile(path, []byte("{not json"), 0o600)

	b := newPlatformBackend()
	if _, ok, _ := b.GetString("server.port"); ok {
		t.Error("corrupt file should read as empty")
	}
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Fatalf("SetString over corrupt file: %v", err)
	}
	if v, _, _ := newPlatformBackend().GetString("log.level"); v != "debug" {
		t.Errorf("log.level = %q after rewrite", v)
	}
}

func TestFileKeychain(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	kc := NewKeychain()

	if _, err := kc.Get(keychainService, "plantnet_api_key"); !errors.Is(err, errSecretNotFound) {
		t.Fatalf("Get on empty store = %v, want errSecretNotFound", err)
	}
	if err := kc.Set(keychainService, "plantnet_api_key", "pn-key"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kc.Set(keychainService, apiTokenAccount, "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := kc.Get(keychainService, "plantnet_api_key"); err != nil || v != "pn-key" {
		t.Errorf("Get = %q, %v", v, err)
	}

	info, err := os.Stat(secretsFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}
}

func TestFileKeychain_CorruptFileIsNotOverwritten(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := secretsFilePath()
	os.MkdirAll(filepath.Dir(path), 0o700)
	os.WriteFile(path, []byte("garbage"), 0o600)

	if err := NewKeychain().Set(keychainService, apiTokenAccount, "tok"); err == nil {
		t.Fatal("expected error writing into a corrupt secrets file")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "garbage" {
		t.Errorf("secrets file rewritten: %q", data)
	}
}
