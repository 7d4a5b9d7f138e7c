//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.leafwise.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "leafwise")
	}
	return "leafwise-data"
}

// SecretsHint tells the user where API keys can be provided.
func SecretsHint() string {
	return "Secrets are read from LEAFWISE_* environment variables or macOS Keychain (service: " + keychainService + ")."
}

// darwinBackend stores settings in the app's UserDefaults domain.
type darwinBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &darwinBackend{domain: defaultsDomain}
}

// defaults runs the defaults tool against the domain. missing reports the
// exit status defaults uses for an absent key.
func (b *darwinBackend) defaults(verb, key string, args ...string) (out string, missing bool, err error) {
	argv := append([]string{verb, b.domain, key}, args...)
	raw, err := exec.Command("defaults", argv...).CombinedOutput()
	out = strings.TrimSpace(string(raw))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", true, nil
		}
		return "", false, fmt.Errorf("defaults %s %s: %w: %s", verb, key, err, out)
	}
	return out, false, nil
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	out, missing, err := b.defaults("read", key)
	return out, !missing && err == nil, err
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s is not an integer: %q", key, s)
	}
	return i, true, nil
}

func (b *darwinBackend) SetString(key, val string) error {
	_, _, err := b.defaults("write", key, "-string", val)
	return err
}

func (b *darwinBackend) SetInt(key string, val int) error {
	_, _, err := b.defaults("write", key, "-int", strconv.Itoa(val))
	return err
}

// Delete removes key. Deleting an unset key is not an error.
func (b *darwinBackend) Delete(key string) error {
	_, _, err := b.defaults("delete", key)
	return err
}
