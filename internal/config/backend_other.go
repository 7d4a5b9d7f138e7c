//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const appDir = "leafwise"

// xdgPath resolves elem under the leafwise directory of the XDG base
// directory named by env. home is the fallback below the user's home.
func xdgPath(env, home string, elem ...string) string {
	base := os.Getenv(env)
	if base == "" {
		if h, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(h, home)
		} else {
			base = "."
		}
	}
	return filepath.Join(append([]string{base, appDir}, elem...)...)
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "config.json")
}

// SecretsHint tells the user where API keys can be provided.
func SecretsHint() string {
	return "Secrets are read from LEAFWISE_* environment variables or " + secretsFilePath() + "."
}

// fileBackend keeps settings as a flat JSON object keyed by config key.
// `config set` writes strings; hand-edited numbers and booleans are read
// back in their string form.
type fileBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath(), data: make(map[string]any)}
	b.load()
	return b
}

func (b *fileBackend) load() {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return
	}
	if err == nil {
		err = json.Unmarshal(raw, &b.data)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring config file %s: %v. Using default values.\n", b.path, err)
		b.data = make(map[string]any)
	}
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	switch v := b.data[key].(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	default:
		return "", true, fmt.Errorf("%s holds a %T, want a string or number", key, v)
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
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

func (b *fileBackend) SetString(key, val string) error {
	b.data[key] = val
	return writeJSONAtomic(b.path, b.data)
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return writeJSONAtomic(b.path, b.data)
}

func (b *fileBackend) Delete(key string) error {
	delete(b.data, key)
	return writeJSONAtomic(b.path, b.data)
}

// writeJSONAtomic replaces path with the indented JSON of v through a temp
// file and rename.
func writeJSONAtomic(path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(out, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
