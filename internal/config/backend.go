package config

// ConfigBackend is where non-secret settings persist between runs: the
// app's UserDefaults domain on macOS and a JSON file under
// XDG_CONFIG_HOME elsewhere. ok is false for keys that were never set.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
