// Package localstore provides typed, observable values persisted under
// string keys. Each Store is one execution context: writes are visible to
// its own subscribers immediately and to other contexts sharing the same
// backend through a signal directory.
package localstore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kalambet/leafwise/internal/storage"
)

// Store holds the in-memory view of persisted keys for one context.
type Store struct {
	backend   Backend
	logger    *slog.Logger
	origin    string
	signalDir string
	bus       *bus

	// writeMu serialises read-modify-write cycles.
	writeMu sync.Mutex

	cacheMu sync.RWMutex
	cache   map[string]string
	// unencoded holds values whose last Write could not be encoded. They
	// shadow cache until the key is written, removed or changed elsewhere.
	unencoded map[string]any
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSignalDir enables cross-context change signals through dir.
func WithSignalDir(dir string) Option {
	return func(s *Store) { s.signalDir = dir }
}

// New returns a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		origin:  uuid.NewString(),
		bus:     newBus(),
		cache:   make(map[string]string),

		unencoded: make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) raw(key string) (string, bool) {
	s.cacheMu.RLock()
	v, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if ok {
		return v, true
	}

	v, err := s.backend.GetItem(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("reading stored value", "key", key, "error", err)
		}
		return "", false
	}

	s.cacheMu.Lock()
	s.cache[key] = v
	s.cacheMu.Unlock()
	return v, true
}

func (s *Store) invalidate(key string) {
	s.cacheMu.Lock()
	delete(s.cache, key)
	delete(s.unencoded, key)
	s.cacheMu.Unlock()
}

// put updates the in-memory view first, then persists and signals. A
// failed persist leaves the in-memory view in place.
func (s *Store) put(key, value string) {
	s.cacheMu.Lock()
	s.cache[key] = value
	delete(s.unencoded, key)
	s.cacheMu.Unlock()

	if err := s.backend.SetItem(key, value); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			s.logger.Error("storage quota exceeded, change kept in memory only", "key", key, "bytes", len(value))
		} else {
			s.logger.Error("persisting value", "key", key, "error", err)
		}
		return
	}
	s.signal(key)
}

// Read returns the value stored under key decoded as T, or fallback when
// it is absent or cannot be decoded.
func Read[T any](s *Store, key string, fallback T) T {
	s.cacheMu.RLock()
	pending, ok := s.unencoded[key]
	s.cacheMu.RUnlock()
	if v, isT := pending.(T); ok && isT {
		return v
	}

	raw, ok := s.raw(key)
	if !ok {
		return fallback
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("decoding stored value, using fallback", "key", key, "error", err)
		return fallback
	}
	return v
}

// Write persists value under key and notifies this context's subscribers.
// Failures are logged; the in-memory view is updated regardless.
func Write[T any](s *Store, key string, value T) {
	s.writeMu.Lock()
	write(s, key, value)
	s.writeMu.Unlock()
	s.bus.publish(key)
}

func write[T any](s *Store, key string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("encoding value, change kept in memory only", "key", key, "error", err)
		s.cacheMu.Lock()
		s.unencoded[key] = value
		s.cacheMu.Unlock()
		return
	}
	s.put(key, string(data))
}

// Remove deletes key and notifies subscribers. They read the fallback.
func Remove(s *Store, key string) {
	s.writeMu.Lock()
	s.cacheMu.Lock()
	delete(s.cache, key)
	delete(s.unencoded, key)
	s.cacheMu.Unlock()
	err := s.backend.RemoveItem(key)
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Error("removing value", "key", key, "error", err)
	} else {
		s.signal(key)
	}
	s.bus.publish(key)
}

// Subscribe calls fn with the fresh value whenever key changes, either by a
// Write in this context or a signal from another one. The returned func
// cancels the subscription.
func Subscribe[T any](s *Store, key string, fallback T, fn func(T)) func() {
	return s.bus.subscribe(key, func() {
		fn(Read(s, key, fallback))
	})
}
