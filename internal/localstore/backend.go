package localstore

import (
	"sync"

	"github.com/kalambet/leafwise/internal/storage"
)

// Backend is the raw string key/value layer a Store persists through.
// GetItem must return storage.ErrNotFound for a missing key.
type Backend interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

var _ Backend = (*storage.Store)(nil)

// MemoryBackend keeps values in process memory only. It is used when the
// data directory cannot be opened, so the collection lasts for the session.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

func (m *MemoryBackend) GetItem(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) SetItem(key, value string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) RemoveItem(key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}
