package storage

import "errors"

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrQuotaExceeded is returned when a value is larger than the store allows.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultMaxValueBytes caps a single stored value. Scans embed their photo,
// so the limit is far above what browsers grant per origin.
const DefaultMaxValueBytes = 64 << 20
