package localstore

// Value is a typed handle on one key of a Store.
type Value[T any] struct {
	store    *Store
	key      string
	fallback T
}

// NewValue returns a handle on key that reads fallback while the key is
// absent or unreadable.
func NewValue[T any](s *Store, key string, fallback T) *Value[T] {
	return &Value[T]{store: s, key: key, fallback: fallback}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	return Read(v.store, v.key, v.fallback)
}

// Set replaces the value.
func (v *Value[T]) Set(val T) {
	Write(v.store, v.key, val)
}

// Update applies fn to the current value and stores the result. Updates in
// the same context are serialised, so each fn sees the previous result.
func (v *Value[T]) Update(fn func(T) T) T {
	s := v.store
	s.writeMu.Lock()
	next := fn(Read(s, v.key, v.fallback))
	write(s, v.key, next)
	s.writeMu.Unlock()

	s.bus.publish(v.key)
	return next
}

// Modify is Update for changes that may turn out to be no-ops: when fn
// reports false nothing is written and no one is notified.
func (v *Value[T]) Modify(fn func(T) (T, bool)) (T, bool) {
	s := v.store
	s.writeMu.Lock()
	next, changed := fn(Read(s, v.key, v.fallback))
	if changed {
		write(s, v.key, next)
	}
	s.writeMu.Unlock()

	if changed {
		s.bus.publish(v.key)
	}
	return next, changed
}

// Remove deletes the stored value.
func (v *Value[T]) Remove() {
	Remove(v.store, v.key)
}

// Subscribe calls fn with the fresh value on every change.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	return Subscribe(v.store, v.key, v.fallback, fn)
}
