package localstore

import "sync"

// bus fans change notifications out to the subscribers of a single key.
type bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
}

func newBus() *bus {
	return &bus{subs: make(map[string]map[int]func())}
}

func (b *bus) subscribe(key string, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]func())
	}
	b.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
}

// publish calls every subscriber of key. Handlers run on the caller's
// goroutine outside the bus lock, so they may subscribe or unsubscribe.
func (b *bus) publish(key string) {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.subs[key]))
	for _, fn := range b.subs[key] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
