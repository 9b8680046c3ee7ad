package session

import (
	"sync"

	"github.com/google/uuid"
)

// broadcaster fans a value out to registered callbacks. Callbacks run
// synchronously on the publishing goroutine, outside any state lock.
type broadcaster[T any] struct {
	mu   sync.RWMutex
	subs map[string]func(T)
}

func (b *broadcaster[T]) subscribe(fn func(T)) func() {
	id := uuid.NewString()

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[string]func(T))
	}
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.RLock()
	fns := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (b *broadcaster[T]) reset() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

func (b *broadcaster[T]) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
