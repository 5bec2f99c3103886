package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Publisher+Subscriber. Tests and the single-binary
// demo use it in place of redis.
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]func(Notification)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]func(Notification))}
}

func (b *MemoryBus) Publish(ctx context.Context, stream string, n Notification) error {
	b.mu.Lock()
	handlers := make([]func(Notification), len(b.handlers[stream]))
	copy(handlers, b.handlers[stream])
	b.mu.Unlock()

	for _, h := range handlers {
		h(n)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, stream string, handler func(Notification)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[stream] = append(b.handlers[stream], handler)
	return nil
}
