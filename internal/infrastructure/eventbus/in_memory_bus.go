package eventbus

import (
	"context"
	"sync"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
)

type HandlerFunc func(context.Context, event.Event) error

type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerFunc
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[event.Type][]HandlerFunc),
	}
}

func (b *InMemoryBus) Subscribe(eventType event.Type, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish stops at the first failing handler so the outbox keeps the event
// for the next poll.
func (b *InMemoryBus) Publish(ctx context.Context, evt event.Event) error {
	b.mu.RLock()
	handlers := append([]HandlerFunc(nil), b.handlers[evt.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, evt); err != nil {
			return err
		}
	}

	return nil
}
