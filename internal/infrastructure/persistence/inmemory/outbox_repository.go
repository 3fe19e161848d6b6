package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/outbox"
)

type OutboxRepository struct {
	mu     sync.Mutex
	events map[string]outbox.OutboxEvent
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{events: make(map[string]outbox.OutboxEvent)}
}

func (r *OutboxRepository) Save(_ context.Context, evt outbox.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	evt.Payload = append([]byte(nil), evt.Payload...)
	r.events[evt.ID] = evt
	return nil
}

func (r *OutboxRepository) FindUnpublished(_ context.Context, limit int) ([]outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []outbox.OutboxEvent
	for _, evt := range r.events {
		if !evt.Published {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt, ok := r.events[id]; ok {
		evt.Published = true
		r.events[id] = evt
	}
	return nil
}
