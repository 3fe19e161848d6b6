package outbox

import (
	"context"
	"time"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/contracts"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
)

type Dispatcher struct {
	Repo         Repository
	EventBus     contracts.EventPublisher
	Logger       logging.Logger
	PollInterval time.Duration
	BatchSize    int
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchOnce(ctx)
		}
	}
}

// DispatchOnce publishes one batch and reports how many events went out.
// Events that fail to publish stay unpublished for the next poll.
func (d *Dispatcher) DispatchOnce(ctx context.Context) int {
	logger := d.logger()

	events, err := d.Repo.FindUnpublished(ctx, d.batchSize())
	if err != nil {
		logger.Error("outbox poll failed", map[string]any{"error": err.Error()})
		return 0
	}

	sent := 0
	for _, evt := range events {
		payload, err := event.DecodePayload(evt.Type, evt.Payload)
		if err != nil {
			logger.Error("outbox event undecodable", map[string]any{
				"event_id":   evt.ID,
				"event_type": string(evt.Type),
				"error":      err.Error(),
			})
			continue
		}

		if err := d.EventBus.Publish(ctx, event.Event{Type: evt.Type, Payload: payload}); err != nil {
			logger.Warn("outbox publish failed", map[string]any{
				"event_id":   evt.ID,
				"event_type": string(evt.Type),
				"error":      err.Error(),
			})
			continue
		}

		if err := d.Repo.MarkPublished(ctx, evt.ID); err != nil {
			logger.Error("outbox mark published failed", map[string]any{
				"event_id": evt.ID,
				"error":    err.Error(),
			})
			continue
		}
		sent++
	}

	return sent
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize <= 0 {
		return 100
	}
	return d.BatchSize
}

func (d *Dispatcher) logger() logging.Logger {
	if d.Logger == nil {
		return logging.Nop{}
	}
	return d.Logger
}
