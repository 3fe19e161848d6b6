package eventbus

import (
	"context"
	"errors"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/contracts"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
)

// Fanout publishes every event to all of its publishers and joins their errors.
type Fanout []contracts.EventPublisher

func (f Fanout) Publish(ctx context.Context, evt event.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
