package fulfillment

import (
	"context"
	"fmt"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
)

// OrderCompleter finishes the merchant side of an approved payment.
type OrderCompleter interface {
	MarkPaid(ctx context.Context, reference, externalID string) error
}

type Handler struct {
	Completer OrderCompleter
}

func (h *Handler) Handle(ctx context.Context, evt event.Event) error {
	if evt.Type != event.PaymentApproved {
		return nil
	}

	payload, ok := evt.Payload.(event.ApprovedPayload)
	if !ok {
		return fmt.Errorf("invalid payload for %s: %T", evt.Type, evt.Payload)
	}

	return h.Completer.MarkPaid(ctx, payload.Reference, payload.ExternalID)
}

type LogCompleter struct {
	Logger logging.Logger
}

func (c LogCompleter) MarkPaid(_ context.Context, reference, externalID string) error {
	c.Logger.Info("order paid", map[string]any{
		"reference":   reference,
		"external_id": externalID,
	})
	return nil
}
