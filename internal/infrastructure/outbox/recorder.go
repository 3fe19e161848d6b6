package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
)

type Recorder struct {
	Repo Repository
	Now  func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{Repo: repo}
}

func (r *Recorder) Record(ctx context.Context, evt event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evt.Type, err)
	}

	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}

	return r.Repo.Save(ctx, OutboxEvent{
		ID:        uuid.NewString(),
		Type:      evt.Type,
		Payload:   payload,
		CreatedAt: now,
	})
}
