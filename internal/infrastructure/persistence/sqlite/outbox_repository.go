package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/outbox"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Save(ctx context.Context, evt outbox.OutboxEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, published, created_at)
		VALUES (?, ?, ?, 0, ?)
	`,
		evt.ID,
		string(evt.Type),
		evt.Payload,
		evt.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// FindUnpublished returns pending events oldest first; id breaks ties so
// events recorded in the same instant keep a stable order.
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]outbox.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, payload, created_at
		FROM outbox_events
		WHERE published = 0
		ORDER BY created_at, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.OutboxEvent
	for rows.Next() {
		var (
			evt       outbox.OutboxEvent
			eventType string
			createdAt string
		)
		if err := rows.Scan(&evt.ID, &eventType, &evt.Payload, &createdAt); err != nil {
			return nil, err
		}

		evt.Type = event.Type(eventType)
		if evt.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("outbox event %s: created_at: %w", evt.ID, err)
		}
		events = append(events, evt)
	}

	return events, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET published = 1 WHERE id = ?`, id)
	return err
}
