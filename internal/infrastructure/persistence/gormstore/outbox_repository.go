package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/outbox"
)

type outboxRecord struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	EventType string    `gorm:"type:varchar(64);not null"`
	Payload   []byte    `gorm:"not null"`
	Published bool      `gorm:"not null;default:false;index:ix_outbox_unpublished,priority:1"`
	CreatedAt time.Time `gorm:"not null;index:ix_outbox_unpublished,priority:2"`
}

func (outboxRecord) TableName() string { return "outbox_events" }

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Save(ctx context.Context, evt outbox.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&outboxRecord{
		ID:        evt.ID,
		EventType: string(evt.Type),
		Payload:   evt.Payload,
		CreatedAt: evt.CreatedAt.UTC(),
	}).Error
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]outbox.OutboxEvent, error) {
	var recs []outboxRecord
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	events := make([]outbox.OutboxEvent, 0, len(recs))
	for _, rec := range recs {
		events = append(events, outbox.OutboxEvent{
			ID:        rec.ID,
			Type:      event.Type(rec.EventType),
			Payload:   rec.Payload,
			Published: rec.Published,
			CreatedAt: rec.CreatedAt,
		})
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&outboxRecord{}).
		Where("id = ?", id).
		Update("published", true).Error
}
