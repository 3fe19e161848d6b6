package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicate       = errors.New("payment already exists")
)

type Repository interface {
	// Create fails with ErrDuplicate when the id or external id is taken.
	Create(ctx context.Context, p *Payment) error
	// CreateIfAbsent inserts p unless a payment with the same external id
	// exists. It reports whether the insert happened.
	CreateIfAbsent(ctx context.Context, p *Payment) (bool, error)
	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*Payment, error)
	// FindByReference returns the most recent payment for reference.
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	// TransitionStatus applies u only if the stored status code still equals
	// fromCode and is not a terminal-success code. It reports whether a row
	// changed; false means another writer got there first.
	TransitionStatus(ctx context.Context, id, fromCode string, u StatusUpdate) (bool, error)
	// FindStale lists payments whose status is still created or pending and
	// that were last touched before olderThan.
	FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*Payment, error)
}
