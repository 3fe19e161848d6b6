package inmemory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

type PaymentRepository struct {
	mu          sync.RWMutex
	payments    map[string]*payment.Payment
	externalIDs map[string]string
	now         func() time.Time
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		mu:          sync.RWMutex{},
		payments:    make(map[string]*payment.Payment),
		externalIDs: make(map[string]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *PaymentRepository) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(p) {
		return payment.ErrDuplicate
	}
	r.insert(p)
	return nil
}

func (r *PaymentRepository) CreateIfAbsent(_ context.Context, p *payment.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(p) {
		return false, nil
	}
	r.insert(p)
	return true, nil
}

func (r *PaymentRepository) FindByID(_ context.Context, id string) (*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) FindByExternalID(_ context.Context, externalID string) (*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.externalIDs[externalID]
	if !ok || externalID == "" {
		return nil, payment.ErrPaymentNotFound
	}
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) FindByReference(_ context.Context, reference string) (*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *payment.Payment
	for _, p := range r.payments {
		if reference == "" || p.Reference != reference {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return latest.Clone(), nil
}

func (r *PaymentRepository) TransitionStatus(_ context.Context, id, fromCode string, u payment.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return false, payment.ErrPaymentNotFound
	}
	if p.Status.Code != fromCode || payment.IsTerminalSuccess(p.Status.Code) {
		return false, nil
	}

	adoptExternal := p.ExternalID == "" && u.ExternalID != ""
	if adoptExternal {
		if _, taken := r.externalIDs[u.ExternalID]; taken {
			return false, payment.ErrDuplicate
		}
	}

	p.Apply(u, r.now())
	if adoptExternal {
		r.externalIDs[p.ExternalID] = p.ID
	}
	return true, nil
}

func (r *PaymentRepository) FindStale(_ context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*payment.Payment
	for _, p := range r.payments {
		switch payment.MapStatus(p.Status.Code) {
		case payment.Created, payment.Pending:
		default:
			continue
		}
		if p.UpdatedAt.Before(olderThan) {
			stale = append(stale, p.Clone())
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Payments returns a snapshot of the store keyed by payment id.
func (r *PaymentRepository) Payments() map[string]*payment.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := maps.Clone(r.payments)
	for id, p := range out {
		out[id] = p.Clone()
	}
	return out
}

func (r *PaymentRepository) exists(p *payment.Payment) bool {
	if _, ok := r.payments[p.ID]; ok {
		return true
	}
	if p.ExternalID == "" {
		return false
	}
	_, ok := r.externalIDs[p.ExternalID]
	return ok
}

func (r *PaymentRepository) insert(p *payment.Payment) {
	stored := p.Clone()
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	r.payments[stored.ID] = stored
	if stored.ExternalID != "" {
		r.externalIDs[stored.ExternalID] = stored.ID
	}
	p.CreatedAt, p.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
}
