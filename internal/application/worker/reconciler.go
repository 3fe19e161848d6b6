package worker

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/webhook"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
)

type PaymentFetcher interface {
	GetPayment(ctx context.Context, externalID string, creds gateway.Credentials) (gateway.Snapshot, error)
}

type CredentialLookup interface {
	Lookup(externalID string) (gateway.Credentials, bool)
}

type EventProcessor interface {
	Process(ctx context.Context, evt webhook.Event, raw []byte) (webhook.Outcome, error)
}

// Reconciler polls the gateway for payments whose webhook never arrived and
// feeds what it finds through the webhook path.
type Reconciler struct {
	Repo        payment.Repository
	Gateway     PaymentFetcher
	Credentials CredentialLookup // nil means the client defaults for every payment
	Processor   EventProcessor
	OlderThan   time.Duration
	BatchSize   int
	Concurrency int
	Metrics     *metrics.Counters
	Logger      logging.Logger
	Now         func() time.Time
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger().Error("reconcile pass failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// RunOnce reconciles one batch of stale payments and returns how many
// changed status. Per-payment failures are logged and skipped.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.OlderThan)
	stale, err := r.Repo.FindStale(ctx, cutoff, r.batchSize())
	if err != nil {
		return 0, err
	}

	var changed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())

	for _, p := range stale {
		if p.ExternalID == "" {
			continue
		}
		g.Go(func() error {
			if r.reconcile(gctx, p) {
				changed.Add(1)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return int(changed.Load()), err
	}

	if n := changed.Load(); n > 0 {
		r.logger().Info("reconcile pass finished", map[string]any{
			"checked": len(stale),
			"changed": n,
		})
	}
	return int(changed.Load()), nil
}

func (r *Reconciler) reconcile(ctx context.Context, p *payment.Payment) bool {
	snap, err := r.Gateway.GetPayment(ctx, p.ExternalID, r.credentials(p.ExternalID))
	if err != nil {
		r.logger().Warn("reconcile fetch failed", map[string]any{
			"payment_id":  p.ID,
			"external_id": p.ExternalID,
			"error":       err.Error(),
		})
		return false
	}

	if snap.Status.Code == p.Status.Code {
		return false
	}

	out, err := r.Processor.Process(ctx, snapshotEvent(snap, p), snap.Raw)
	if err != nil {
		return false
	}
	if out.Result == webhook.AlreadyProcessed {
		return false
	}

	if r.Metrics != nil {
		r.Metrics.IncReconciled()
	}
	return true
}

func snapshotEvent(snap gateway.Snapshot, p *payment.Payment) webhook.Event {
	evt := webhook.Event{
		Type: "reconcile",
		Data: webhook.Data{
			ID:            snap.ExternalID,
			Reference:     snap.Reference,
			Status:        snap.Status,
			PaymentMethod: snap.PaymentMethod,
			Total:         snap.Total,
			Currency:      snap.Currency,
		},
	}
	if evt.Data.ID == "" {
		evt.Data.ID = p.ExternalID
	}
	if evt.Data.Reference == "" {
		evt.Data.Reference = p.Reference
	}
	return evt
}

func (r *Reconciler) credentials(externalID string) gateway.Credentials {
	if r.Credentials == nil {
		return gateway.Credentials{}
	}
	creds, _ := r.Credentials.Lookup(externalID)
	return creds
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reconciler) batchSize() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return 50
}

func (r *Reconciler) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return 4
}

func (r *Reconciler) logger() logging.Logger {
	if r.Logger == nil {
		return logging.Nop{}
	}
	return r.Logger
}
