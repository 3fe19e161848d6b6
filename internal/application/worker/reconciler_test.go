package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/webhook"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/worker"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/inmemory"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	creds   map[string]gateway.Credentials
	getFn   func(externalID string) (gateway.Snapshot, error)
}

func (f *fakeFetcher) GetPayment(_ context.Context, externalID string, creds gateway.Credentials) (gateway.Snapshot, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, externalID)
	if f.creds == nil {
		f.creds = map[string]gateway.Credentials{}
	}
	f.creds[externalID] = creds
	f.mu.Unlock()
	return f.getFn(externalID)
}

func snapshot(externalID, code string) gateway.Snapshot {
	return gateway.Snapshot{
		ExternalID: externalID,
		Status:     payment.Status{Code: code, Text: "from gateway"},
		Total:      decimal.NewFromInt(100),
		Currency:   "COP",
		Raw:        json.RawMessage(`{"id":"` + externalID + `","status":{"code":"` + code + `"}}`),
	}
}

func seed(t *testing.T, repo payment.Repository, id, externalID, code string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &payment.Payment{
		ID:         id,
		ExternalID: externalID,
		Reference:  "order_" + id,
		Amount:     decimal.NewFromInt(100),
		Currency:   "COP",
		Status:     payment.Status{Code: code, Text: "seeded"},
	}))
}

func newReconciler(repo payment.Repository, fetcher worker.PaymentFetcher, m *metrics.Counters) *worker.Reconciler {
	return &worker.Reconciler{
		Repo:      repo,
		Gateway:   fetcher,
		Processor: webhook.NewProcessor(repo, nil, m, logging.Nop{}),
		OlderThan: time.Minute,
		Metrics:   m,
		Logger:    logging.Nop{},
		Now:       func() time.Time { return time.Now().UTC().Add(time.Hour) },
	}
}

func TestReconciler_AppliesGatewayStatusToStalePayments(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewPaymentRepository()
	seed(t, repo, "pay-1", "CHK_1", "1")
	seed(t, repo, "pay-2", "CHK_2", "101")
	m := &metrics.Counters{}
	fetcher := &fakeFetcher{getFn: func(id string) (gateway.Snapshot, error) {
		return snapshot(id, "200"), nil
	}}

	changed, err := newReconciler(repo, fetcher, m).RunOnce(ctx)

	require.NoError(t, err)
	require.Equal(t, 2, changed)
	require.Equal(t, uint64(2), m.Snapshot()["payments_reconciled"])
	for _, id := range []string{"pay-1", "pay-2"} {
		p, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "200", p.Status.Code)
	}
}

func TestReconciler_UnchangedStatusIsNotReapplied(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewPaymentRepository()
	seed(t, repo, "pay-1", "CHK_1", "101")
	fetcher := &fakeFetcher{getFn: func(id string) (gateway.Snapshot, error) {
		return snapshot(id, "101"), nil
	}}

	changed, err := newReconciler(repo, fetcher, &metrics.Counters{}).RunOnce(ctx)

	require.NoError(t, err)
	require.Zero(t, changed)
	require.Equal(t, []string{"CHK_1"}, fetcher.fetched)
}

func TestReconciler_FetchFailureSkipsOnlyThatPayment(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewPaymentRepository()
	seed(t, repo, "pay-1", "CHK_DOWN", "1")
	seed(t, repo, "pay-2", "CHK_OK", "1")
	fetcher := &fakeFetcher{getFn: func(id string) (gateway.Snapshot, error) {
		if id == "CHK_DOWN" {
			return gateway.Snapshot{}, apperr.UnavailableErr(errors.New("503"))
		}
		return snapshot(id, "300"), nil
	}}

	changed, err := newReconciler(repo, fetcher, &metrics.Counters{}).RunOnce(ctx)

	require.NoError(t, err)
	require.Equal(t, 1, changed)

	down, _ := repo.FindByID(ctx, "pay-1")
	require.Equal(t, "1", down.Status.Code)
	ok, _ := repo.FindByID(ctx, "pay-2")
	require.Equal(t, "300", ok.Status.Code)
}

func TestReconciler_IgnoresFreshTerminalAndUnboundPayments(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewPaymentRepository()
	seed(t, repo, "pay-approved", "CHK_A", "200")
	seed(t, repo, "pay-unbound", "", "1")
	seed(t, repo, "pay-fresh", "CHK_F", "1")
	fetcher := &fakeFetcher{getFn: func(id string) (gateway.Snapshot, error) {
		return snapshot(id, "200"), nil
	}}
	r := newReconciler(repo, fetcher, &metrics.Counters{})
	r.Now = func() time.Time { return time.Now().UTC() }

	changed, err := r.RunOnce(ctx)

	require.NoError(t, err)
	require.Zero(t, changed)
	require.Empty(t, fetcher.fetched)
}

func TestReconciler_RunStopsWithContext(t *testing.T) {
	repo := inmemory.NewPaymentRepository()
	fetcher := &fakeFetcher{getFn: func(id string) (gateway.Snapshot, error) {
		return snapshot(id, "200"), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		newReconciler(repo, fetcher, &metrics.Counters{}).Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconciler_FetchesWithTheCheckoutsCredentials(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewPaymentRepository()
	seed(t, repo, "pay-1", "CHK_TENANT", "1")
	seed(t, repo, "pay-2", "CHK_DEFAULT", "1")
	fetcher := &fakeFetcher{getFn: func(id string) (gateway.Snapshot, error) {
		return snapshot(id, "101"), nil
	}}
	cache := gateway.NewCredentialCache(0)
	cache.Remember("CHK_TENANT", gateway.Credentials{APIKey: "tenant-key", AccessToken: "tenant-token"})

	r := newReconciler(repo, fetcher, &metrics.Counters{})
	r.Credentials = cache

	changed, err := r.RunOnce(ctx)

	require.NoError(t, err)
	require.Equal(t, 2, changed)
	require.Equal(t, gateway.Credentials{APIKey: "tenant-key", AccessToken: "tenant-token"}, fetcher.creds["CHK_TENANT"])
	require.True(t, fetcher.creds["CHK_DEFAULT"].IsZero())
}
