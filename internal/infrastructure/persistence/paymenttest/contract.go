// Package paymenttest holds the behaviour every payment.Repository
// implementation must share. Store packages run it from their own tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

func NewPayment(id, externalID, reference string) *payment.Payment {
	return &payment.Payment{
		ID:         id,
		User:       "user-1",
		ExternalID: externalID,
		Reference:  reference,
		Amount:     decimal.RequireFromString("100.50"),
		Currency:   "COP",
		Status:     payment.CreatedStatus(),
		Items: []payment.Item{
			{ProductID: "sku-1", Quantity: 2, UnitPrice: decimal.RequireFromString("50.25"), ProductName: "Ticket", ShopName: "Box office"},
		},
	}
}

func approved() payment.StatusUpdate {
	return payment.StatusUpdate{
		Status:        payment.Status{Code: payment.CodeApproved, Text: "approved"},
		PaymentMethod: &payment.Method{Name: "Visa", Type: "card"},
		PaymentData:   json.RawMessage(`{"id":"CHK_1","status":{"code":"200"}}`),
	}
}

// Run exercises repo constructors returned by newRepo, one fresh store per subtest.
func Run(t *testing.T, newRepo func(t *testing.T) payment.Repository) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)
		p := NewPayment("pay-1", "CHK_1", "order_1")

		require.NoError(t, repo.Create(ctx, p))

		byID, err := repo.FindByID(ctx, "pay-1")
		require.NoError(t, err)
		require.Equal(t, "CHK_1", byID.ExternalID)
		require.Equal(t, "user-1", byID.User)
		require.True(t, byID.Amount.Equal(decimal.RequireFromString("100.50")))
		require.Equal(t, payment.CreatedStatus(), byID.Status)
		require.Len(t, byID.Items, 1)
		require.Equal(t, 2, byID.Items[0].Quantity)
		require.True(t, byID.Items[0].UnitPrice.Equal(decimal.RequireFromString("50.25")))
		require.Nil(t, byID.PaymentMethod)
		require.False(t, byID.CreatedAt.IsZero())

		byExt, err := repo.FindByExternalID(ctx, "CHK_1")
		require.NoError(t, err)
		require.Equal(t, "pay-1", byExt.ID)

		_, err = repo.FindByExternalID(ctx, "missing")
		require.ErrorIs(t, err, payment.ErrPaymentNotFound)

		_, err = repo.FindByID(ctx, "missing")
		require.ErrorIs(t, err, payment.ErrPaymentNotFound)
	})

	t.Run("duplicate external id", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewPayment("pay-1", "CHK_1", "order_1")))

		err := repo.Create(ctx, NewPayment("pay-2", "CHK_1", "order_1"))
		require.ErrorIs(t, err, payment.ErrDuplicate)

		created, err := repo.CreateIfAbsent(ctx, NewPayment("pay-3", "CHK_1", "order_1"))
		require.NoError(t, err)
		require.False(t, created)

		created, err = repo.CreateIfAbsent(ctx, NewPayment("pay-4", "CHK_2", "order_2"))
		require.NoError(t, err)
		require.True(t, created)
	})

	t.Run("payments without external id coexist", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewPayment("pay-1", "", "order_1")))
		require.NoError(t, repo.Create(ctx, NewPayment("pay-2", "", "order_2")))
	})

	t.Run("find by reference returns most recent", func(t *testing.T) {
		repo := newRepo(t)
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		older := NewPayment("pay-old", "CHK_OLD", "order_1")
		older.CreatedAt = base
		newer := NewPayment("pay-new", "CHK_NEW", "order_1")
		newer.CreatedAt = base.Add(time.Minute)

		require.NoError(t, repo.Create(ctx, older))
		require.NoError(t, repo.Create(ctx, newer))

		got, err := repo.FindByReference(ctx, "order_1")
		require.NoError(t, err)
		require.Equal(t, "pay-new", got.ID)

		_, err = repo.FindByReference(ctx, "order_404")
		require.ErrorIs(t, err, payment.ErrPaymentNotFound)
	})

	t.Run("transition applies once then locks on approval", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewPayment("pay-1", "CHK_1", "order_1")))

		pending := payment.StatusUpdate{Status: payment.Status{Code: "101", Text: "pending"}}
		ok, err := repo.TransitionStatus(ctx, "pay-1", payment.CodeCreated, pending)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.TransitionStatus(ctx, "pay-1", payment.CodeCreated, approved())
		require.NoError(t, err)
		require.False(t, ok, "stale observed code must lose")

		ok, err = repo.TransitionStatus(ctx, "pay-1", "101", approved())
		require.NoError(t, err)
		require.True(t, ok)

		reject := payment.StatusUpdate{Status: payment.Status{Code: "301", Text: "rejected"}}
		ok, err = repo.TransitionStatus(ctx, "pay-1", payment.CodeApproved, reject)
		require.NoError(t, err)
		require.False(t, ok, "approved payments never change")

		got, err := repo.FindByID(ctx, "pay-1")
		require.NoError(t, err)
		require.Equal(t, payment.CodeApproved, got.Status.Code)
		require.Equal(t, "card", got.PaymentMethod.Type)
		require.JSONEq(t, `{"id":"CHK_1","status":{"code":"200"}}`, string(got.PaymentData))
		require.True(t, got.Amount.Equal(decimal.RequireFromString("100.50")))
		require.Len(t, got.Items, 1)
	})

	t.Run("legacy approval code is terminal", func(t *testing.T) {
		repo := newRepo(t)
		p := NewPayment("pay-1", "CHK_1", "order_1")
		p.Status = payment.Status{Code: payment.CodeApprovedLegacy, Text: "approved"}
		require.NoError(t, repo.Create(ctx, p))

		ok, err := repo.TransitionStatus(ctx, "pay-1", payment.CodeApprovedLegacy, payment.StatusUpdate{Status: payment.Status{Code: "4", Text: "cancelled"}})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("every approval variant is terminal", func(t *testing.T) {
		repo := newRepo(t)
		p := NewPayment("pay-1", "CHK_1", "order_1")
		p.Status = payment.Status{Code: "201", Text: "approved"}
		require.NoError(t, repo.Create(ctx, p))

		ok, err := repo.TransitionStatus(ctx, "pay-1", "201", payment.StatusUpdate{Status: payment.Status{Code: "101", Text: "pending"}})
		require.NoError(t, err)
		require.False(t, ok)

		got, err := repo.FindByID(ctx, "pay-1")
		require.NoError(t, err)
		require.Equal(t, "201", got.Status.Code)
	})

	t.Run("transition keeps method and adopts missing external id", func(t *testing.T) {
		repo := newRepo(t)
		p := NewPayment("pay-1", "", "order_1")
		p.PaymentMethod = &payment.Method{Name: "PSE", Type: "bank"}
		require.NoError(t, repo.Create(ctx, p))

		ok, err := repo.TransitionStatus(ctx, "pay-1", payment.CodeCreated, payment.StatusUpdate{
			Status:     payment.Status{Code: "101", Text: "pending"},
			ExternalID: "CHK_9",
		})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.FindByExternalID(ctx, "CHK_9")
		require.NoError(t, err)
		require.Equal(t, "pay-1", got.ID)
		require.Equal(t, "bank", got.PaymentMethod.Type)
	})

	t.Run("transition of unknown payment", func(t *testing.T) {
		repo := newRepo(t)

		ok, err := repo.TransitionStatus(ctx, "missing", payment.CodeCreated, approved())
		require.ErrorIs(t, err, payment.ErrPaymentNotFound)
		require.False(t, ok)
	})

	t.Run("concurrent transitions have one winner", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewPayment("pay-1", "CHK_1", "order_1")))

		const writers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		start := make(chan struct{})

		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := repo.TransitionStatus(ctx, "pay-1", payment.CodeCreated, approved())
				if err != nil {
					t.Error(err)
					return
				}
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}

		close(start)
		wg.Wait()

		require.Equal(t, 1, wins)
	})

	t.Run("find stale", func(t *testing.T) {
		repo := newRepo(t)
		old := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cutoff := old.Add(time.Hour)

		mk := func(id, code string, at time.Time) {
			p := NewPayment(id, "CHK_"+id, "order_"+id)
			p.Status = payment.Normalize(code, "")
			p.CreatedAt, p.UpdatedAt = at, at
			require.NoError(t, repo.Create(ctx, p))
		}
		mk("a", "1", old.Add(2*time.Minute))
		mk("b", "101", old)
		mk("c", "200", old)
		mk("d", "301", old)
		mk("e", "1", cutoff.Add(time.Minute))

		stale, err := repo.FindStale(ctx, cutoff, 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		require.Equal(t, "b", stale[0].ID)
		require.Equal(t, "a", stale[1].ID)

		limited, err := repo.FindStale(ctx, cutoff, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
	})
}
