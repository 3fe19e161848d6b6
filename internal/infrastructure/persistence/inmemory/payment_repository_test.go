package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/inmemory"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/paymenttest"
)

func TestPaymentRepository_Contract(t *testing.T) {
	paymenttest.Run(t, func(*testing.T) payment.Repository {
		return inmemory.NewPaymentRepository()
	})
}

func TestPaymentRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewPaymentRepository()
	require.NoError(t, repo.Create(ctx, paymenttest.NewPayment("pay-1", "CHK_1", "order_1")))

	got, err := repo.FindByID(ctx, "pay-1")
	require.NoError(t, err)
	got.Status = payment.Status{Code: "200", Text: "approved"}

	stored := repo.Payments()["pay-1"]
	require.Equal(t, payment.CodeCreated, stored.Status.Code)
}
