package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/paymenttest"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := sqlite.RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	return db
}

func TestPaymentRepository_Contract(t *testing.T) {
	paymenttest.Run(t, func(t *testing.T) payment.Repository {
		return sqlite.NewPaymentRepository(setupTestDB(t))
	})
}

func TestRunMigrations_IsRepeatable(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, sqlite.RunMigrations(db))
}

func TestPaymentRepository_StoresCanonicalBucket(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := sqlite.NewPaymentRepository(db)

	require.NoError(t, repo.Create(ctx, paymenttest.NewPayment("pay-1", "CHK_1", "order_1")))
	ok, err := repo.TransitionStatus(ctx, "pay-1", payment.CodeCreated, payment.StatusUpdate{
		Status: payment.Status{Code: "150", Text: "in review"},
	})
	require.NoError(t, err)
	require.True(t, ok)

	var canonical string
	require.NoError(t, db.QueryRow(`SELECT status_canonical FROM payments WHERE id = ?`, "pay-1").Scan(&canonical))
	require.Equal(t, "pending", canonical)
}
