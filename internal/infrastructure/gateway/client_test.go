package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/retry"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*gateway.Client, *metrics.Counters) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := &metrics.Counters{}
	client := gateway.NewClient(gateway.Config{
		BaseURL:     srv.URL,
		Credentials: gateway.Credentials{APIKey: "default-key", AccessToken: "default-token"},
		Retry: retry.Policy{
			MaxAttempts:    3,
			BaseDelay:      time.Millisecond,
			AttemptTimeout: time.Second,
			Sleep:          noSleep,
		},
	}, m, logging.Nop{})

	return client, m
}

func checkoutRequest() gateway.CheckoutRequest {
	return gateway.CheckoutRequest{
		Amount:    decimal.NewFromInt(100),
		Currency:  "COP",
		Reference: "order_1",
		Customer:  gateway.Customer{Email: "buyer@example.com"},
		Items:     []gateway.LineItem{{Name: "Ticket", Quantity: 1, Price: decimal.NewFromInt(100)}},
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestCreateCheckout_Success(t *testing.T) {
	var gotBody map[string]any
	var gotKey, gotAuth string

	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkouts", r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":"CHK_1","url":"https://pay/CHK_1","redirectUrl":"https://shop/done"}}`)
	})

	res, err := client.CreateCheckout(context.Background(), checkoutRequest(), gateway.Credentials{})

	require.NoError(t, err)
	require.Equal(t, gateway.CheckoutResult{ExternalID: "CHK_1", URL: "https://pay/CHK_1", RedirectURL: "https://shop/done"}, res)
	require.Equal(t, "default-key", gotKey)
	require.Equal(t, "Bearer default-token", gotAuth)
	require.Equal(t, "order_1", gotBody["reference"])
	require.Equal(t, uint64(1), m.Snapshot()["gateway_attempts"])
}

func TestCreateCheckout_PerCallCredentialsOverrideDefaults(t *testing.T) {
	var gotKey, gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":"CHK_2","url":"u"}}`)
	})

	_, err := client.CreateCheckout(context.Background(), checkoutRequest(), gateway.Credentials{APIKey: "tenant-key", AccessToken: "tenant-token"})

	require.NoError(t, err)
	require.Equal(t, "tenant-key", gotKey)
	require.Equal(t, "Bearer tenant-token", gotAuth)
}

func TestCreateCheckout_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
		case 2:
			writeJSON(w, http.StatusTooManyRequests, `{}`)
		default:
			writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":"CHK_3","url":"u"}}`)
		}
	})

	res, err := client.CreateCheckout(context.Background(), checkoutRequest(), gateway.Credentials{})

	require.NoError(t, err)
	require.Equal(t, "CHK_3", res.ExternalID)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, uint64(2), m.Snapshot()["gateway_retries"])
}

func TestCreateCheckout_ClientErrorIsRejectedWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnprocessableEntity, `{"message":"invalid merchant"}`)
	})

	_, err := client.CreateCheckout(context.Background(), checkoutRequest(), gateway.Credentials{})

	require.True(t, apperr.Is(err, apperr.GatewayRejected))
	require.Equal(t, int32(1), calls.Load())
}

func TestCreateCheckout_BusinessRejectionInEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"failed","message":"merchant disabled"}`)
	})

	_, err := client.CreateCheckout(context.Background(), checkoutRequest(), gateway.Credentials{})

	require.True(t, apperr.Is(err, apperr.GatewayRejected))
	require.Contains(t, err.Error(), "merchant disabled")
}

func TestCreateCheckout_ExhaustedRetriesAreUnavailable(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `{}`)
	})

	_, err := client.CreateCheckout(context.Background(), checkoutRequest(), gateway.Credentials{})

	require.True(t, apperr.Is(err, apperr.GatewayUnavailable))
	require.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(err))
	require.Equal(t, int32(3), calls.Load())
}

func TestGetPayment_ParsesSnapshot(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/payments/CHK_1", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":"CHK_1","reference":"order_1","status":{"code":"200","text":"approved"},"payment_method":{"name":"Visa","type":"card"},"total":100,"currency":"COP"}}`)
	})

	snap, err := client.GetPayment(context.Background(), "CHK_1", gateway.Credentials{})

	require.NoError(t, err)
	require.Equal(t, "CHK_1", snap.ExternalID)
	require.Equal(t, "order_1", snap.Reference)
	require.Equal(t, "200", snap.Status.Code)
	require.Equal(t, "card", snap.PaymentMethod.Type)
	require.True(t, snap.Total.Equal(decimal.NewFromInt(100)))
	require.JSONEq(t, `{"id":"CHK_1","reference":"order_1","status":{"code":"200","text":"approved"},"payment_method":{"name":"Visa","type":"card"},"total":100,"currency":"COP"}`, string(snap.Raw))
}

func TestGetPayment_MissingStatusIsRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":"CHK_1"}}`)
	})

	_, err := client.GetPayment(context.Background(), "CHK_1", gateway.Credentials{})

	require.True(t, apperr.Is(err, apperr.GatewayRejected))
}

func TestGetPayment_RequiresID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called")
	})

	_, err := client.GetPayment(context.Background(), "", gateway.Credentials{})

	require.True(t, apperr.Is(err, apperr.Validation))
}
