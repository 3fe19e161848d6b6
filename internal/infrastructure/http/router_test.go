package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/checkout"
	paymentapp "github.com/rcarvalho-pb/checkout_gateway-go/internal/application/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/webhook"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
	httpapi "github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/http"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/inmemory"
)

type fakeGateway struct {
	createFn func(gateway.CheckoutRequest) (gateway.CheckoutResult, error)
}

func (f *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest, _ gateway.Credentials) (gateway.CheckoutResult, error) {
	return f.createFn(req)
}

const checkoutBody = `{
	"orderData": {"total": 100, "description": "Concert tickets", "reference": "order_1"},
	"customerData": {"email": "buyer@example.com", "name": "Ana"},
	"items": [{"productId": "sku-1", "name": "Ticket", "quantity": 2, "price": 50}]
}`

const approvedWebhook = `{"type":"payment","data":{"id":"CHK_1","reference":"order_1","status":{"code":"200","text":"approved"},"total":100,"currency":"COP"}}`

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, secret string) (*gin.Engine, *metrics.Counters) {
	t.Helper()
	repo := inmemory.NewPaymentRepository()
	m := &metrics.Counters{}
	gw := &fakeGateway{createFn: func(gateway.CheckoutRequest) (gateway.CheckoutResult, error) {
		return gateway.CheckoutResult{ExternalID: "CHK_1", URL: "https://pay.example/CHK_1"}, nil
	}}

	h := &httpapi.Handlers{
		Checkouts:     checkout.NewService(repo, gw, checkout.Config{DefaultCurrency: "COP"}, m, logging.Nop{}),
		Webhooks:      webhook.NewProcessor(repo, nil, m, logging.Nop{}),
		Payments:      &paymentapp.Service{Repo: repo},
		Metrics:       m,
		WebhookSecret: secret,
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return httpapi.NewRouter(h, httpapi.RouterConfig{Logger: logger}), m
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCheckout_ReturnsGatewayCheckout(t *testing.T) {
	r, _ := newRouter(t, "")

	w := do(r, http.MethodPost, "/checkouts", checkoutBody, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, true, body["success"])
	require.Equal(t, "CHK_1", body["data"].(map[string]any)["id"])
	require.NotEmpty(t, w.Header().Get(httpapi.HeaderRequestID))
}

func TestCheckout_InvalidInputIs400(t *testing.T) {
	r, _ := newRouter(t, "")

	w := do(r, http.MethodPost, "/checkouts", `{"orderData":{"total":0,"reference":"order_1"},"customerData":{"email":"a@b.co"},"items":[{"name":"x","quantity":1,"price":1}]}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["fields"], "orderData.total")
}

func TestCheckout_MalformedJSONIs400(t *testing.T) {
	r, _ := newRouter(t, "")

	w := do(r, http.MethodPost, "/checkouts", `{"orderData":`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_DoubleDelivery(t *testing.T) {
	r, m := newRouter(t, "")

	first := do(r, http.MethodPost, "/webhooks/payments", approvedWebhook, nil)
	second := do(r, http.MethodPost, "/webhooks/payments", approvedWebhook, nil)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "webhook processed", decode(t, first)["message"])
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "webhook already processed", decode(t, second)["message"])
	require.Equal(t, uint64(1), m.Snapshot()["webhooks_duplicated"])
}

func TestWebhook_MalformedPayloadIs400(t *testing.T) {
	r, _ := newRouter(t, "")

	w := do(r, http.MethodPost, "/webhooks/payments", `{"data":{"status":{}}}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_SignatureIsChecked(t *testing.T) {
	r, _ := newRouter(t, "s3cret")

	bad := do(r, http.MethodPost, "/webhooks/payments", approvedWebhook, map[string]string{httpapi.HeaderSignature: "deadbeef"})
	missing := do(r, http.MethodPost, "/webhooks/payments", approvedWebhook, nil)
	good := do(r, http.MethodPost, "/webhooks/payments", approvedWebhook, map[string]string{
		httpapi.HeaderSignature: httpapi.Sign("s3cret", []byte(approvedWebhook)),
	})

	require.Equal(t, http.StatusUnauthorized, bad.Code)
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	require.Equal(t, http.StatusOK, good.Code)
}

func TestPaymentStatus(t *testing.T) {
	r, _ := newRouter(t, "")
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/checkouts", checkoutBody, nil).Code)

	w := do(r, http.MethodGet, "/payments/CHK_1/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "CHK_1", body["id"])
	require.Equal(t, "created", body["canonicalStatus"])

	missing := do(r, http.MethodGet, "/payments/CHK_404/status", "", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestPingAndMetrics(t *testing.T) {
	r, _ := newRouter(t, "")

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping", "", nil).Code)

	w := do(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, decode(t, w), "checkouts_created")
}

func TestRecovery_PanicIs500(t *testing.T) {
	r, _ := newRouter(t, "")
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/boom", "", nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPaymentStatus_ReportsMethodFromWebhook(t *testing.T) {
	r, _ := newRouter(t, "")
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/checkouts", checkoutBody, nil).Code)

	hook := `{"type":"payment.approved","data":{"id":"CHK_1","reference":"order_1","status":{"code":"200","text":"approved"},"payment_method":{"name":"Visa","type":"card"},"total":100,"currency":"COP"}}`
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/webhooks/payments", hook, nil).Code)

	w := do(r, http.MethodGet, "/payments/CHK_1/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"name": "Visa", "type": "card"}, decode(t, w)["paymentMethod"])
}
