package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/checkout"
	paymentapp "github.com/rcarvalho-pb/checkout_gateway-go/internal/application/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/webhook"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
)

const HeaderSignature = "X-Signature"

type CheckoutCreator interface {
	Create(ctx context.Context, req checkout.Request) (checkout.Response, error)
}

type WebhookProcessor interface {
	ProcessRaw(ctx context.Context, raw []byte) (webhook.Outcome, error)
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, externalID string) (paymentapp.StatusView, error)
}

type Handlers struct {
	Checkouts     CheckoutCreator
	Webhooks      WebhookProcessor
	Payments      StatusChecker
	Metrics       *metrics.Counters
	WebhookSecret string
}

func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, checkout.Response{Success: false, Error: "invalid request body"})
		return
	}

	resp, err := h.Checkouts.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperr.HTTPStatus(err), errorBody(resp, err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func errorBody(resp checkout.Response, err error) gin.H {
	body := gin.H{"success": false, "error": resp.Error}
	if ae, ok := apperr.As(err); ok && len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	return body
}

func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable body"})
		return
	}

	if h.WebhookSecret != "" && !validSignature(h.WebhookSecret, raw, c.GetHeader(HeaderSignature)) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid signature"})
		return
	}

	out, err := h.Webhooks.ProcessRaw(c.Request.Context(), raw)
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperr.HTTPStatus(err), gin.H{"message": publicMessage(err)})
		return
	}

	msg := "webhook processed"
	if out.Result == webhook.AlreadyProcessed {
		msg = "webhook already processed"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handlers) PaymentStatus(c *gin.Context) {
	view, err := h.Payments.CheckStatus(c.Request.Context(), c.Param("externalId"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": publicMessage(err)})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handlers) MetricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.Metrics.Snapshot())
}

// validSignature checks sig as hex(HMAC-SHA256(secret, body)).
func validSignature(secret string, body []byte, sig string) bool {
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, mac(secret, body))
}

func Sign(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}

func publicMessage(err error) string {
	if ae, ok := apperr.As(err); ok && ae.Msg != "" {
		return ae.Msg
	}
	return "internal error"
}
