package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/retry"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
)

const (
	checkoutsPath = "/v1/checkouts"
	paymentPath   = "/v1/payments/{id}"

	envelopeSuccess = "success"
)

type Config struct {
	BaseURL     string
	Credentials Credentials
	Retry       retry.Policy
}

type Client struct {
	http     *resty.Client
	defaults Credentials
	policy   retry.Policy
	metrics  *metrics.Counters
	logger   logging.Logger
}

func NewClient(cfg Config, m *metrics.Counters, logger logging.Logger) *Client {
	if m == nil {
		m = &metrics.Counters{}
	}
	if logger == nil {
		logger = logging.Nop{}
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		defaults: cfg.Credentials,
		policy:   cfg.Retry,
		metrics:  m,
		logger:   logger,
	}
}

func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest, creds Credentials) (CheckoutResult, error) {
	result, err := retry.Do(ctx, c.retryPolicy("create_checkout", req.Reference), func(ctx context.Context) (CheckoutResult, error) {
		c.metrics.IncGatewayAttempt()

		resp, err := c.request(ctx, creds).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post(checkoutsPath)
		if err := classify("create checkout", resp, err); err != nil {
			return CheckoutResult{}, err
		}

		data, _, err := decodeEnvelope[checkoutData]("create checkout", resp.Body())
		if err != nil {
			return CheckoutResult{}, err
		}
		if data.ID == "" || data.URL == "" {
			return CheckoutResult{}, apperr.RejectedErr("create checkout: response missing id or url", nil)
		}

		return CheckoutResult{
			ExternalID:  data.ID,
			URL:         data.URL,
			RedirectURL: data.RedirectURL,
		}, nil
	})
	if err != nil {
		return CheckoutResult{}, c.finalError("create_checkout", err)
	}
	return result, nil
}

// GetPayment is read-only, so retrying it is always safe.
func (c *Client) GetPayment(ctx context.Context, externalID string, creds Credentials) (Snapshot, error) {
	if externalID == "" {
		return Snapshot{}, apperr.ValidationErr("external id is required", nil)
	}

	snap, err := retry.Do(ctx, c.retryPolicy("get_payment", externalID), func(ctx context.Context) (Snapshot, error) {
		c.metrics.IncGatewayAttempt()

		resp, err := c.request(ctx, creds).
			SetPathParam("id", externalID).
			Get(paymentPath)
		if err := classify("get payment", resp, err); err != nil {
			return Snapshot{}, err
		}

		data, raw, err := decodeEnvelope[paymentData]("get payment", resp.Body())
		if err != nil {
			return Snapshot{}, err
		}
		if data.ID == "" || data.Status.Code == "" {
			return Snapshot{}, apperr.RejectedErr("get payment: response missing id or status", nil)
		}

		return Snapshot{
			ExternalID:    data.ID,
			Reference:     data.Reference,
			Status:        data.Status,
			PaymentMethod: data.PaymentMethod,
			Total:         data.Total,
			Currency:      data.Currency,
			Raw:           raw,
		}, nil
	})
	if err != nil {
		return Snapshot{}, c.finalError("get_payment", err)
	}
	return snap, nil
}

func (c *Client) request(ctx context.Context, creds Credentials) *resty.Request {
	if creds.IsZero() {
		creds = c.defaults
	}

	req := c.http.R().SetContext(ctx)
	if creds.APIKey != "" {
		req.SetHeader("X-Api-Key", creds.APIKey)
	}
	if creds.AccessToken != "" {
		req.SetAuthToken(creds.AccessToken)
	}
	return req
}

func (c *Client) retryPolicy(op, key string) retry.Policy {
	p := c.policy
	next := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.metrics.IncGatewayRetry()
		c.logger.Warn("gateway call failed, retrying", map[string]any{
			"op":      op,
			"key":     key,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return p
}

func (c *Client) finalError(op string, err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		c.logger.Error("gateway unavailable", map[string]any{
			"op":       op,
			"attempts": exhausted.Attempts,
			"error":    exhausted.Err.Error(),
		})
		return apperr.UnavailableErr(err)
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.UnavailableErr(err)
}

// classify maps one HTTP exchange onto the gateway error kinds.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return apperr.TransientErr(op+": transport", err)
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return apperr.TransientErr(fmt.Sprintf("%s: gateway returned %d", op, code), nil)
	case code >= http.StatusBadRequest:
		return apperr.RejectedErr(fmt.Sprintf("%s: gateway returned %d: %s", op, code, truncate(resp.String(), 200)), nil)
	}
	return nil
}

// decodeEnvelope unwraps {status, message, data}. A non-success status is a
// business rejection.
func decodeEnvelope[T any](op string, body []byte) (T, json.RawMessage, error) {
	var zero T

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, nil, apperr.RejectedErr(op+": malformed response", err)
	}
	if env.Status != envelopeSuccess {
		return zero, nil, apperr.RejectedErr(fmt.Sprintf("%s: %s", op, env.Message), nil)
	}

	var data T
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return zero, nil, apperr.RejectedErr(op+": malformed data", err)
	}
	return data, append(json.RawMessage(nil), env.Data...), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
