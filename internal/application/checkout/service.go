package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
)

type Gateway interface {
	CreateCheckout(ctx context.Context, req gateway.CheckoutRequest, creds gateway.Credentials) (gateway.CheckoutResult, error)
}

// CredentialRecorder keeps the credentials a checkout was opened with, so
// later gateway reads for that payment use the same account.
type CredentialRecorder interface {
	Remember(externalID string, creds gateway.Credentials)
}

type Config struct {
	DefaultCurrency string
	RedirectURL     string
	WebhookURL      string
	Credentials     CredentialRecorder
}

type Service struct {
	repo      payment.Repository
	gateway   Gateway
	cfg       Config
	validator *validator.Validate
	group     singleflight.Group
	metrics   *metrics.Counters
	logger    logging.Logger
	newID     func() string
}

func NewService(repo payment.Repository, gw Gateway, cfg Config, m *metrics.Counters, logger logging.Logger) *Service {
	if m == nil {
		m = &metrics.Counters{}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Service{
		repo:      repo,
		gateway:   gw,
		cfg:       cfg,
		validator: newValidator(),
		metrics:   m,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Create validates req, opens a checkout on the gateway and records the
// payment as created. Identical concurrent requests share one gateway call.
func (s *Service) Create(ctx context.Context, req Request) (Response, error) {
	if err := s.validate(&req); err != nil {
		s.metrics.IncCheckoutFailed()
		return failure(err), err
	}

	creds := req.gatewayCredentials()

	v, err, shared := s.group.Do(flightKey(req), func() (any, error) {
		return s.create(context.WithoutCancel(ctx), req, creds)
	})
	if err != nil {
		s.metrics.IncCheckoutFailed()
		s.logger.Error("checkout failed", map[string]any{
			"reference": req.Order.Reference,
			"kind":      string(apperr.KindOf(err)),
			"error":     err.Error(),
		})
		return failure(err), err
	}

	data := v.(Data)
	if shared {
		s.logger.Info("checkout request coalesced", map[string]any{
			"reference":   req.Order.Reference,
			"external_id": data.ID,
		})
	}
	return Response{Success: true, Data: &data}, nil
}

func (s *Service) create(ctx context.Context, req Request, creds gateway.Credentials) (Data, error) {
	currency := req.Order.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	res, err := s.gateway.CreateCheckout(ctx, s.gatewayRequest(req, currency), creds)
	if err != nil {
		return Data{}, err
	}
	if s.cfg.Credentials != nil {
		s.cfg.Credentials.Remember(res.ExternalID, creds)
	}

	p := &payment.Payment{
		ID:         s.newID(),
		User:       req.UserID,
		ExternalID: res.ExternalID,
		Reference:  req.Order.Reference,
		Amount:     req.Order.Total,
		Currency:   currency,
		Status:     payment.CreatedStatus(),
		Items:      paymentItems(req.Items),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if !errors.Is(err, payment.ErrDuplicate) {
			return Data{}, apperr.PersistenceErr(err)
		}
		// a webhook for this checkout already created the payment
		s.logger.Warn("payment already recorded for checkout", map[string]any{
			"reference":   p.Reference,
			"external_id": p.ExternalID,
		})
	}

	s.metrics.IncCheckoutCreated()
	s.logger.Info("checkout created", map[string]any{
		"payment_id":  p.ID,
		"reference":   p.Reference,
		"external_id": p.ExternalID,
		"amount":      p.Amount.String(),
	})

	return Data{
		ID:          res.ExternalID,
		URL:         res.URL,
		RedirectURL: res.RedirectURL,
	}, nil
}

// flightKey identifies requests that match in every field, credentials
// included, so only true duplicates share one gateway call.
func flightKey(req Request) string {
	b, err := json.Marshal(req)
	if err != nil {
		b = []byte(uuid.NewString())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *Service) gatewayRequest(req Request, currency string) gateway.CheckoutRequest {
	items := make([]gateway.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, gateway.LineItem{
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}

	return gateway.CheckoutRequest{
		Amount:      req.Order.Total,
		Currency:    currency,
		Description: req.Order.Description,
		Reference:   req.Order.Reference,
		Customer: gateway.Customer{
			Email:          req.Customer.Email,
			Name:           req.Customer.Name,
			Identification: req.Customer.Identification,
		},
		Items:       items,
		RedirectURL: s.cfg.RedirectURL,
		WebhookURL:  s.cfg.WebhookURL,
	}
}

func paymentItems(items []Item) []payment.Item {
	out := make([]payment.Item, 0, len(items))
	for _, it := range items {
		out = append(out, payment.Item{
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			ProductName: it.Name,
			ShopName:    it.ShopName,
		})
	}
	return out
}

func failure(err error) Response {
	msg := err.Error()
	if ae, ok := apperr.As(err); ok && ae.Msg != "" {
		msg = ae.Msg
	}
	return Response{Success: false, Error: msg}
}
