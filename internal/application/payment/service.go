package payment

import (
	"context"
	"errors"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

type Service struct {
	Repo payment.Repository
}

type StatusView struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Status        payment.Status  `json:"status"`
	Canonical     string          `json:"canonicalStatus"`
	PaymentMethod *payment.Method `json:"paymentMethod,omitempty"`
	Amount        string          `json:"amount"`
	Currency      string          `json:"currency"`
}

// CheckStatus reads the stored status of the payment for a gateway id.
// It never calls the gateway.
func (s *Service) CheckStatus(ctx context.Context, externalID string) (StatusView, error) {
	if externalID == "" {
		return StatusView{}, apperr.ValidationErr("external id is required", nil)
	}

	p, err := s.Repo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return StatusView{}, apperr.NotFoundErr("payment not found")
		}
		return StatusView{}, apperr.PersistenceErr(err)
	}

	return StatusView{
		ID:            p.ExternalID,
		Reference:     p.Reference,
		Status:        p.Status,
		Canonical:     string(payment.MapStatus(p.Status.Code)),
		PaymentMethod: p.PaymentMethod,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
	}, nil
}
