package webhook

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

type Customer struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Identification string `json:"identification"`
}

type Data struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Status        payment.Status  `json:"status"`
	PaymentMethod *payment.Method `json:"payment_method,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Created       string          `json:"created,omitempty"`
	Customer      *Customer       `json:"customer,omitempty"`
}

// Event is one status notification, whether pushed by the gateway or
// pulled by the reconciler.
type Event struct {
	Type string `json:"type"`
	Data Data   `json:"data"`
}

func Parse(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, apperr.ValidationErr("malformed webhook payload", map[string]string{"_": err.Error()})
	}
	return evt, nil
}

func (e Event) validate() error {
	fields := map[string]string{}
	if e.Data.ID == "" {
		fields["data.id"] = "is required"
	}
	if e.Data.Status.Code == "" {
		fields["data.status.code"] = "is required"
	}
	if len(fields) > 0 {
		return apperr.ValidationErr("malformed webhook payload", fields)
	}
	return nil
}

type Result string

const (
	Created          Result = "created"
	Processed        Result = "processed"
	AlreadyProcessed Result = "already_processed"
)

type Outcome struct {
	Result  Result
	Payment *payment.Payment
}
