package gateway

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

// Credentials are sent with every call. A zero value means "use the
// client's defaults".
type Credentials struct {
	APIKey      string
	AccessToken string
}

func (c Credentials) IsZero() bool {
	return c.APIKey == "" && c.AccessToken == ""
}

type Customer struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	Identification string `json:"identification,omitempty"`
}

type LineItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type CheckoutRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference"`
	Customer    Customer        `json:"customer"`
	Items       []LineItem      `json:"items"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	WebhookURL  string          `json:"webhookUrl,omitempty"`
}

type CheckoutResult struct {
	ExternalID  string
	URL         string
	RedirectURL string
}

// Snapshot is the gateway's current view of one payment.
type Snapshot struct {
	ExternalID    string
	Reference     string
	Status        payment.Status
	PaymentMethod *payment.Method
	Total         decimal.Decimal
	Currency      string
	Raw           json.RawMessage
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type checkoutData struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	RedirectURL string `json:"redirectUrl"`
}

type paymentData struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Status        payment.Status  `json:"status"`
	PaymentMethod *payment.Method `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
}
