package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
)

type Order struct {
	Total       decimal.Decimal `json:"total" validate:"gt=0"`
	Description string          `json:"description"`
	Reference   string          `json:"reference" validate:"required,max=128"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type Customer struct {
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name"`
	Identification string `json:"identification"`
}

type Item struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	ShopName    string          `json:"shopName"`
}

type Credentials struct {
	GatewayAPIKey      string `json:"gatewayApiKey"`
	GatewayAccessToken string `json:"gatewayAccessToken"`
}

type Request struct {
	UserID      string       `json:"userId"`
	Order       Order        `json:"orderData"`
	Customer    Customer     `json:"customerData"`
	Items       []Item       `json:"items" validate:"required,min=1,dive"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

func (r Request) gatewayCredentials() gateway.Credentials {
	if r.Credentials == nil {
		return gateway.Credentials{}
	}
	return gateway.Credentials{
		APIKey:      r.Credentials.GatewayAPIKey,
		AccessToken: r.Credentials.GatewayAccessToken,
	}
}

type Data struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	RedirectURL string `json:"redirectUrl"`
}

type Response struct {
	Success bool   `json:"success"`
	Data    *Data  `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
