package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type Method struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Item struct {
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	ProductName string          `json:"productName"`
	ShopName    string          `json:"shopName"`
}

type Payment struct {
	ID            string
	User          string
	ExternalID    string
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Status        Status
	PaymentMethod *Method
	PaymentData   json.RawMessage
	Items         []Item
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusUpdate carries every field a webhook transition may touch. Amount,
// currency and items are fixed at creation.
type StatusUpdate struct {
	Status        Status
	PaymentMethod *Method
	PaymentData   json.RawMessage
	ExternalID    string // only written when the stored payment has none yet
}

func (p *Payment) IsApproved() bool {
	return IsTerminalSuccess(p.Status.Code)
}

// Apply copies the mutable fields of u onto p. Repositories call it inside
// their compare-and-set so every store applies the same rules.
func (p *Payment) Apply(u StatusUpdate, now time.Time) {
	p.Status = u.Status
	if u.PaymentMethod != nil {
		p.PaymentMethod = u.PaymentMethod
	}
	if len(u.PaymentData) > 0 {
		p.PaymentData = u.PaymentData
	}
	if p.ExternalID == "" && u.ExternalID != "" {
		p.ExternalID = u.ExternalID
	}
	p.UpdatedAt = now
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p
	if p.PaymentMethod != nil {
		m := *p.PaymentMethod
		cp.PaymentMethod = &m
	}
	if p.PaymentData != nil {
		cp.PaymentData = append(json.RawMessage(nil), p.PaymentData...)
	}
	if p.Items != nil {
		cp.Items = append([]Item(nil), p.Items...)
	}
	return &cp
}
