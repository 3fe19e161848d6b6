package event

type StatusChangedPayload struct {
	PaymentID  string `json:"payment_id"`
	ExternalID string `json:"external_id"`
	Reference  string `json:"reference"`
	FromCode   string `json:"from_code"`
	ToCode     string `json:"to_code"`
	Canonical  string `json:"canonical"`
}

type ApprovedPayload struct {
	PaymentID  string `json:"payment_id"`
	ExternalID string `json:"external_id"`
	Reference  string `json:"reference"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}
