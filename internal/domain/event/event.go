package event

import (
	"encoding/json"
	"fmt"
)

type Type string

const (
	PaymentStatusChanged Type = "PAYMENT_STATUS_CHANGED"
	PaymentApproved      Type = "PAYMENT_APPROVED"
)

type Event struct {
	Type    Type
	Payload any
}

// DecodePayload rebuilds the typed payload of an event read back from the outbox.
func DecodePayload(t Type, raw []byte) (any, error) {
	switch t {
	case PaymentStatusChanged:
		var p StatusChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PaymentApproved:
		var p ApprovedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown event type %q", t)
}

// Key groups events of one payment, e.g. as a Kafka partition key.
func (e Event) Key() string {
	switch p := e.Payload.(type) {
	case StatusChangedPayload:
		return firstNonEmpty(p.ExternalID, p.PaymentID)
	case ApprovedPayload:
		return firstNonEmpty(p.ExternalID, p.PaymentID)
	}
	return string(e.Type)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
