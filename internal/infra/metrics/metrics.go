package metrics

import "sync/atomic"

type Counters struct {
	CheckoutsCreated   uint64
	CheckoutsFailed    uint64
	GatewayAttempts    uint64
	GatewayRetries     uint64
	WebhooksProcessed  uint64
	WebhooksDuplicated uint64
	WebhooksFailed     uint64
	PaymentsReconciled uint64
}

func (c *Counters) IncCheckoutCreated() {
	atomic.AddUint64(&c.CheckoutsCreated, 1)
}

func (c *Counters) IncCheckoutFailed() {
	atomic.AddUint64(&c.CheckoutsFailed, 1)
}

func (c *Counters) IncGatewayAttempt() {
	atomic.AddUint64(&c.GatewayAttempts, 1)
}

func (c *Counters) IncGatewayRetry() {
	atomic.AddUint64(&c.GatewayRetries, 1)
}

func (c *Counters) IncWebhookProcessed() {
	atomic.AddUint64(&c.WebhooksProcessed, 1)
}

func (c *Counters) IncWebhookDuplicated() {
	atomic.AddUint64(&c.WebhooksDuplicated, 1)
}

func (c *Counters) IncWebhookFailed() {
	atomic.AddUint64(&c.WebhooksFailed, 1)
}

func (c *Counters) IncReconciled() {
	atomic.AddUint64(&c.PaymentsReconciled, 1)
}

// Snapshot is a consistent-enough copy for the /metrics endpoint.
func (c *Counters) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"checkouts_created":   atomic.LoadUint64(&c.CheckoutsCreated),
		"checkouts_failed":    atomic.LoadUint64(&c.CheckoutsFailed),
		"gateway_attempts":    atomic.LoadUint64(&c.GatewayAttempts),
		"gateway_retries":     atomic.LoadUint64(&c.GatewayRetries),
		"webhooks_processed":  atomic.LoadUint64(&c.WebhooksProcessed),
		"webhooks_duplicated": atomic.LoadUint64(&c.WebhooksDuplicated),
		"webhooks_failed":     atomic.LoadUint64(&c.WebhooksFailed),
		"payments_reconciled": atomic.LoadUint64(&c.PaymentsReconciled),
	}
}
