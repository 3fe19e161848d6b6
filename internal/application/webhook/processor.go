package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/contracts"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
)

type Processor struct {
	repo     payment.Repository
	recorder contracts.EventRecorder
	metrics  *metrics.Counters
	logger   logging.Logger
	newID    func() string
	now      func() time.Time
}

func NewProcessor(repo payment.Repository, recorder contracts.EventRecorder, m *metrics.Counters, logger logging.Logger) *Processor {
	if m == nil {
		m = &metrics.Counters{}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Processor{
		repo:     repo,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) ProcessRaw(ctx context.Context, raw []byte) (Outcome, error) {
	evt, err := Parse(raw)
	if err != nil {
		p.metrics.IncWebhookFailed()
		return Outcome{}, err
	}
	return p.Process(ctx, evt, raw)
}

// Process applies evt at most once in effect. Redeliveries and losers of a
// concurrent race observe the stored state and short-circuit.
func (p *Processor) Process(ctx context.Context, evt Event, raw []byte) (Outcome, error) {
	out, err := p.process(ctx, evt, raw)
	switch {
	case err != nil:
		p.metrics.IncWebhookFailed()
		p.logger.Error("webhook failed", map[string]any{
			"external_id": evt.Data.ID,
			"status_code": evt.Data.Status.Code,
			"kind":        string(apperr.KindOf(err)),
			"error":       err.Error(),
		})
	case out.Result == AlreadyProcessed:
		p.metrics.IncWebhookDuplicated()
		p.logger.Info("webhook already processed", map[string]any{
			"external_id": evt.Data.ID,
			"payment_id":  out.Payment.ID,
		})
	default:
		p.metrics.IncWebhookProcessed()
		p.logger.Info("webhook processed", map[string]any{
			"external_id": evt.Data.ID,
			"payment_id":  out.Payment.ID,
			"result":      string(out.Result),
			"status_code": out.Payment.Status.Code,
		})
	}
	return out, err
}

func (p *Processor) process(ctx context.Context, evt Event, raw []byte) (Outcome, error) {
	if err := evt.validate(); err != nil {
		return Outcome{}, err
	}
	if len(raw) == 0 {
		b, err := json.Marshal(evt.Data)
		if err != nil {
			return Outcome{}, apperr.ValidationErr("unencodable webhook payload", nil)
		}
		raw = b
	}

	current, err := p.find(ctx, evt)
	if err != nil {
		return Outcome{}, err
	}

	if current == nil {
		created, winner, err := p.createFromEvent(ctx, evt, raw)
		if err != nil {
			return Outcome{}, err
		}
		if created {
			return Outcome{Result: Created, Payment: winner}, nil
		}
		current = winner
	}

	if payment.IsTerminalSuccess(current.Status.Code) {
		return Outcome{Result: AlreadyProcessed, Payment: current}, nil
	}

	next := payment.Normalize(evt.Data.Status.Code, evt.Data.Status.Text)
	update := payment.StatusUpdate{
		Status:        next,
		PaymentMethod: evt.Data.PaymentMethod,
		PaymentData:   json.RawMessage(raw),
		ExternalID:    evt.Data.ID,
	}

	ok, err := p.repo.TransitionStatus(ctx, current.ID, current.Status.Code, update)
	if err != nil {
		if errors.Is(err, payment.ErrDuplicate) {
			return Outcome{}, apperr.ConflictErr("external id already bound to another payment")
		}
		return Outcome{}, apperr.PersistenceErr(err)
	}

	if !ok {
		latest, err := p.repo.FindByID(ctx, current.ID)
		if err != nil {
			return Outcome{}, apperr.PersistenceErr(err)
		}
		if payment.IsTerminalSuccess(latest.Status.Code) {
			return Outcome{Result: AlreadyProcessed, Payment: latest}, nil
		}
		return Outcome{}, apperr.ConflictErr("concurrent status update, retry delivery")
	}

	updated := current.Clone()
	updated.Apply(update, p.now())
	p.recordTransition(ctx, updated, current.Status.Code)

	return Outcome{Result: Processed, Payment: updated}, nil
}

// find resolves the payment by external id, falling back to the order
// reference for payments not yet bound to a different checkout.
func (p *Processor) find(ctx context.Context, evt Event) (*payment.Payment, error) {
	found, err := p.repo.FindByExternalID(ctx, evt.Data.ID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, payment.ErrPaymentNotFound) {
		return nil, apperr.PersistenceErr(err)
	}

	if evt.Data.Reference == "" {
		return nil, nil
	}

	found, err = p.repo.FindByReference(ctx, evt.Data.Reference)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.PersistenceErr(err)
	}
	if found.ExternalID != "" && found.ExternalID != evt.Data.ID {
		return nil, nil
	}
	return found, nil
}

// createFromEvent covers webhooks that arrive before (or without) the
// checkout that should have created the payment. When another delivery wins
// the insert, the stored payment is returned with created=false.
func (p *Processor) createFromEvent(ctx context.Context, evt Event, raw []byte) (bool, *payment.Payment, error) {
	np := &payment.Payment{
		ID:            p.newID(),
		ExternalID:    evt.Data.ID,
		Reference:     evt.Data.Reference,
		Amount:        evt.Data.Total,
		Currency:      evt.Data.Currency,
		Status:        payment.Normalize(evt.Data.Status.Code, evt.Data.Status.Text),
		PaymentMethod: evt.Data.PaymentMethod,
		PaymentData:   json.RawMessage(raw),
	}
	if evt.Data.Customer != nil {
		np.User = evt.Data.Customer.Email
	}

	created, err := p.repo.CreateIfAbsent(ctx, np)
	if err != nil {
		return false, nil, apperr.PersistenceErr(err)
	}

	if created {
		p.logger.Warn("payment created from webhook", map[string]any{
			"payment_id":  np.ID,
			"external_id": np.ExternalID,
			"reference":   np.Reference,
		})
		p.recordTransition(ctx, np, "")
		return true, np, nil
	}

	winner, err := p.repo.FindByExternalID(ctx, evt.Data.ID)
	if err != nil {
		return false, nil, apperr.PersistenceErr(err)
	}
	return false, winner, nil
}

// recordTransition writes outbox events for a status change. Failures are
// logged only; the transition itself is already committed.
func (p *Processor) recordTransition(ctx context.Context, after *payment.Payment, fromCode string) {
	if p.recorder == nil || after.Status.Code == fromCode {
		return
	}

	canonical := payment.MapStatus(after.Status.Code)
	events := []event.Event{{
		Type: event.PaymentStatusChanged,
		Payload: event.StatusChangedPayload{
			PaymentID:  after.ID,
			ExternalID: after.ExternalID,
			Reference:  after.Reference,
			FromCode:   fromCode,
			ToCode:     after.Status.Code,
			Canonical:  string(canonical),
		},
	}}
	if canonical == payment.Approved {
		events = append(events, event.Event{
			Type: event.PaymentApproved,
			Payload: event.ApprovedPayload{
				PaymentID:  after.ID,
				ExternalID: after.ExternalID,
				Reference:  after.Reference,
				Amount:     after.Amount.String(),
				Currency:   after.Currency,
			},
		})
	}

	for _, evt := range events {
		if err := p.recorder.Record(ctx, evt); err != nil {
			p.logger.Error("outbox record failed", map[string]any{
				"payment_id": after.ID,
				"event_type": string(evt.Type),
				"error":      err.Error(),
			})
		}
	}
}
