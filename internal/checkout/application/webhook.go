package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	"github.com/google/uuid"
)

// ErrBadSignature is returned when a webhook payload fails signature
// verification. The API maps it to 400; everything else acks 200 so the
// provider stops redelivering.
var ErrBadSignature = errors.New("checkout: webhook signature verification failed")

// WebhookEvent is a provider event after signature verification.
type WebhookEvent struct {
	ID   string
	Type string
	Data json.RawMessage
}

// WebhookVerifier authenticates a raw webhook payload.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (WebhookEvent, error)
}

// EventStore records which provider events were already dispatched.
type EventStore interface {
	// MarkProcessed records the event ID. It returns false when the ID
	// was seen before.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// eventCheckoutCompleted is the provider event that confirms payment.
const eventCheckoutCompleted = "checkout.session.completed"

// completedSession is the slice of the provider's session object the
// dispatcher needs.
type completedSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// WebhookProcessor verifies, dedupes and dispatches payment webhooks.
// Dispatch is asynchronous: the provider gets its 200 as soon as the
// event is recorded, and the saga runs on its own clock.
type WebhookProcessor struct {
	verifier  WebhookVerifier
	events    EventStore
	fulfiller Fulfiller
	logger    *slog.Logger

	// dispatch is swapped in tests to run synchronously.
	dispatch func(req domainsapp.FulfillmentRequest)
}

// NewWebhookProcessor creates a processor.
func NewWebhookProcessor(verifier WebhookVerifier, events EventStore, fulfiller Fulfiller, logger *slog.Logger) *WebhookProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &WebhookProcessor{
		verifier:  verifier,
		events:    events,
		fulfiller: fulfiller,
		logger:    logger,
	}
	p.dispatch = func(req domainsapp.FulfillmentRequest) {
		go func() {
			if err := p.fulfiller.Handle(context.Background(), req); err != nil {
				p.logger.Error("fulfillment failed after webhook ack",
					"payment_intent_id", req.PaymentIntentID, "domain", req.Domain, "error", err)
			}
		}()
	}
	return p
}

// Process handles one raw webhook delivery. A nil return means the
// caller should ack with 200, including for duplicate and irrelevant
// events.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := p.verifier.Verify(payload, signature)
	if err != nil {
		p.logger.Warn("webhook signature rejected", "error", err)
		return ErrBadSignature
	}

	fresh, err := p.events.MarkProcessed(ctx, event.ID, event.Type)
	if err != nil {
		return err
	}
	if !fresh {
		p.logger.Info("duplicate webhook event ignored", "event_id", event.ID, "type", event.Type)
		return nil
	}

	if event.Type != eventCheckoutCompleted {
		p.logger.Debug("ignoring webhook event type", "event_id", event.ID, "type", event.Type)
		return nil
	}

	req, err := fulfillmentFromEvent(event)
	if err != nil {
		// Malformed metadata cannot be fixed by redelivery. Log loud,
		// ack anyway.
		p.logger.Error("cannot extract fulfillment from webhook event", "event_id", event.ID, "error", err)
		return nil
	}

	p.dispatch(req)
	return nil
}

func fulfillmentFromEvent(event WebhookEvent) (domainsapp.FulfillmentRequest, error) {
	var session completedSession
	if err := json.Unmarshal(event.Data, &session); err != nil {
		return domainsapp.FulfillmentRequest{}, err
	}
	if session.PaymentIntent == "" {
		return domainsapp.FulfillmentRequest{}, errors.New("event has no payment intent")
	}
	userID, err := uuid.Parse(session.Metadata["user_id"])
	if err != nil {
		return domainsapp.FulfillmentRequest{}, errors.New("event metadata has no valid user_id")
	}
	name := session.Metadata["domain"]
	if name == "" {
		return domainsapp.FulfillmentRequest{}, errors.New("event metadata has no domain")
	}

	req := domainsapp.FulfillmentRequest{
		Domain:          name,
		UserID:          userID,
		PaymentIntentID: session.PaymentIntent,
	}
	if raw := session.Metadata["voucher_grant_id"]; raw != "" {
		if grantID, err := uuid.Parse(raw); err == nil {
			req.VoucherGrantID = &grantID
		}
	}
	return req, nil
}
