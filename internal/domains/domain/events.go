package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Routing keys for domain lifecycle events.
const (
	EventRegistered        = "domains.domain.registered"
	EventActivationPending = "domains.domain.activation_pending"
	EventActivated         = "domains.domain.activated"
	EventFulfillmentFailed = "domains.fulfillment.failed"
)

// Event is the envelope published on the event bus for domain lifecycle
// changes. Field layout matches what the bus consumers expect.
type Event struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// EventPayload is the domain-specific body of an Event.
type EventPayload struct {
	Domain          string `json:"domain"`
	UserID          string `json:"user_id"`
	Status          string `json:"status"`
	Stage           string `json:"stage,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// NewEvent builds the bus envelope for a record's current state.
func NewEvent(routingKey string, rec *Record, at time.Time) (string, []byte, error) {
	payload, err := json.Marshal(EventPayload{
		Domain:          rec.Domain,
		UserID:          rec.UserID.String(),
		Status:          string(rec.Status),
		Stage:           string(rec.Stage),
		PaymentIntentID: rec.PaymentIntentID,
		FailureReason:   rec.FailureReason,
	})
	if err != nil {
		return "", nil, err
	}
	body, err := json.Marshal(Event{
		EventID:       uuid.New(),
		AggregateID:   rec.ID,
		AggregateType: "domain_record",
		RoutingKey:    routingKey,
		OccurredAt:    at,
		Payload:       payload,
	})
	if err != nil {
		return "", nil, err
	}
	return routingKey, body, nil
}
