package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrAlreadyFulfilled is returned by Create when a record already exists
// for the payment intent. The unique index on payment_intent_id is the
// idempotency enforcement point for at-least-once webhook delivery.
var ErrAlreadyFulfilled = errors.New("domains: payment intent already fulfilled")

// ErrDomainHeld is returned by Create when the user already holds a
// non-failed, non-canceled record for the domain.
var ErrDomainHeld = errors.New("domains: domain already held by user")

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("domains: record not found")

// Repository persists domain records.
type Repository interface {
	// Create appends a record. The storage layer enforces uniqueness on
	// payment_intent_id (ErrAlreadyFulfilled) and on the user's live
	// claim to the domain (ErrDomainHeld).
	Create(ctx context.Context, rec *Record) error

	// Update persists mutations to an existing record.
	Update(ctx context.Context, rec *Record) error

	// FindByPaymentIntent returns the record claimed for an intent, or
	// ErrNotFound.
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*Record, error)

	// FindByUserAndDomain returns the user's most recent non-terminal
	// record for the domain, or ErrNotFound.
	FindByUserAndDomain(ctx context.Context, userID uuid.UUID, domain string) (*Record, error)

	// ListByUser returns all of a user's records, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error)

	// ListByStatus returns records in the given status, oldest first.
	// Support tooling uses it to find stuck fulfillments.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error)
}
