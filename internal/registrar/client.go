// Package registrar wraps the domain registrar's availability, pricing
// and registration operations behind a narrow client interface.
package registrar

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Client is the registrar surface consumed by pricing and fulfillment.
type Client interface {
	// CheckAvailability reports whether a domain can be registered and,
	// for premium names, the registry-set price.
	CheckAvailability(ctx context.Context, domain string) (Availability, error)

	// PriceList returns the registrar's per-TLD standard pricing.
	PriceList(ctx context.Context) (PriceList, error)

	// Register purchases the domain. The idempotency key makes retried
	// purchases of the same payment harmless at the registrar.
	Register(ctx context.Context, req RegisterRequest) (Registration, error)
}

// Availability is the normalized result of an availability check.
type Availability struct {
	Domain       string
	Available    bool
	Premium      bool
	PremiumPrice decimal.Decimal
	RegistrarFee decimal.Decimal
}

// TLDPrice is the registrar's standard one-year price for a TLD.
type TLDPrice struct {
	TLD          string
	Price        decimal.Decimal
	RegistrarFee decimal.Decimal
}

// PriceList maps a TLD (without leading dot) to its standard pricing.
type PriceList map[string]TLDPrice

// RegisterRequest describes a registration purchase.
type RegisterRequest struct {
	Domain         string
	Years          int
	IdempotencyKey string
	AutoRenew      bool
}

// Registration is the registrar's confirmation of a purchase.
type Registration struct {
	Domain    string
	OrderID   string
	ExpiresAt string
}

// ErrAlreadyRegistered is returned when the registrar reports the domain
// is already held by this account. Duplicate fulfillment deliveries hit
// this path and must treat it as success, not failure.
var ErrAlreadyRegistered = errors.New("registrar: domain already registered to this account")

// APIError is a non-2xx response from the registrar.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registrar: %s (%s, http %d)", e.Message, e.Code, e.Status)
}
