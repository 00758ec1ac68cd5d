// Package application orchestrates checkout: quote the domain, apply
// the best voucher, and open a payment session whose confirmation
// webhook later drives fulfillment.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	"github.com/craftfolio/craftfolio/internal/pricing"
	voucherdomain "github.com/craftfolio/craftfolio/internal/vouchers/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDomainUnavailable is returned when checkout is attempted for a
// domain that cannot be registered.
var ErrDomainUnavailable = errors.New("checkout: domain is not available")

// Quoter prices a domain.
type Quoter interface {
	Quote(ctx context.Context, domain string) (pricing.Quote, error)
}

// VoucherApplier discounts a price with the user's grants.
type VoucherApplier interface {
	ApplyBest(ctx context.Context, userID uuid.UUID, price decimal.Decimal) (decimal.Decimal, *voucherdomain.UserVoucher, error)
	ApplyGrant(ctx context.Context, userID, grantID uuid.UUID, price decimal.Decimal) (decimal.Decimal, *voucherdomain.UserVoucher, error)
}

// SessionParams describes the payment session to open. The metadata
// fields round-trip through the payment provider and come back on the
// confirmation webhook; they are the only link between the charge and
// the fulfillment it pays for.
type SessionParams struct {
	AmountCents    int64
	Domain         string
	UserID         uuid.UUID
	VoucherGrantID *uuid.UUID
}

// Session is an open payment session.
type Session struct {
	ID  string
	URL string
}

// PaymentProvider opens payment sessions.
type PaymentProvider interface {
	CreateSession(ctx context.Context, params SessionParams) (Session, error)
}

// Fulfiller runs the fulfillment saga. Checkout invokes it directly
// only for fully discounted purchases, where no payment webhook will
// ever arrive.
type Fulfiller interface {
	Handle(ctx context.Context, req domainsapp.FulfillmentRequest) error
}

// CheckoutResult is what the API returns to the client.
type CheckoutResult struct {
	// URL is where the client completes payment. For a fully
	// discounted checkout it is the success URL: fulfillment already
	// started and there is nothing to pay.
	URL string
	// AmountCents is the charge after discounts.
	AmountCents int64
	Free        bool
}

// Orchestrator drives a checkout from quote to open payment session.
type Orchestrator struct {
	quoter     Quoter
	vouchers   VoucherApplier
	payments   PaymentProvider
	fulfiller  Fulfiller
	successURL string
	logger     *slog.Logger
}

// NewOrchestrator creates a checkout orchestrator. successURL is where
// fully discounted checkouts land without a payment session.
func NewOrchestrator(quoter Quoter, vouchers VoucherApplier, payments PaymentProvider, fulfiller Fulfiller, successURL string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		quoter:     quoter,
		vouchers:   vouchers,
		payments:   payments,
		fulfiller:  fulfiller,
		successURL: successURL,
		logger:     logger,
	}
}

// CreateCheckout quotes the domain, applies the requested voucher (or
// the user's best one), and opens a payment session. Voucher problems
// never block a purchase: the checkout degrades to full price.
func (o *Orchestrator) CreateCheckout(ctx context.Context, userID uuid.UUID, domain string, voucherGrantID *uuid.UUID) (CheckoutResult, error) {
	quote, err := o.quoter.Quote(ctx, domain)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !quote.Available {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrDomainUnavailable, quote.Domain)
	}

	total, grant := o.applyVoucher(ctx, userID, voucherGrantID, quote.TotalPrice)
	cents := total.Shift(2).Round(0).IntPart()

	var grantID *uuid.UUID
	if grant != nil {
		id := grant.ID
		grantID = &id
	}

	if cents == 0 && grant != nil {
		return o.fulfillFree(ctx, userID, quote.Domain, grant)
	}

	session, err := o.payments.CreateSession(ctx, SessionParams{
		AmountCents:    cents,
		Domain:         quote.Domain,
		UserID:         userID,
		VoucherGrantID: grantID,
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create payment session for %s: %w", quote.Domain, err)
	}
	o.logger.Info("checkout session created",
		"domain", quote.Domain, "user_id", userID, "amount_cents", cents, "session_id", session.ID)
	return CheckoutResult{URL: session.URL, AmountCents: cents}, nil
}

func (o *Orchestrator) applyVoucher(ctx context.Context, userID uuid.UUID, grantID *uuid.UUID, price decimal.Decimal) (decimal.Decimal, *voucherdomain.UserVoucher) {
	if o.vouchers == nil {
		return price, nil
	}
	var (
		total decimal.Decimal
		grant *voucherdomain.UserVoucher
		err   error
	)
	if grantID != nil {
		total, grant, err = o.vouchers.ApplyGrant(ctx, userID, *grantID, price)
	} else {
		total, grant, err = o.vouchers.ApplyBest(ctx, userID, price)
	}
	if err != nil {
		o.logger.Warn("voucher could not be applied, charging full price", "user_id", userID, "error", err)
		return price, nil
	}
	return total, grant
}

// fulfillFree starts fulfillment for a fully discounted purchase. The
// synthetic payment intent ID keeps the saga's idempotency: redeeming
// the same grant twice claims the same record.
func (o *Orchestrator) fulfillFree(ctx context.Context, userID uuid.UUID, domain string, grant *voucherdomain.UserVoucher) (CheckoutResult, error) {
	grantID := grant.ID
	req := domainsapp.FulfillmentRequest{
		Domain:          domain,
		UserID:          userID,
		PaymentIntentID: "voucher_" + grantID.String(),
		VoucherGrantID:  &grantID,
	}
	if err := o.fulfiller.Handle(ctx, req); err != nil {
		return CheckoutResult{}, fmt.Errorf("fulfill free checkout for %s: %w", domain, err)
	}
	o.logger.Info("free checkout fulfilled directly", "domain", domain, "user_id", userID, "grant_id", grantID)
	return CheckoutResult{URL: o.successURL, Free: true}, nil
}
