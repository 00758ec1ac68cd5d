// Package stripepay implements the checkout payment provider and
// webhook verifier on Stripe.
package stripepay

import (
	"context"
	"fmt"

	"github.com/craftfolio/craftfolio/internal/checkout/application"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Config holds the Stripe credentials and redirect URLs.
type Config struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Provider opens Stripe checkout sessions in payment mode. The domain,
// user and voucher ride in the session and payment-intent metadata so
// the confirmation webhook can reconstruct the fulfillment request.
type Provider struct {
	cfg Config
}

// NewProvider configures the Stripe client and returns a provider.
func NewProvider(cfg Config) *Provider {
	stripe.Key = cfg.APIKey
	return &Provider{cfg: cfg}
}

// CreateSession opens a one-time payment session for a domain purchase.
func (p *Provider) CreateSession(ctx context.Context, params application.SessionParams) (application.Session, error) {
	metadata := map[string]string{
		"domain":  params.Domain,
		"user_id": params.UserID.String(),
	}
	if params.VoucherGrantID != nil {
		metadata["voucher_grant_id"] = params.VoucherGrantID.String()
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.cfg.SuccessURL),
		CancelURL:  stripe.String(p.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Domain registration: %s", params.Domain)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	sessionParams.Context = ctx

	sess, err := session.New(sessionParams)
	if err != nil {
		return application.Session{}, fmt.Errorf("stripe session: %w", err)
	}
	return application.Session{ID: sess.ID, URL: sess.URL}, nil
}

// Verifier authenticates Stripe webhook payloads.
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the endpoint's signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the raw payload.
func (v *Verifier) Verify(payload []byte, signature string) (application.WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, v.secret)
	if err != nil {
		return application.WebhookEvent{}, err
	}
	return application.WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Data: event.Data.Raw,
	}, nil
}
