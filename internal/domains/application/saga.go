// Package application orchestrates domain fulfillment: the payment-to
// -live-domain saga, DNS verification, and bring-your-own attachment.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	"github.com/craftfolio/craftfolio/internal/hosting"
	"github.com/craftfolio/craftfolio/internal/registrar"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	routingdomain "github.com/craftfolio/craftfolio/internal/routing/domain"
	"github.com/craftfolio/craftfolio/internal/shared/domain/domainname"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/eventbus"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/locking"
	"github.com/google/uuid"
)

// defaultClaimTTL bounds how long a crashed instance blocks a retried
// delivery of the same payment event.
const defaultClaimTTL = 10 * time.Minute

// registrationYears is the term purchased at checkout. Renewals are
// handled by registrar auto-renew, not by us.
const registrationYears = 1

// FulfillmentRequest is the unit of work handed to the saga, extracted
// from a confirmed payment's metadata.
type FulfillmentRequest struct {
	Domain          string
	UserID          uuid.UUID
	PaymentIntentID string
	VoucherGrantID  *uuid.UUID
}

// VoucherRedeemer consumes a voucher grant after the purchase it
// discounted succeeds.
type VoucherRedeemer interface {
	Redeem(ctx context.Context, grantID uuid.UUID) error
}

// PortfolioResolver finds the portfolio a newly fulfilled domain should
// serve. ErrNoPortfolio means the user has none published yet; the
// domain still activates and routing happens when they publish.
type PortfolioResolver interface {
	PrimaryPortfolio(ctx context.Context, userID uuid.UUID) (routingapp.PortfolioRef, error)
}

// ErrNoPortfolio is returned by PortfolioResolver when the user has no
// portfolio to route to.
var ErrNoPortfolio = errors.New("domains: user has no portfolio")

// RouteActivator is the slice of the routing service the saga needs.
type RouteActivator interface {
	Activate(ctx context.Context, domain string, owner uuid.UUID, portfolio routingapp.PortfolioRef) (*routingdomain.Entry, error)
}

// Saga drives a paid domain from payment confirmation to a live,
// routed domain. Each step persists its position so a crash is
// diagnosable from the record alone.
//
// Business failures (registrar rejection, hosting rejection) are
// recorded on the domain record and return nil: the payment event is
// consumed either way, and redelivering it cannot fix a rejected
// registration. Only infrastructure errors propagate, so the webhook
// layer retries exactly the cases a retry can help.
type Saga struct {
	records    domain.Repository
	registrar  registrar.Client
	hosting    hosting.Client
	routes     RouteActivator
	vouchers   VoucherRedeemer
	portfolios PortfolioResolver
	bus        eventbus.Publisher
	keyed      *locking.KeyedMutex
	claims     locking.Claimer
	claimTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// SagaDeps bundles the saga's collaborators.
type SagaDeps struct {
	Records    domain.Repository
	Registrar  registrar.Client
	Hosting    hosting.Client
	Routes     RouteActivator
	Vouchers   VoucherRedeemer
	Portfolios PortfolioResolver
	Bus        eventbus.Publisher
	Claims     locking.Claimer
	// ClaimTTL bounds a cross-instance fulfillment claim. Zero means
	// the default of ten minutes.
	ClaimTTL time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewSaga creates a fulfillment saga.
func NewSaga(deps SagaDeps) *Saga {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Claims == nil {
		deps.Claims = locking.NoopClaimer{}
	}
	if deps.ClaimTTL <= 0 {
		deps.ClaimTTL = defaultClaimTTL
	}
	return &Saga{
		records:    deps.Records,
		registrar:  deps.Registrar,
		hosting:    deps.Hosting,
		routes:     deps.Routes,
		vouchers:   deps.Vouchers,
		portfolios: deps.Portfolios,
		bus:        deps.Bus,
		keyed:      locking.NewKeyedMutex(),
		claims:     deps.Claims,
		claimTTL:   deps.ClaimTTL,
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// Handle fulfills one confirmed payment. Safe to call any number of
// times with the same payment intent: the first call does the work,
// every later call finds the claimed record and returns.
func (s *Saga) Handle(ctx context.Context, req FulfillmentRequest) error {
	name, err := domainname.Normalize(req.Domain)
	if err != nil {
		return fmt.Errorf("fulfillment %s: %w", req.PaymentIntentID, err)
	}
	log := s.logger.With("payment_intent_id", req.PaymentIntentID, "domain", name, "user_id", req.UserID)

	unlock := s.keyed.Lock(req.PaymentIntentID)
	defer unlock()

	claimed, err := s.claims.Claim(ctx, req.PaymentIntentID, s.claimTTL)
	if err != nil {
		return fmt.Errorf("fulfillment %s: %w", req.PaymentIntentID, err)
	}
	if !claimed {
		log.Info("fulfillment already claimed by another instance, skipping")
		return nil
	}
	defer func() {
		if err := s.claims.Release(context.WithoutCancel(ctx), req.PaymentIntentID); err != nil {
			log.Warn("failed to release fulfillment claim", "error", err)
		}
	}()

	if existing, err := s.records.FindByPaymentIntent(ctx, req.PaymentIntentID); err == nil {
		log.Info("payment intent already fulfilled", "status", existing.Status, "stage", existing.Stage)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("fulfillment %s: %w", req.PaymentIntentID, err)
	}

	rec := &domain.Record{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Domain:          name,
		Type:            domain.TypePlatformPurchased,
		Status:          domain.StatusPendingVerification,
		Stage:           domain.StageRegistering,
		AutoRenew:       true,
		PaymentIntentID: req.PaymentIntentID,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyFulfilled):
			log.Info("lost fulfillment race, record already claimed")
			return nil
		case errors.Is(err, domain.ErrDomainHeld):
			// The payment is captured but the domain is already held by
			// a live record, so no registration happens. Persist a
			// failed record anyway; a silent skip would hide the
			// captured payment from support tooling.
			log.Warn("domain already held by a live record, recording failed fulfillment")
			rec.FailRegistration("domain already held by a live record")
			rec.UpdatedAt = s.now()
			if cerr := s.records.Create(ctx, rec); cerr != nil {
				if errors.Is(cerr, domain.ErrAlreadyFulfilled) {
					return nil
				}
				return fmt.Errorf("fulfillment %s: record held domain: %w", req.PaymentIntentID, cerr)
			}
			s.publish(ctx, domain.EventFulfillmentFailed, rec)
			return nil
		default:
			return fmt.Errorf("fulfillment %s: claim record: %w", req.PaymentIntentID, err)
		}
	}

	reg, err := s.registrar.Register(ctx, registrar.RegisterRequest{
		Domain:         name,
		Years:          registrationYears,
		IdempotencyKey: req.PaymentIntentID,
		AutoRenew:      true,
	})
	if err != nil && !errors.Is(err, registrar.ErrAlreadyRegistered) {
		log.Error("registrar purchase failed", "error", err)
		rec.FailRegistration(err.Error())
		rec.UpdatedAt = s.now()
		if uerr := s.records.Update(ctx, rec); uerr != nil {
			return fmt.Errorf("fulfillment %s: record registration failure: %w", req.PaymentIntentID, uerr)
		}
		s.publish(ctx, domain.EventFulfillmentFailed, rec)
		return nil
	}
	if errors.Is(err, registrar.ErrAlreadyRegistered) {
		log.Info("registrar reports domain already owned, continuing")
	}

	registeredAt := s.now()
	rec.RegisteredAt = &registeredAt
	if expires, perr := time.Parse(time.RFC3339, reg.ExpiresAt); perr == nil {
		rec.ExpiresAt = &expires
	}
	rec.Stage = domain.StageAttaching
	rec.UpdatedAt = s.now()
	if err := s.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("fulfillment %s: advance to attaching: %w", req.PaymentIntentID, err)
	}
	s.publish(ctx, domain.EventRegistered, rec)

	attach, err := s.hosting.Attach(ctx, name)
	if err != nil {
		log.Error("hosting attach failed, domain is registered but unattached", "error", err)
		rec.FailAttachment(err.Error())
		rec.UpdatedAt = s.now()
		if uerr := s.records.Update(ctx, rec); uerr != nil {
			return fmt.Errorf("fulfillment %s: record attach failure: %w", req.PaymentIntentID, uerr)
		}
		s.publish(ctx, domain.EventFulfillmentFailed, rec)
		return nil
	}

	rec.Stage = domain.StageRouting
	rec.UpdatedAt = s.now()
	if err := s.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("fulfillment %s: advance to routing: %w", req.PaymentIntentID, err)
	}

	// Routing is best-effort: the domain is bought and attached, and a
	// missing route is repairable from support tooling without another
	// payment event.
	s.route(ctx, rec, log)

	rec.CompleteFulfillment(attach.Verified)
	rec.UpdatedAt = s.now()
	if err := s.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("fulfillment %s: complete: %w", req.PaymentIntentID, err)
	}

	if req.VoucherGrantID != nil && s.vouchers != nil {
		if err := s.vouchers.Redeem(ctx, *req.VoucherGrantID); err != nil {
			log.Warn("voucher redemption failed after successful fulfillment", "grant_id", *req.VoucherGrantID, "error", err)
		}
	}

	if attach.Verified {
		s.publish(ctx, domain.EventActivated, rec)
	} else {
		s.publish(ctx, domain.EventActivationPending, rec)
	}
	log.Info("fulfillment complete", "status", rec.Status, "dns_configured", rec.DNSConfigured)
	return nil
}

func (s *Saga) route(ctx context.Context, rec *domain.Record, log *slog.Logger) {
	if s.routes == nil || s.portfolios == nil {
		return
	}
	portfolio, err := s.portfolios.PrimaryPortfolio(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNoPortfolio) {
			log.Info("no portfolio to route domain to yet")
		} else {
			log.Warn("portfolio resolution failed, route not created", "error", err)
		}
		return
	}
	if _, err := s.routes.Activate(ctx, rec.Domain, rec.UserID, portfolio); err != nil {
		log.Warn("route activation failed, repair via support tooling", "error", err)
		return
	}
	rec.PortfolioID = &portfolio.ID
}

func (s *Saga) publish(ctx context.Context, routingKey string, rec *domain.Record) {
	if s.bus == nil {
		return
	}
	key, body, err := domain.NewEvent(routingKey, rec, s.now())
	if err != nil {
		s.logger.Warn("failed to build domain event", "routing_key", routingKey, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, key, body); err != nil {
		s.logger.Warn("failed to publish domain event", "routing_key", routingKey, "error", err)
	}
}
