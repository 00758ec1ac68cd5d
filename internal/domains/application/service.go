package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	"github.com/craftfolio/craftfolio/internal/hosting"
	"github.com/craftfolio/craftfolio/internal/shared/domain/domainname"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// ErrAlreadyActive is returned by Verify when the domain needs no
// verification.
var ErrAlreadyActive = errors.New("domains: domain already active")

// VerifyResult reports the outcome of a DNS verification attempt.
type VerifyResult struct {
	Domain   string
	Verified bool
	// Required carries the DNS record still missing when Verified is
	// false, exactly as the hosting platform reported it.
	Required *hosting.DNSRecord
}

// Service covers the customer-facing domain operations outside the
// payment path: DNS verification polling, bring-your-own attachment,
// and listing.
type Service struct {
	records domain.Repository
	hosting hosting.Client
	bus     eventbus.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a domains service.
func NewService(records domain.Repository, hostingClient hosting.Client, bus eventbus.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		records: records,
		hosting: hostingClient,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// Verify re-checks DNS for the user's pending domain. When the hosting
// platform confirms resolution the record is promoted to active;
// otherwise the still-required DNS record is returned untouched so the
// user can copy it into their DNS provider.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, rawDomain string) (VerifyResult, error) {
	name, err := domainname.Normalize(rawDomain)
	if err != nil {
		return VerifyResult{}, domain.ErrNotFound
	}

	rec, err := s.records.FindByUserAndDomain(ctx, userID, name)
	if err != nil {
		return VerifyResult{}, err
	}
	if rec.Status == domain.StatusActive {
		return VerifyResult{Domain: name, Verified: true}, ErrAlreadyActive
	}
	if rec.Status != domain.StatusPendingVerification {
		return VerifyResult{}, domain.ErrNotFound
	}

	res, err := s.hosting.Verify(ctx, name)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", name, err)
	}
	if !res.Verified {
		return VerifyResult{Domain: name, Verified: false, Required: res.Required}, nil
	}

	rec.Activate()
	rec.UpdatedAt = s.now()
	if err := s.records.Update(ctx, rec); err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", name, err)
	}
	s.publish(ctx, domain.EventActivated, rec)
	s.logger.Info("domain verified and activated", "domain", name, "user_id", userID)
	return VerifyResult{Domain: name, Verified: true}, nil
}

// AttachExternal onboards a domain the user registered elsewhere. The
// domain is attached to hosting and a pending record is created; the
// caller receives the DNS record to configure at their registrar.
func (s *Service) AttachExternal(ctx context.Context, userID uuid.UUID, rawDomain string) (*domain.Record, VerifyResult, error) {
	name, err := domainname.Normalize(rawDomain)
	if err != nil {
		return nil, VerifyResult{}, err
	}
	log := s.logger.With("domain", name, "user_id", userID)

	if existing, err := s.records.FindByUserAndDomain(ctx, userID, name); err == nil {
		log.Info("domain already onboarded", "status", existing.Status)
		return existing, VerifyResult{Domain: name, Verified: existing.DNSConfigured}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, VerifyResult{}, err
	}

	res, err := s.hosting.Attach(ctx, name)
	if err != nil {
		return nil, VerifyResult{}, fmt.Errorf("attach %s: %w", name, err)
	}

	rec := &domain.Record{
		ID:        uuid.New(),
		UserID:    userID,
		Domain:    name,
		Type:      domain.TypeBringYourOwn,
		Stage:     domain.StageDone,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	rec.CompleteFulfillment(res.Verified)
	if err := s.records.Create(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDomainHeld) {
			return nil, VerifyResult{}, err
		}
		return nil, VerifyResult{}, fmt.Errorf("attach %s: %w", name, err)
	}

	if res.Verified {
		s.publish(ctx, domain.EventActivated, rec)
	} else {
		s.publish(ctx, domain.EventActivationPending, rec)
	}
	return rec, VerifyResult{Domain: name, Verified: res.Verified, Required: res.Required}, nil
}

// List returns the user's domain records, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	return s.records.ListByUser(ctx, userID)
}

func (s *Service) publish(ctx context.Context, routingKey string, rec *domain.Record) {
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
