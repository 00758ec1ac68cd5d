// Package application implements route activation and public lookup over
// the routing repository.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftfolio/craftfolio/internal/routing/domain"
	"github.com/craftfolio/craftfolio/internal/shared/domain/domainname"
	"github.com/google/uuid"
)

// PortfolioRef identifies the portfolio a domain should serve.
type PortfolioRef struct {
	ID   uuid.UUID
	Type string
}

// Service manages the domain → portfolio routing table.
type Service struct {
	routes domain.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a routing service.
func NewService(routes domain.Repository, logger *slog.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{routes: routes, logger: logger, now: now}
}

// Activate creates or reactivates the route for a domain. The owner's
// own deactivated entry is revived in place; a live entry held by anyone
// surfaces as ErrRouteConflict.
func (s *Service) Activate(ctx context.Context, rawDomain string, owner uuid.UUID, portfolio PortfolioRef) (*domain.Entry, error) {
	name, err := domainname.Normalize(rawDomain)
	if err != nil {
		return nil, err
	}

	if existing, err := s.routes.FindByDomainAndOwner(ctx, name, owner); err == nil {
		if existing.IsActive {
			if existing.PortfolioID == portfolio.ID {
				return existing, nil
			}
			existing.PortfolioID = portfolio.ID
			existing.PortfolioType = portfolio.Type
			existing.UpdatedAt = s.now()
			return existing, s.routes.Update(ctx, existing)
		}
		existing.IsActive = true
		existing.PortfolioID = portfolio.ID
		existing.PortfolioType = portfolio.Type
		existing.UpdatedAt = s.now()
		if err := s.routes.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	entry := &domain.Entry{
		ID:            uuid.New(),
		Domain:        name,
		OwnerUserID:   owner,
		PortfolioID:   portfolio.ID,
		PortfolioType: portfolio.Type,
		IsActive:      true,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	if err := s.routes.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create route for %s: %w", name, err)
	}
	return entry, nil
}

// Lookup resolves a public request's Host header to a portfolio.
func (s *Service) Lookup(ctx context.Context, rawDomain string) (*domain.Entry, error) {
	name, err := domainname.Normalize(rawDomain)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return s.routes.FindActiveByDomain(ctx, name)
}

// Deactivate soft-deletes the owner's route for a domain.
func (s *Service) Deactivate(ctx context.Context, rawDomain string, owner uuid.UUID) error {
	name, err := domainname.Normalize(rawDomain)
	if err != nil {
		return domain.ErrNotFound
	}
	entry, err := s.routes.FindByDomainAndOwner(ctx, name, owner)
	if err != nil {
		return err
	}
	if !entry.IsActive {
		return nil
	}
	entry.IsActive = false
	entry.UpdatedAt = s.now()
	return s.routes.Update(ctx, entry)
}
