// Package domain holds the public routing entry mapping a custom domain
// to the portfolio it serves.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRouteConflict is returned when a second active entry is created for
// a domain that already has one. Routes are never silently overwritten;
// a domain can serve exactly one portfolio.
var ErrRouteConflict = errors.New("routing: active route already exists for domain")

// ErrNotFound is returned when no active entry matches a lookup.
var ErrNotFound = errors.New("routing: route not found")

// Entry maps a normalized domain to a portfolio for public request
// routing. Removed entries are deactivated rather than deleted so a
// delete-then-recreate never leaves a window where the domain 404s.
type Entry struct {
	ID            uuid.UUID
	Domain        string
	OwnerUserID   uuid.UUID
	PortfolioID   uuid.UUID
	PortfolioType string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository persists routing entries.
type Repository interface {
	// Create inserts an active entry. A partial unique index on
	// (domain) WHERE is_active enforces at most one live route;
	// violations surface as ErrRouteConflict.
	Create(ctx context.Context, entry *Entry) error

	// FindActiveByDomain returns the live entry for a domain, or
	// ErrNotFound.
	FindActiveByDomain(ctx context.Context, domain string) (*Entry, error)

	// FindByDomainAndOwner returns the newest entry for the pair,
	// active or not, or ErrNotFound.
	FindByDomainAndOwner(ctx context.Context, domain string, ownerUserID uuid.UUID) (*Entry, error)

	// Update persists mutations (reactivation, portfolio changes,
	// deactivation).
	Update(ctx context.Context, entry *Entry) error
}
