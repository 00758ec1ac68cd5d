// Package persistence implements the routing repository with PostgreSQL.
package persistence

import (
	"context"
	"errors"

	"github.com/craftfolio/craftfolio/internal/routing/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// PostgresRouteRepository persists routing entries. The domain_routes
// table carries a partial unique index on (domain) WHERE is_active, so
// the single-live-route invariant holds even across racing instances.
type PostgresRouteRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRouteRepository creates a new repository.
func NewPostgresRouteRepository(pool *pgxpool.Pool) *PostgresRouteRepository {
	return &PostgresRouteRepository{pool: pool}
}

const routeColumns = `id, domain, owner_user_id, portfolio_id, portfolio_type, is_active, created_at, updated_at`

func scanRoute(row pgx.Row) (*domain.Entry, error) {
	var e domain.Entry
	err := row.Scan(&e.ID, &e.Domain, &e.OwnerUserID, &e.PortfolioID, &e.PortfolioType, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts an entry.
func (r *PostgresRouteRepository) Create(ctx context.Context, entry *domain.Entry) error {
	query := `
		INSERT INTO domain_routes (id, domain, owner_user_id, portfolio_id, portfolio_type, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Domain,
		entry.OwnerUserID,
		entry.PortfolioID,
		entry.PortfolioType,
		entry.IsActive,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	return mapRouteConflict(err)
}

// FindActiveByDomain returns the live entry for a domain.
func (r *PostgresRouteRepository) FindActiveByDomain(ctx context.Context, name string) (*domain.Entry, error) {
	query := `SELECT ` + routeColumns + ` FROM domain_routes WHERE domain = $1 AND is_active`
	e, err := scanRoute(r.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

// FindByDomainAndOwner returns the newest entry for the pair, active or not.
func (r *PostgresRouteRepository) FindByDomainAndOwner(ctx context.Context, name string, owner uuid.UUID) (*domain.Entry, error) {
	query := `SELECT ` + routeColumns + ` FROM domain_routes WHERE domain = $1 AND owner_user_id = $2 ORDER BY created_at DESC LIMIT 1`
	e, err := scanRoute(r.pool.QueryRow(ctx, query, name, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

// Update persists mutations. Reactivating an entry while someone else
// holds the live route trips the partial index and surfaces as
// ErrRouteConflict, same as Create.
func (r *PostgresRouteRepository) Update(ctx context.Context, entry *domain.Entry) error {
	query := `
		UPDATE domain_routes
		SET portfolio_id = $2, portfolio_type = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.PortfolioID,
		entry.PortfolioType,
		entry.IsActive,
		entry.UpdatedAt,
	)
	if err != nil {
		return mapRouteConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapRouteConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return domain.ErrRouteConflict
	}
	return err
}
