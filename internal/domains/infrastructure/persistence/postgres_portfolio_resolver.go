package persistence

import (
	"context"
	"errors"

	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPortfolioResolver reads the portfolio-builder's portfolios
// table to pick the portfolio a fresh domain should serve: the user's
// most recently published one.
type PostgresPortfolioResolver struct {
	pool *pgxpool.Pool
}

// NewPostgresPortfolioResolver creates a new resolver.
func NewPostgresPortfolioResolver(pool *pgxpool.Pool) *PostgresPortfolioResolver {
	return &PostgresPortfolioResolver{pool: pool}
}

// PrimaryPortfolio returns the user's most recently published portfolio.
func (r *PostgresPortfolioResolver) PrimaryPortfolio(ctx context.Context, userID uuid.UUID) (routingapp.PortfolioRef, error) {
	query := `
		SELECT id, type FROM portfolios
		WHERE user_id = $1 AND published
		ORDER BY updated_at DESC LIMIT 1
	`
	var ref routingapp.PortfolioRef
	err := r.pool.QueryRow(ctx, query, userID).Scan(&ref.ID, &ref.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return routingapp.PortfolioRef{}, domainsapp.ErrNoPortfolio
	}
	if err != nil {
		return routingapp.PortfolioRef{}, err
	}
	return ref, nil
}
