// Package persistence implements the voucher repositories with PostgreSQL.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/craftfolio/craftfolio/internal/vouchers/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolationCode = "23505"

// PostgresCatalogRepository reads the voucher catalog.
type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalogRepository creates a new repository.
func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

const voucherColumns = `id, name, type, discount_amount, discount_percentage, auto_grant_on, valid_for_seconds, single_use, created_at`

func scanVoucher(row pgx.Row) (*domain.Voucher, error) {
	var (
		v            domain.Voucher
		amount       decimal.Decimal
		pct          decimal.Decimal
		validSeconds int64
	)
	err := row.Scan(&v.ID, &v.Name, (*string)(&v.Type), &amount, &pct, &v.AutoGrantOn, &validSeconds, &v.SingleUse, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.DiscountAmount = amount
	v.DiscountPercentage = pct
	v.ValidFor = time.Duration(validSeconds) * time.Second
	return &v, nil
}

// FindByID returns the catalog voucher, or nil when absent.
func (r *PostgresCatalogRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1`
	v, err := scanVoucher(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// FindByTrigger returns the voucher auto-granted on trigger, or nil.
func (r *PostgresCatalogRepository) FindByTrigger(ctx context.Context, trigger string) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE auto_grant_on = $1 ORDER BY created_at LIMIT 1`
	v, err := scanVoucher(r.pool.QueryRow(ctx, query, trigger))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// PostgresGrantRepository persists user voucher grants.
type PostgresGrantRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresGrantRepository creates a new repository.
func NewPostgresGrantRepository(pool *pgxpool.Pool) *PostgresGrantRepository {
	return &PostgresGrantRepository{pool: pool}
}

// Create inserts a grant. The user_vouchers table carries a unique index
// on (user_id, voucher_id); violations surface as ErrDuplicateGrant.
func (r *PostgresGrantRepository) Create(ctx context.Context, grant *domain.UserVoucher) error {
	query := `
		INSERT INTO user_vouchers (id, user_id, voucher_id, status, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		grant.ID,
		grant.UserID,
		grant.VoucherID,
		string(grant.Status),
		grant.GrantedAt,
		grant.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return domain.ErrDuplicateGrant
	}
	return err
}

const grantQuery = `
	SELECT uv.id, uv.user_id, uv.voucher_id, uv.status, uv.granted_at, uv.expires_at, uv.redeemed_at,
	       v.id, v.name, v.type, v.discount_amount, v.discount_percentage, v.auto_grant_on, v.valid_for_seconds, v.single_use, v.created_at
	FROM user_vouchers uv
	JOIN vouchers v ON v.id = uv.voucher_id
`

func scanGrant(row pgx.Row) (*domain.UserVoucher, error) {
	var (
		g            domain.UserVoucher
		v            domain.Voucher
		validSeconds int64
	)
	err := row.Scan(
		&g.ID, &g.UserID, &g.VoucherID, (*string)(&g.Status), &g.GrantedAt, &g.ExpiresAt, &g.RedeemedAt,
		&v.ID, &v.Name, (*string)(&v.Type), &v.DiscountAmount, &v.DiscountPercentage, &v.AutoGrantOn, &validSeconds, &v.SingleUse, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.ValidFor = time.Duration(validSeconds) * time.Second
	g.Voucher = &v
	return &g, nil
}

// FindByID returns a grant with its voucher joined.
func (r *PostgresGrantRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.UserVoucher, error) {
	g, err := scanGrant(r.pool.QueryRow(ctx, grantQuery+` WHERE uv.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGrantNotFound
	}
	return g, err
}

// ListActive returns the user's active grants with vouchers joined.
func (r *PostgresGrantRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]domain.UserVoucher, error) {
	rows, err := r.pool.Query(ctx, grantQuery+` WHERE uv.user_id = $1 AND uv.status = 'active' ORDER BY uv.granted_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]domain.UserVoucher, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

// MarkRedeemed transitions a grant to redeemed.
func (r *PostgresGrantRepository) MarkRedeemed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_vouchers SET status = 'redeemed', redeemed_at = $2 WHERE id = $1 AND status = 'active'`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGrantNotFound
	}
	return nil
}
