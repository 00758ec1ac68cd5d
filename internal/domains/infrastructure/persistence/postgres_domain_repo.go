// Package persistence implements the domain record repository with
// PostgreSQL.
package persistence

import (
	"context"
	"errors"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// Index names from the schema; Create tells the two uniqueness
// violations apart by constraint name.
const (
	paymentIntentIndex = "domain_records_payment_intent_key"
	liveDomainIndex    = "domain_records_user_live_domain_key"
)

// PostgresDomainRepository persists domain records. The table carries a
// unique index on payment_intent_id and a partial unique index on
// (user_id, domain) for non-terminal records, so idempotency holds
// across racing instances without advisory locks.
type PostgresDomainRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDomainRepository creates a new repository.
func NewPostgresDomainRepository(pool *pgxpool.Pool) *PostgresDomainRepository {
	return &PostgresDomainRepository{pool: pool}
}

const recordColumns = `id, user_id, domain, portfolio_id, type, status, stage, dns_configured,
	registered_at, expires_at, auto_renew, payment_intent_id, failure_reason, created_at, updated_at`

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var (
		rec             domain.Record
		paymentIntentID *string
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Domain, &rec.PortfolioID,
		(*string)(&rec.Type), (*string)(&rec.Status), (*string)(&rec.Stage), &rec.DNSConfigured,
		&rec.RegisteredAt, &rec.ExpiresAt, &rec.AutoRenew, &paymentIntentID, &rec.FailureReason,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentIntentID != nil {
		rec.PaymentIntentID = *paymentIntentID
	}
	return &rec, nil
}

// Create appends a record. Bring-your-own records have no payment
// intent; NULL keeps them out of the unique index.
func (r *PostgresDomainRepository) Create(ctx context.Context, rec *domain.Record) error {
	query := `
		INSERT INTO domain_records (id, user_id, domain, portfolio_id, type, status, stage, dns_configured,
			registered_at, expires_at, auto_renew, payment_intent_id, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	var paymentIntentID *string
	if rec.PaymentIntentID != "" {
		paymentIntentID = &rec.PaymentIntentID
	}
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Domain, rec.PortfolioID,
		string(rec.Type), string(rec.Status), string(rec.Stage), rec.DNSConfigured,
		rec.RegisteredAt, rec.ExpiresAt, rec.AutoRenew, paymentIntentID, rec.FailureReason,
		rec.CreatedAt, rec.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		if pgErr.ConstraintName == paymentIntentIndex {
			return domain.ErrAlreadyFulfilled
		}
		return domain.ErrDomainHeld
	}
	return err
}

// Update persists mutations to an existing record.
func (r *PostgresDomainRepository) Update(ctx context.Context, rec *domain.Record) error {
	query := `
		UPDATE domain_records
		SET portfolio_id = $2, status = $3, stage = $4, dns_configured = $5,
			registered_at = $6, expires_at = $7, auto_renew = $8, failure_reason = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		rec.ID, rec.PortfolioID, string(rec.Status), string(rec.Stage), rec.DNSConfigured,
		rec.RegisteredAt, rec.ExpiresAt, rec.AutoRenew, rec.FailureReason, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindByPaymentIntent returns the record claimed for an intent.
func (r *PostgresDomainRepository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM domain_records WHERE payment_intent_id = $1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, paymentIntentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// FindByUserAndDomain returns the user's most recent non-terminal record
// for the domain.
func (r *PostgresDomainRepository) FindByUserAndDomain(ctx context.Context, userID uuid.UUID, name string) (*domain.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM domain_records
		WHERE user_id = $1 AND domain = $2 AND status NOT IN ('failed_registration', 'canceled')
		ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, userID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListByUser returns all of a user's records, newest first.
func (r *PostgresDomainRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM domain_records WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByStatus returns records in the given status, oldest first.
func (r *PostgresDomainRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM domain_records WHERE status = $1 ORDER BY created_at LIMIT $2`
	rows, err := r.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]domain.Record, error) {
	records := make([]domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
