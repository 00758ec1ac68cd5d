// Package persistence implements the processed-webhook-event log with
// PostgreSQL.
package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventStore dedupes provider webhook deliveries. Event IDs are
// primary-keyed, so the first insert wins and every redelivery is
// detected no matter which instance receives it.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// MarkProcessed records the event ID, returning false for duplicates.
func (s *PostgresEventStore) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, eventID, eventType, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
