package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateGrant is returned by GrantRepository.Create when the
// (user, voucher) pair already has a grant. Callers treat it as a no-op.
var ErrDuplicateGrant = errors.New("vouchers: grant already exists")

// ErrGrantNotFound is returned when a grant id does not exist.
var ErrGrantNotFound = errors.New("vouchers: grant not found")

// CatalogRepository reads the voucher catalog.
type CatalogRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Voucher, error)
	FindByTrigger(ctx context.Context, trigger string) (*Voucher, error)
}

// GrantRepository persists per-user voucher grants.
type GrantRepository interface {
	// Create inserts a grant. The storage layer enforces uniqueness on
	// (user_id, voucher_id) and reports violations as ErrDuplicateGrant.
	Create(ctx context.Context, grant *UserVoucher) error

	// FindByID returns a grant with its catalog voucher joined.
	FindByID(ctx context.Context, id uuid.UUID) (*UserVoucher, error)

	// ListActive returns a user's active grants with vouchers joined.
	ListActive(ctx context.Context, userID uuid.UUID) ([]UserVoucher, error)

	// MarkRedeemed transitions a grant to redeemed at the given time.
	MarkRedeemed(ctx context.Context, id uuid.UUID, at time.Time) error
}
