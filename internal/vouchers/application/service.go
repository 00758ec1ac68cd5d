// Package application implements voucher granting, selection and
// redemption on top of the domain repositories.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftfolio/craftfolio/internal/vouchers/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrVoucherNotApplicable is returned when a requested voucher cannot
// discount the purchase (unknown, expired, redeemed, or someone else's).
// Checkout degrades to full price on this error rather than failing.
var ErrVoucherNotApplicable = errors.New("vouchers: voucher not applicable")

// Service coordinates voucher grants and redemptions.
type Service struct {
	catalog domain.CatalogRepository
	grants  domain.GrantRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a voucher service. A nil now falls back to time.Now.
func NewService(catalog domain.CatalogRepository, grants domain.GrantRepository, logger *slog.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{catalog: catalog, grants: grants, logger: logger, now: now}
}

// Grant hands the voucher configured for trigger to the user. Re-granting
// the same voucher is a silent no-op; the uniqueness constraint on
// (user, voucher) makes duplicate triggers harmless.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, trigger string) error {
	voucher, err := s.catalog.FindByTrigger(ctx, trigger)
	if err != nil {
		return fmt.Errorf("find voucher for trigger %q: %w", trigger, err)
	}
	if voucher == nil {
		return nil
	}

	grant := &domain.UserVoucher{
		ID:        uuid.New(),
		UserID:    userID,
		VoucherID: voucher.ID,
		Status:    domain.GrantActive,
		GrantedAt: s.now(),
	}
	if voucher.ValidFor > 0 {
		expires := grant.GrantedAt.Add(voucher.ValidFor)
		grant.ExpiresAt = &expires
	}

	err = s.grants.Create(ctx, grant)
	if errors.Is(err, domain.ErrDuplicateGrant) {
		s.logger.Debug("voucher already granted",
			"user_id", userID,
			"voucher_id", voucher.ID,
		)
		return nil
	}
	return err
}

// ApplyBest selects the single usable grant with the largest absolute
// discount on price and returns the discounted price, clamped at zero.
// The chosen grant is returned so the caller can redeem it after payment;
// ApplyBest itself never consumes anything.
func (s *Service) ApplyBest(ctx context.Context, userID uuid.UUID, price decimal.Decimal) (decimal.Decimal, *domain.UserVoucher, error) {
	grants, err := s.grants.ListActive(ctx, userID)
	if err != nil {
		return price, nil, err
	}

	now := s.now()
	var best *domain.UserVoucher
	bestDiscount := decimal.Zero
	for i := range grants {
		g := grants[i]
		if !g.Usable(now) {
			continue
		}
		discount := g.Voucher.DiscountFor(price)
		if discount.GreaterThan(bestDiscount) {
			best = &grants[i]
			bestDiscount = discount
		}
	}
	if best == nil {
		return price, nil, nil
	}

	final := price.Sub(bestDiscount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return final, best, nil
}

// ApplyGrant applies one specific grant the user asked for at checkout.
func (s *Service) ApplyGrant(ctx context.Context, userID, grantID uuid.UUID, price decimal.Decimal) (decimal.Decimal, *domain.UserVoucher, error) {
	grant, err := s.grants.FindByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, domain.ErrGrantNotFound) {
			return price, nil, ErrVoucherNotApplicable
		}
		return price, nil, err
	}
	if grant.UserID != userID || !grant.Usable(s.now()) {
		return price, nil, ErrVoucherNotApplicable
	}

	final := price.Sub(grant.Voucher.DiscountFor(price))
	if final.IsNegative() {
		final = decimal.Zero
	}
	return final, grant, nil
}

// Redeem consumes a grant after the discounted purchase was paid for.
// It is a separate step from ApplyBest so abandoned checkouts do not
// burn vouchers.
func (s *Service) Redeem(ctx context.Context, grantID uuid.UUID) error {
	return s.grants.MarkRedeemed(ctx, grantID, s.now())
}
