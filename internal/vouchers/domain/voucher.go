// Package domain holds the voucher catalog and per-user grant entities.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherType distinguishes how a voucher discounts a purchase.
type VoucherType string

const (
	// TypeDiscount reduces the price by a fixed amount or percentage.
	TypeDiscount VoucherType = "discount"
	// TypeFreeDomain covers the whole domain price.
	TypeFreeDomain VoucherType = "free_domain"
)

// GrantStatus is the lifecycle state of a user's voucher grant.
type GrantStatus string

const (
	GrantActive   GrantStatus = "active"
	GrantRedeemed GrantStatus = "redeemed"
	GrantExpired  GrantStatus = "expired"
)

// Voucher is a catalog entry describing a grantable discount.
type Voucher struct {
	ID                 uuid.UUID
	Name               string
	Type               VoucherType
	DiscountAmount     decimal.Decimal
	DiscountPercentage decimal.Decimal
	// AutoGrantOn names the lifecycle trigger that hands this voucher to
	// a user automatically (e.g. "subscription.upgraded"). Empty means
	// manual grants only.
	AutoGrantOn string
	// ValidFor bounds a grant's lifetime; zero means no expiry.
	ValidFor  time.Duration
	SingleUse bool
	CreatedAt time.Time
}

// DiscountFor computes the absolute discount this voucher gives on a
// price. Free-domain vouchers cover the full price; percentage discounts
// scale with it; fixed discounts may exceed it and are clamped by the
// caller.
func (v Voucher) DiscountFor(price decimal.Decimal) decimal.Decimal {
	switch v.Type {
	case TypeFreeDomain:
		return price
	case TypeDiscount:
		if !v.DiscountPercentage.IsZero() {
			return price.Mul(v.DiscountPercentage).Div(decimal.NewFromInt(100))
		}
		return v.DiscountAmount
	default:
		return decimal.Zero
	}
}

// UserVoucher is one user's grant of a catalog voucher. At most one grant
// exists per (user, voucher) pair.
type UserVoucher struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	VoucherID  uuid.UUID
	Status     GrantStatus
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	RedeemedAt *time.Time

	// Voucher is the joined catalog entry.
	Voucher *Voucher
}

// Usable reports whether the grant can discount a purchase at t.
func (g UserVoucher) Usable(t time.Time) bool {
	if g.Status != GrantActive || g.Voucher == nil {
		return false
	}
	if g.ExpiresAt != nil && !t.Before(*g.ExpiresAt) {
		return false
	}
	return true
}
