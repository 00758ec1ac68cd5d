// Package domain holds the custom-domain record aggregate and its
// fulfillment state machine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Type distinguishes how a domain entered the platform.
type Type string

const (
	// TypePlatformPurchased domains were bought through checkout and
	// registered by the fulfillment saga.
	TypePlatformPurchased Type = "platform_purchased"
	// TypeBringYourOwn domains are registered elsewhere and only pointed
	// at the platform.
	TypeBringYourOwn Type = "bring_your_own"
)

// Status is the customer-visible state of a domain record.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	// StatusFailedRegistration means payment was captured but the
	// registrar purchase failed; no money was spent at the registrar.
	// Needs a refund or manual retry.
	StatusFailedRegistration Status = "failed_registration"
	// StatusManualIntervention means the domain WAS registered but could
	// not be attached to hosting. Money was spent; a human or retry job
	// must finish the attachment.
	StatusManualIntervention Status = "manual_intervention_required"
	StatusCanceled           Status = "canceled"
)

// Terminal reports whether the status ends the fulfillment lifecycle.
func (s Status) Terminal() bool {
	return s == StatusFailedRegistration || s == StatusCanceled
}

// Stage is the persisted position of a record inside the fulfillment
// saga. A crash mid-saga is diagnosed from the stored stage rather than
// reconstructed from logs.
type Stage string

const (
	StageRegistering Stage = "registering"
	StageAttaching   Stage = "attaching"
	StageRouting     Stage = "routing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Record is one domain ever attempted for a user. Every fulfillment
// attempt appends exactly one record, success or failure.
type Record struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Domain      string
	PortfolioID *uuid.UUID
	Type        Type
	Status      Status
	Stage       Stage

	DNSConfigured bool
	RegisteredAt  *time.Time
	ExpiresAt     *time.Time
	AutoRenew     bool

	// PaymentIntentID is the fulfillment idempotency key; unique across
	// all users for platform-purchased records.
	PaymentIntentID string
	// FailureReason is set only for failure statuses.
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FailRegistration moves the record to the terminal registration-failure
// state.
func (r *Record) FailRegistration(reason string) {
	r.Status = StatusFailedRegistration
	r.Stage = StageFailed
	r.FailureReason = reason
}

// FailAttachment marks the record as registered but unattached. This is
// not a clean rollback state: the domain is owned and paid for.
func (r *Record) FailAttachment(reason string) {
	r.Status = StatusManualIntervention
	r.Stage = StageFailed
	r.FailureReason = reason
}

// CompleteFulfillment records the outcome of a successful hosting attach.
func (r *Record) CompleteFulfillment(verified bool) {
	if verified {
		r.Status = StatusActive
	} else {
		r.Status = StatusPendingVerification
	}
	r.DNSConfigured = verified
	r.Stage = StageDone
	r.FailureReason = ""
}

// Activate promotes a pending record once DNS verification succeeds.
func (r *Record) Activate() {
	r.Status = StatusActive
	r.DNSConfigured = true
}
