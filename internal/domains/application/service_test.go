package application

import (
	"context"
	"testing"
	"time"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	"github.com/craftfolio/craftfolio/internal/hosting"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPending(t *testing.T, repo *fakeRecordRepo, userID uuid.UUID, name string) *domain.Record {
	t.Helper()
	rec := &domain.Record{
		ID:              uuid.New(),
		UserID:          userID,
		Domain:          name,
		Type:            domain.TypePlatformPurchased,
		Status:          domain.StatusPendingVerification,
		Stage:           domain.StageDone,
		PaymentIntentID: "pi_" + uuid.NewString(),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestVerify_PromotesPendingDomain(t *testing.T) {
	repo := newFakeRecordRepo()
	host := &fakeSagaHosting{verified: true}
	bus := &fakeBus{}
	svc := NewService(repo, host, bus, nil)

	userID := uuid.New()
	seedPending(t, repo, userID, "example.com")

	res, err := svc.Verify(context.Background(), userID, "example.com")
	require.NoError(t, err)
	assert.True(t, res.Verified)

	rec, err := repo.FindByUserAndDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.True(t, rec.DNSConfigured)
	assert.Equal(t, []string{domain.EventActivated}, bus.keys)
}

func TestVerify_ReturnsRequiredRecordVerbatim(t *testing.T) {
	repo := newFakeRecordRepo()
	required := &hosting.DNSRecord{Type: "CNAME", Name: "www", Value: "cname.hosting.test"}
	host := &fakeSagaHosting{verified: false, required: required}
	svc := NewService(repo, host, nil, nil)

	userID := uuid.New()
	seedPending(t, repo, userID, "example.com")

	res, err := svc.Verify(context.Background(), userID, "example.com")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, required, res.Required)

	rec, err := repo.FindByUserAndDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingVerification, rec.Status, "failed verification must not change the record")
}

func TestVerify_AlreadyActive(t *testing.T) {
	repo := newFakeRecordRepo()
	host := &fakeSagaHosting{verified: true}
	svc := NewService(repo, host, nil, nil)

	userID := uuid.New()
	rec := seedPending(t, repo, userID, "example.com")
	rec.Activate()
	require.NoError(t, repo.Update(context.Background(), rec))

	_, err := svc.Verify(context.Background(), userID, "example.com")
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, 0, host.calls())
}

func TestVerify_UnknownDomain(t *testing.T) {
	svc := NewService(newFakeRecordRepo(), &fakeSagaHosting{}, nil, nil)
	_, err := svc.Verify(context.Background(), uuid.New(), "nobody.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerify_WrongUserCannotVerify(t *testing.T) {
	repo := newFakeRecordRepo()
	svc := NewService(repo, &fakeSagaHosting{verified: true}, nil, nil)
	seedPending(t, repo, uuid.New(), "example.com")

	_, err := svc.Verify(context.Background(), uuid.New(), "example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAttachExternal_CreatesPendingRecord(t *testing.T) {
	repo := newFakeRecordRepo()
	required := &hosting.DNSRecord{Type: "A", Name: "@", Value: "76.76.21.21"}
	host := &fakeSagaHosting{verified: false, required: required}
	bus := &fakeBus{}
	svc := NewService(repo, host, bus, nil)

	userID := uuid.New()
	rec, res, err := svc.AttachExternal(context.Background(), userID, "My-Site.COM")
	require.NoError(t, err)
	assert.Equal(t, "my-site.com", rec.Domain)
	assert.Equal(t, domain.TypeBringYourOwn, rec.Type)
	assert.Equal(t, domain.StatusPendingVerification, rec.Status)
	assert.Empty(t, rec.PaymentIntentID)
	assert.Equal(t, required, res.Required)
	assert.Equal(t, []string{domain.EventActivationPending}, bus.keys)
}

func TestAttachExternal_Idempotent(t *testing.T) {
	repo := newFakeRecordRepo()
	host := &fakeSagaHosting{verified: true}
	svc := NewService(repo, host, nil, nil)

	userID := uuid.New()
	_, _, err := svc.AttachExternal(context.Background(), userID, "example.com")
	require.NoError(t, err)
	_, _, err = svc.AttachExternal(context.Background(), userID, "example.com")
	require.NoError(t, err)

	assert.Equal(t, 1, host.calls())
	all, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
