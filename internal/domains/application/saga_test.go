package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	"github.com/craftfolio/craftfolio/internal/hosting"
	"github.com/craftfolio/craftfolio/internal/registrar"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	routingdomain "github.com/craftfolio/craftfolio/internal/routing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecordRepo enforces the same uniqueness the postgres schema does.
type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.Record
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[uuid.UUID]*domain.Record)}
}

func (f *fakeRecordRepo) Create(ctx context.Context, rec *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if rec.PaymentIntentID != "" && r.PaymentIntentID == rec.PaymentIntentID {
			return domain.ErrAlreadyFulfilled
		}
		// The live-domain index is partial: terminal rows are neither
		// indexed nor checked, so failure history never conflicts.
		if r.UserID == rec.UserID && r.Domain == rec.Domain && !r.Status.Terminal() && !rec.Status.Terminal() {
			return domain.ErrDomainHeld
		}
	}
	clone := *rec
	f.records[rec.ID] = &clone
	return nil
}

func (f *fakeRecordRepo) Update(ctx context.Context, rec *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *rec
	f.records[rec.ID] = &clone
	return nil
}

func (f *fakeRecordRepo) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.PaymentIntentID == paymentIntentID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecordRepo) FindByUserAndDomain(ctx context.Context, userID uuid.UUID, name string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID == userID && r.Domain == name && !r.Status.Terminal() {
			clone := *r
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecordRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Record
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Record
	for _, r := range f.records {
		if r.Status == status && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) only(t *testing.T) *domain.Record {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.records, 1)
	for _, r := range f.records {
		return r
	}
	return nil
}

type fakeSagaRegistrar struct {
	mu            sync.Mutex
	registerCalls int
	registerErr   error
}

func (f *fakeSagaRegistrar) CheckAvailability(ctx context.Context, name string) (registrar.Availability, error) {
	return registrar.Availability{}, nil
}

func (f *fakeSagaRegistrar) PriceList(ctx context.Context) (registrar.PriceList, error) {
	return nil, nil
}

func (f *fakeSagaRegistrar) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.Registration, error) {
	f.mu.Lock()
	f.registerCalls++
	f.mu.Unlock()
	if f.registerErr != nil {
		return registrar.Registration{}, f.registerErr
	}
	return registrar.Registration{
		Domain:    req.Domain,
		OrderID:   "order-1",
		ExpiresAt: "2027-08-28T00:00:00Z",
	}, nil
}

func (f *fakeSagaRegistrar) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls
}

type fakeSagaHosting struct {
	mu          sync.Mutex
	attachCalls int
	attachErr   error
	verified    bool
	required    *hosting.DNSRecord
}

func (f *fakeSagaHosting) Attach(ctx context.Context, name string) (hosting.AttachResult, error) {
	f.mu.Lock()
	f.attachCalls++
	f.mu.Unlock()
	if f.attachErr != nil {
		return hosting.AttachResult{}, f.attachErr
	}
	return hosting.AttachResult{Domain: name, Verified: f.verified, Required: f.required}, nil
}

func (f *fakeSagaHosting) Verify(ctx context.Context, name string) (hosting.AttachResult, error) {
	return f.Attach(ctx, name)
}

func (f *fakeSagaHosting) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachCalls
}

type fakeRoutes struct {
	activated []string
	err       error
}

func (f *fakeRoutes) Activate(ctx context.Context, name string, owner uuid.UUID, portfolio routingapp.PortfolioRef) (*routingdomain.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.activated = append(f.activated, name)
	return &routingdomain.Entry{Domain: name, OwnerUserID: owner, PortfolioID: portfolio.ID, IsActive: true}, nil
}

type fakeRedeemer struct {
	redeemed []uuid.UUID
}

func (f *fakeRedeemer) Redeem(ctx context.Context, grantID uuid.UUID) error {
	f.redeemed = append(f.redeemed, grantID)
	return nil
}

type fakeResolver struct {
	ref routingapp.PortfolioRef
	err error
}

func (f *fakeResolver) PrimaryPortfolio(ctx context.Context, userID uuid.UUID) (routingapp.PortfolioRef, error) {
	return f.ref, f.err
}

type fakeBus struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, routingKey)
	return nil
}

func (f *fakeBus) Close() error { return nil }

type sagaFixture struct {
	saga      *Saga
	records   *fakeRecordRepo
	registrar *fakeSagaRegistrar
	hosting   *fakeSagaHosting
	routes    *fakeRoutes
	vouchers  *fakeRedeemer
	bus       *fakeBus
}

func newSagaFixture() *sagaFixture {
	f := &sagaFixture{
		records:   newFakeRecordRepo(),
		registrar: &fakeSagaRegistrar{},
		hosting:   &fakeSagaHosting{verified: true},
		routes:    &fakeRoutes{},
		vouchers:  &fakeRedeemer{},
		bus:       &fakeBus{},
	}
	f.saga = NewSaga(SagaDeps{
		Records:    f.records,
		Registrar:  f.registrar,
		Hosting:    f.hosting,
		Routes:     f.routes,
		Vouchers:   f.vouchers,
		Portfolios: &fakeResolver{ref: routingapp.PortfolioRef{ID: uuid.New(), Type: "handyman"}},
		Bus:        f.bus,
		Now:        func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func request() FulfillmentRequest {
	return FulfillmentRequest{
		Domain:          "example.com",
		UserID:          uuid.New(),
		PaymentIntentID: "pi_123",
	}
}

func TestSaga_HappyPathVerified(t *testing.T) {
	f := newSagaFixture()
	grant := uuid.New()
	req := request()
	req.VoucherGrantID = &grant

	require.NoError(t, f.saga.Handle(context.Background(), req))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Equal(t, domain.StageDone, rec.Stage)
	assert.True(t, rec.DNSConfigured)
	assert.Equal(t, domain.TypePlatformPurchased, rec.Type)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, 2027, rec.ExpiresAt.Year())
	assert.True(t, rec.AutoRenew)

	assert.Equal(t, []string{"example.com"}, f.routes.activated)
	assert.Equal(t, []uuid.UUID{grant}, f.vouchers.redeemed)
	assert.Equal(t, []string{domain.EventRegistered, domain.EventActivated}, f.bus.keys)
}

func TestSaga_HappyPathPendingDNS(t *testing.T) {
	f := newSagaFixture()
	f.hosting.verified = false
	f.hosting.required = &hosting.DNSRecord{Type: "TXT", Name: "_verify", Value: "abc"}

	require.NoError(t, f.saga.Handle(context.Background(), request()))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusPendingVerification, rec.Status)
	assert.Equal(t, domain.StageDone, rec.Stage)
	assert.False(t, rec.DNSConfigured)
	assert.Contains(t, f.bus.keys, domain.EventActivationPending)
}

func TestSaga_DuplicateDeliveryIsNoOp(t *testing.T) {
	f := newSagaFixture()
	req := request()

	require.NoError(t, f.saga.Handle(context.Background(), req))
	require.NoError(t, f.saga.Handle(context.Background(), req))
	require.NoError(t, f.saga.Handle(context.Background(), req))

	assert.Equal(t, 1, f.registrar.calls())
	assert.Equal(t, 1, f.hosting.calls())
	f.records.only(t)
}

func TestSaga_ConcurrentDeliveriesRegisterOnce(t *testing.T) {
	f := newSagaFixture()
	req := request()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.saga.Handle(context.Background(), req))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.registrar.calls())
	f.records.only(t)
}

func TestSaga_RegistrarFailure(t *testing.T) {
	f := newSagaFixture()
	f.registrar.registerErr = &registrar.APIError{Status: 422, Code: "INVALID_DOMAIN", Message: "cannot register"}

	require.NoError(t, f.saga.Handle(context.Background(), request()))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusFailedRegistration, rec.Status)
	assert.Equal(t, domain.StageFailed, rec.Stage)
	assert.Contains(t, rec.FailureReason, "INVALID_DOMAIN")
	assert.Equal(t, 0, f.hosting.calls(), "hosting must not be touched after a registrar failure")
	assert.Equal(t, []string{domain.EventFulfillmentFailed}, f.bus.keys)
}

func TestSaga_HostingFailureNeedsManualIntervention(t *testing.T) {
	f := newSagaFixture()
	f.hosting.attachErr = &hosting.APIError{Status: 500, Code: "internal", Message: "boom"}

	require.NoError(t, f.saga.Handle(context.Background(), request()))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusManualIntervention, rec.Status)
	assert.Equal(t, domain.StageFailed, rec.Stage)
	assert.Equal(t, 1, f.registrar.calls())
	assert.Equal(t, []string{domain.EventRegistered, domain.EventFulfillmentFailed}, f.bus.keys)
}

func TestSaga_AlreadyRegisteredIsSuccess(t *testing.T) {
	f := newSagaFixture()
	f.registrar.registerErr = registrar.ErrAlreadyRegistered

	require.NoError(t, f.saga.Handle(context.Background(), request()))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Equal(t, 1, f.hosting.calls())
	assert.Nil(t, rec.ExpiresAt, "no expiry known when registrar skipped the purchase")
}

func TestSaga_RouteConflictDoesNotFailFulfillment(t *testing.T) {
	f := newSagaFixture()
	f.routes.err = routingdomain.ErrRouteConflict

	require.NoError(t, f.saga.Handle(context.Background(), request()))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Nil(t, rec.PortfolioID)
}

func TestSaga_NoPortfolioSkipsRouting(t *testing.T) {
	f := newSagaFixture()
	f.saga.portfolios = &fakeResolver{err: ErrNoPortfolio}

	require.NoError(t, f.saga.Handle(context.Background(), request()))

	rec := f.records.only(t)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Empty(t, f.routes.activated)
}

func TestSaga_HeldDomainLeavesFailedRecord(t *testing.T) {
	f := newSagaFixture()
	first := request()
	require.NoError(t, f.saga.Handle(context.Background(), first))

	// Same user pays for the same domain again under a new intent while
	// the first record is still live.
	second := first
	second.PaymentIntentID = "pi_456"
	require.NoError(t, f.saga.Handle(context.Background(), second))

	assert.Equal(t, 1, f.registrar.calls(), "held domain must not be re-registered")

	failed, err := f.records.ListByStatus(context.Background(), domain.StatusFailedRegistration, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1, "the captured payment must stay visible to support tooling")
	assert.Equal(t, "pi_456", failed[0].PaymentIntentID)
	assert.Equal(t, domain.StageFailed, failed[0].Stage)
	assert.Contains(t, failed[0].FailureReason, "already held")
	assert.Contains(t, f.bus.keys, domain.EventFulfillmentFailed)
}

type recordingClaimer struct {
	mu  sync.Mutex
	ttl time.Duration
}

func (f *recordingClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl = ttl
	return true, nil
}

func (f *recordingClaimer) Release(ctx context.Context, key string) error { return nil }

func TestSaga_ClaimTTLIsConfigurable(t *testing.T) {
	f := newSagaFixture()
	claims := &recordingClaimer{}
	f.saga.claims = claims
	f.saga.claimTTL = 2 * time.Minute

	require.NoError(t, f.saga.Handle(context.Background(), request()))
	assert.Equal(t, 2*time.Minute, claims.ttl)
}

func TestSaga_ClaimTTLDefaultsWhenUnset(t *testing.T) {
	claims := &recordingClaimer{}
	saga := NewSaga(SagaDeps{
		Records:    newFakeRecordRepo(),
		Registrar:  &fakeSagaRegistrar{},
		Hosting:    &fakeSagaHosting{verified: true},
		Routes:     &fakeRoutes{},
		Vouchers:   &fakeRedeemer{},
		Portfolios: &fakeResolver{ref: routingapp.PortfolioRef{ID: uuid.New()}},
		Bus:        &fakeBus{},
		Claims:     claims,
	})

	require.NoError(t, saga.Handle(context.Background(), request()))
	assert.Equal(t, defaultClaimTTL, claims.ttl)
}

func TestSaga_InvalidDomainRejected(t *testing.T) {
	f := newSagaFixture()
	req := request()
	req.Domain = ""

	err := f.saga.Handle(context.Background(), req)
	assert.Error(t, err)
	assert.Equal(t, 0, f.registrar.calls())
}
