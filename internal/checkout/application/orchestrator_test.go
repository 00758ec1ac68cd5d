package application

import (
	"context"
	"errors"
	"testing"
	"time"

	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	"github.com/craftfolio/craftfolio/internal/pricing"
	voucherapp "github.com/craftfolio/craftfolio/internal/vouchers/application"
	voucherdomain "github.com/craftfolio/craftfolio/internal/vouchers/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuoter struct {
	quote pricing.Quote
	err   error
}

func (f *fakeQuoter) Quote(ctx context.Context, domain string) (pricing.Quote, error) {
	if f.err != nil {
		return pricing.Quote{}, f.err
	}
	return f.quote, nil
}

type fakeApplier struct {
	total decimal.Decimal
	grant *voucherdomain.UserVoucher
	err   error

	bestCalls  int
	grantCalls int
}

func (f *fakeApplier) ApplyBest(ctx context.Context, userID uuid.UUID, price decimal.Decimal) (decimal.Decimal, *voucherdomain.UserVoucher, error) {
	f.bestCalls++
	if f.err != nil {
		return decimal.Zero, nil, f.err
	}
	if f.grant == nil {
		return price, nil, nil
	}
	return f.total, f.grant, nil
}

func (f *fakeApplier) ApplyGrant(ctx context.Context, userID, grantID uuid.UUID, price decimal.Decimal) (decimal.Decimal, *voucherdomain.UserVoucher, error) {
	f.grantCalls++
	if f.err != nil {
		return decimal.Zero, nil, f.err
	}
	return f.total, f.grant, nil
}

type fakeProvider struct {
	lastParams SessionParams
	calls      int
	err        error
}

func (f *fakeProvider) CreateSession(ctx context.Context, params SessionParams) (Session, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return Session{}, f.err
	}
	return Session{ID: "cs_test_1", URL: "https://pay.test/cs_test_1"}, nil
}

type fakeFulfiller struct {
	requests []domainsapp.FulfillmentRequest
	err      error
}

func (f *fakeFulfiller) Handle(ctx context.Context, req domainsapp.FulfillmentRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func availableQuote(total string) pricing.Quote {
	return pricing.Quote{
		Domain:     "example.com",
		Available:  true,
		TotalPrice: decimal.RequireFromString(total),
	}
}

func TestCreateCheckout_FullPrice(t *testing.T) {
	provider := &fakeProvider{}
	o := NewOrchestrator(&fakeQuoter{quote: availableQuote("20.17")}, &fakeApplier{}, provider, &fakeFulfiller{}, "https://app.test/done", nil)

	userID := uuid.New()
	res, err := o.CreateCheckout(context.Background(), userID, "example.com", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://pay.test/cs_test_1", res.URL)
	assert.Equal(t, int64(2017), res.AmountCents)
	assert.False(t, res.Free)
	assert.Equal(t, int64(2017), provider.lastParams.AmountCents)
	assert.Equal(t, "example.com", provider.lastParams.Domain)
	assert.Equal(t, userID, provider.lastParams.UserID)
	assert.Nil(t, provider.lastParams.VoucherGrantID)
}

func TestCreateCheckout_BestVoucherApplied(t *testing.T) {
	grant := &voucherdomain.UserVoucher{ID: uuid.New()}
	applier := &fakeApplier{total: decimal.RequireFromString("15.17"), grant: grant}
	provider := &fakeProvider{}
	o := NewOrchestrator(&fakeQuoter{quote: availableQuote("20.17")}, applier, provider, &fakeFulfiller{}, "", nil)

	res, err := o.CreateCheckout(context.Background(), uuid.New(), "example.com", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1517), res.AmountCents)
	assert.Equal(t, 1, applier.bestCalls)
	require.NotNil(t, provider.lastParams.VoucherGrantID)
	assert.Equal(t, grant.ID, *provider.lastParams.VoucherGrantID)
}

func TestCreateCheckout_SpecificGrantRequested(t *testing.T) {
	grant := &voucherdomain.UserVoucher{ID: uuid.New()}
	applier := &fakeApplier{total: decimal.RequireFromString("10.00"), grant: grant}
	o := NewOrchestrator(&fakeQuoter{quote: availableQuote("20.17")}, applier, &fakeProvider{}, &fakeFulfiller{}, "", nil)

	_, err := o.CreateCheckout(context.Background(), uuid.New(), "example.com", &grant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, applier.grantCalls)
	assert.Equal(t, 0, applier.bestCalls)
}

func TestCreateCheckout_VoucherErrorDegradesToFullPrice(t *testing.T) {
	applier := &fakeApplier{err: voucherapp.ErrVoucherNotApplicable}
	provider := &fakeProvider{}
	o := NewOrchestrator(&fakeQuoter{quote: availableQuote("20.17")}, applier, provider, &fakeFulfiller{}, "", nil)

	grantID := uuid.New()
	res, err := o.CreateCheckout(context.Background(), uuid.New(), "example.com", &grantID)
	require.NoError(t, err)

	assert.Equal(t, int64(2017), res.AmountCents)
	assert.Nil(t, provider.lastParams.VoucherGrantID)
}

func TestCreateCheckout_FreeCheckoutSkipsPayment(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour)
	grant := &voucherdomain.UserVoucher{ID: uuid.New(), Status: voucherdomain.GrantActive, ExpiresAt: &expiresAt}
	applier := &fakeApplier{total: decimal.Zero, grant: grant}
	provider := &fakeProvider{}
	fulfiller := &fakeFulfiller{}
	o := NewOrchestrator(&fakeQuoter{quote: availableQuote("20.17")}, applier, provider, fulfiller, "https://app.test/done", nil)

	userID := uuid.New()
	res, err := o.CreateCheckout(context.Background(), userID, "example.com", &grant.ID)
	require.NoError(t, err)

	assert.True(t, res.Free)
	assert.Equal(t, "https://app.test/done", res.URL)
	assert.Equal(t, 0, provider.calls)
	require.Len(t, fulfiller.requests, 1)
	req := fulfiller.requests[0]
	assert.Equal(t, "example.com", req.Domain)
	assert.Equal(t, "voucher_"+grant.ID.String(), req.PaymentIntentID)
	require.NotNil(t, req.VoucherGrantID)
	assert.Equal(t, grant.ID, *req.VoucherGrantID)
}

func TestCreateCheckout_UnavailableDomain(t *testing.T) {
	o := NewOrchestrator(&fakeQuoter{quote: pricing.Quote{Domain: "example.com", Available: false}}, &fakeApplier{}, &fakeProvider{}, &fakeFulfiller{}, "", nil)

	_, err := o.CreateCheckout(context.Background(), uuid.New(), "example.com", nil)
	assert.ErrorIs(t, err, ErrDomainUnavailable)
}

func TestCreateCheckout_ProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("stripe down")}
	o := NewOrchestrator(&fakeQuoter{quote: availableQuote("20.17")}, &fakeApplier{}, provider, &fakeFulfiller{}, "", nil)

	_, err := o.CreateCheckout(context.Background(), uuid.New(), "example.com", nil)
	assert.Error(t, err)
}
