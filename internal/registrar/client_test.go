package registrar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewHTTPClient(srv.URL, "key", "secret")
	require.NoError(t, err)
	return client
}

func TestCheckAvailability_Available(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/domains/available", r.URL.Path)
		assert.Equal(t, "sso-key key:secret", r.Header.Get("Authorization"))
		assert.Equal(t, "FULL", r.URL.Query().Get("checkType"))
		_, _ = w.Write([]byte(`{"domain":"example.com","available":true,"fee":0.18}`))
	})

	got, err := client.CheckAvailability(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.False(t, got.Premium)
	assert.True(t, got.RegistrarFee.Equal(decimal.RequireFromString("0.18")))
}

func TestCheckAvailability_PremiumMicroUnits(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"domain":"one.io","available":true,"premium":true,"price":349990000,"fee":"180000"}`))
	})

	got, err := client.CheckAvailability(context.Background(), "one.io")
	require.NoError(t, err)
	assert.True(t, got.Premium)
	assert.True(t, got.PremiumPrice.Equal(decimal.RequireFromString("349.99")), "got %s", got.PremiumPrice)
	// Fee below a million is taken at face value even as a string.
	assert.True(t, got.RegistrarFee.Equal(decimal.NewFromInt(180000)))
}

func TestNormalizeProviderPrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, "0"},
		{"null", `null`, "0"},
		{"dollars", `12.99`, "12.99"},
		{"micros", `11990000`, "11.99"},
		{"string dollars", `"8.50"`, "8.5"},
		{"string micros", `"25000000"`, "25"},
		{"garbage", `"n/a"`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeProviderPrice(json.RawMessage(tt.raw))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestPriceList_ArrayShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/domains/prices", r.URL.Path)
		_, _ = w.Write([]byte(`{"tlds":[
			{"name":"com","price":11990000,"fee":"0.18"},
			{"name":".dev","price":"14.99","fee":0.18}
		]}`))
	})

	list, err := client.PriceList(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list["com"].Price.Equal(decimal.RequireFromString("11.99")))
	// Leading dot is stripped during normalization.
	assert.True(t, list["dev"].Price.Equal(decimal.RequireFromString("14.99")))
}

func TestPriceList_SingleObjectShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tlds":{"name":"com","price":11990000,"fee":0.18}}`))
	})

	list, err := client.PriceList(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list["com"].Price.Equal(decimal.RequireFromString("11.99")))
}

func TestRegister_SendsIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/domains/purchase", r.URL.Path)
		assert.Equal(t, "pi_123", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "example.com", body["domain"])
		assert.Equal(t, float64(1), body["period"])

		_, _ = w.Write([]byte(`{"domain":"example.com","orderId":"ord-1","expires":"2027-08-28T00:00:00Z"}`))
	})

	reg, err := client.Register(context.Background(), RegisterRequest{
		Domain:         "example.com",
		IdempotencyKey: "pi_123",
		AutoRenew:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", reg.OrderID)
	assert.Equal(t, "2027-08-28T00:00:00Z", reg.ExpiresAt)
}

func TestRegister_DuplicateMapsToAlreadyRegistered(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"DUPLICATE_DOMAIN","message":"domain already in account"}`))
	})

	_, err := client.Register(context.Background(), RegisterRequest{Domain: "example.com"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegister_APIErrorSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID_DOMAIN","message":"tld not supported"}`))
	})

	_, err := client.Register(context.Background(), RegisterRequest{Domain: "example.zzz"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_DOMAIN", apiErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}
