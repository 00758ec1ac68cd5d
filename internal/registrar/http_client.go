package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	smallResponseLimitBytes = int64(2 << 20)
	errorResponseLimitBytes = int64(1 << 20)
)

// HTTPClient talks to the registrar's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewHTTPClient creates a registrar client authenticated with an API
// key/secret pair.
func NewHTTPClient(baseURL, key, secret string) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("registrar: invalid base URL %q", baseURL)
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     key,
		apiSecret:  secret,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// CheckAvailability queries the registrar for a single domain.
func (c *HTTPClient) CheckAvailability(ctx context.Context, domain string) (Availability, error) {
	q := url.Values{}
	q.Set("domain", domain)
	// FULL gives a definitive answer for single lookups.
	q.Set("checkType", "FULL")
	var raw availabilityAPI
	if err := c.do(ctx, http.MethodGet, "/v1/domains/available?"+q.Encode(), nil, &raw, ""); err != nil {
		return Availability{}, err
	}
	return normalizeAvailability(raw), nil
}

// PriceList fetches the registrar's per-TLD retail price sheet.
func (c *HTTPClient) PriceList(ctx context.Context) (PriceList, error) {
	var raw priceListAPI
	if err := c.do(ctx, http.MethodGet, "/v1/domains/prices", nil, &raw, ""); err != nil {
		return nil, err
	}
	return normalizePriceList(raw)
}

// Register purchases the domain for the requested period.
func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (Registration, error) {
	years := req.Years
	if years <= 0 {
		years = 1
	}
	body := map[string]any{
		"domain":    req.Domain,
		"period":    years,
		"renewAuto": req.AutoRenew,
	}
	var out struct {
		Domain  string `json:"domain"`
		OrderID string `json:"orderId"`
		Expires string `json:"expires"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/domains/purchase", body, &out, req.IdempotencyKey); err != nil {
		if isAlreadyRegistered(err) {
			return Registration{}, ErrAlreadyRegistered
		}
		return Registration{}, err
	}
	return Registration{Domain: out.Domain, OrderID: out.OrderID, ExpiresAt: out.Expires}, nil
}

func isAlreadyRegistered(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusConflict || apiErr.Code == "DUPLICATE_DOMAIN" || apiErr.Code == "DOMAIN_ALREADY_OWNED"
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any, idempotencyKey string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registrar: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "sso-key "+c.apiKey+":"+c.apiSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registrar: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	limited := io.LimitReader(resp.Body, smallResponseLimitBytes)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("registrar: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, errorResponseLimitBytes))
	if err != nil {
		return apiErr
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
	}
	return apiErr
}

// availabilityAPI is the wire shape of an availability check. The price
// field is reported inconsistently: a number in dollars, a whole number
// of micro-units, or a numeric string depending on API version.
type availabilityAPI struct {
	Domain       string          `json:"domain"`
	Available    bool            `json:"available"`
	Premium      bool            `json:"premium,omitempty"`
	Price        json.RawMessage `json:"price,omitempty"`
	Fee          json.RawMessage `json:"fee,omitempty"`
	RegistrarFee json.RawMessage `json:"registrarFee,omitempty"`
}

func normalizeAvailability(in availabilityAPI) Availability {
	out := Availability{
		Domain:    in.Domain,
		Available: in.Available,
		Premium:   in.Premium,
	}
	out.PremiumPrice = normalizeProviderPrice(in.Price)
	fee := in.RegistrarFee
	if len(fee) == 0 {
		fee = in.Fee
	}
	out.RegistrarFee = normalizeProviderPrice(fee)
	return out
}

// priceListAPI is the wire shape of the price sheet. Some registrar API
// versions return `tlds` as an array, others as a single object when the
// account is scoped to one TLD; both shapes are normalized here so call
// sites never branch on them.
type priceListAPI struct {
	TLDs json.RawMessage `json:"tlds"`
}

type tldPriceAPI struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price"`
	Fee   json.RawMessage `json:"fee,omitempty"`
}

func normalizePriceList(in priceListAPI) (PriceList, error) {
	entries, err := normalizeTLDEntries(in.TLDs)
	if err != nil {
		return nil, err
	}
	list := make(PriceList, len(entries))
	for _, e := range entries {
		tld := strings.ToLower(strings.TrimPrefix(e.Name, "."))
		if tld == "" {
			continue
		}
		list[tld] = TLDPrice{
			TLD:          tld,
			Price:        normalizeProviderPrice(e.Price),
			RegistrarFee: normalizeProviderPrice(e.Fee),
		}
	}
	return list, nil
}

func normalizeTLDEntries(raw json.RawMessage) ([]tldPriceAPI, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var entries []tldPriceAPI
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("registrar: decode tld list: %w", err)
		}
		return entries, nil
	}
	var single tldPriceAPI
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("registrar: decode tld entry: %w", err)
	}
	return []tldPriceAPI{single}, nil
}

// normalizeProviderPrice converts whatever the registrar sent into
// dollars. Whole values of a million or more are micro-units.
func normalizeProviderPrice(raw json.RawMessage) decimal.Decimal {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Zero
	}
	s := string(trimmed)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	micros := decimal.NewFromInt(1_000_000)
	if d.IsInteger() && d.GreaterThanOrEqual(micros) {
		return d.Div(micros)
	}
	return d
}
