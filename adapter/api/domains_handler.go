package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	checkoutapp "github.com/craftfolio/craftfolio/internal/checkout/application"
	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	domainsdomain "github.com/craftfolio/craftfolio/internal/domains/domain"
	"github.com/craftfolio/craftfolio/internal/hosting"
	"github.com/craftfolio/craftfolio/internal/pricing"
	routingdomain "github.com/craftfolio/craftfolio/internal/routing/domain"
	"github.com/craftfolio/craftfolio/internal/shared/domain/domainname"
	"github.com/craftfolio/craftfolio/pkg/observability"
	"github.com/google/uuid"
)

// maxWebhookBody bounds payment provider webhook payloads.
const maxWebhookBody = 1 << 20

// Quoter prices a domain for the public price check.
type Quoter interface {
	Quote(ctx context.Context, domain string) (pricing.Quote, error)
}

// CheckoutStarter opens payment sessions.
type CheckoutStarter interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, domain string, voucherGrantID *uuid.UUID) (checkoutapp.CheckoutResult, error)
}

// WebhookProcessor handles raw payment provider webhooks.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

// DomainService covers verification, external domains and listing.
type DomainService interface {
	Verify(ctx context.Context, userID uuid.UUID, domain string) (domainsapp.VerifyResult, error)
	AttachExternal(ctx context.Context, userID uuid.UUID, domain string) (*domainsdomain.Record, domainsapp.VerifyResult, error)
	List(ctx context.Context, userID uuid.UUID) ([]domainsdomain.Record, error)
}

// RouteLookup resolves a domain to the portfolio it serves.
type RouteLookup interface {
	Lookup(ctx context.Context, domain string) (*routingdomain.Entry, error)
}

// TokenVerifier resolves a bearer token to a user. The auth service
// itself lives elsewhere; this is the only surface the API needs.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uuid.UUID, error)
}

// DomainsHandler handles the domain acquisition API requests.
type DomainsHandler struct {
	quoter   Quoter
	checkout CheckoutStarter
	webhooks WebhookProcessor
	domains  DomainService
	routes   RouteLookup
	auth     TokenVerifier
	metrics  observability.Metrics
	logger   *slog.Logger
}

// DomainsHandlerConfig holds dependencies for the domains handler.
type DomainsHandlerConfig struct {
	Quoter   Quoter
	Checkout CheckoutStarter
	Webhooks WebhookProcessor
	Domains  DomainService
	Routes   RouteLookup
	Auth     TokenVerifier
	Metrics  observability.Metrics
	Logger   *slog.Logger
}

// NewDomainsHandler creates a new domains handler.
func NewDomainsHandler(cfg DomainsHandlerConfig) *DomainsHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &DomainsHandler{
		quoter:   cfg.Quoter,
		checkout: cfg.Checkout,
		webhooks: cfg.Webhooks,
		domains:  cfg.Domains,
		routes:   cfg.Routes,
		auth:     cfg.Auth,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// authenticated wraps a handler with bearer-token authentication. The
// resolved user ID rides in the request context.
func (h *DomainsHandler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		userID, err := h.auth.VerifyToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := observability.WithUserID(r.Context(), userID.String())
		next(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func userFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(observability.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type quoteResponse struct {
	Domain       string `json:"domain"`
	Available    bool   `json:"available"`
	Premium      bool   `json:"isPremium"`
	BasePrice    string `json:"basePrice,omitempty"`
	RegistrarFee string `json:"registrarFee,omitempty"`
	PlatformFee  string `json:"platformFee,omitempty"`
	TotalPrice   string `json:"totalPrice,omitempty"`
}

// PriceCheck handles GET /api/v1/pricecheck/{domain}
func (h *DomainsHandler) PriceCheck(w http.ResponseWriter, r *http.Request) {
	timer := observability.StartTimer("pricecheck").WithMetrics(h.metrics)
	quote, err := h.quoter.Quote(r.Context(), r.PathValue("domain"))
	timer.StopWithError(err)
	if err != nil {
		switch {
		case errors.Is(err, domainname.ErrInvalid):
			writeError(w, http.StatusBadRequest, "Invalid domain name")
		case errors.Is(err, pricing.ErrUnsupportedTLD):
			writeError(w, http.StatusUnprocessableEntity, "Unsupported TLD")
		default:
			h.logger.Error("price check failed", "domain", r.PathValue("domain"), "error", err)
			writeError(w, http.StatusBadGateway, "Pricing temporarily unavailable")
		}
		return
	}

	h.metrics.Counter(observability.MetricQuotesServed, 1)
	resp := quoteResponse{
		Domain:    quote.Domain,
		Available: quote.Available,
		Premium:   quote.Premium,
	}
	if quote.Available {
		resp.BasePrice = quote.BasePrice.StringFixed(2)
		resp.RegistrarFee = quote.RegistrarFee.StringFixed(2)
		resp.PlatformFee = quote.PlatformFee.StringFixed(2)
		resp.TotalPrice = quote.TotalPrice.StringFixed(2)
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkoutRequest struct {
	Domain         string `json:"domain"`
	VoucherGrantID string `json:"voucherId,omitempty"`
}

// CreateCheckout handles POST /api/v1/checkout
func (h *DomainsHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing user")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "Request must include a domain")
		return
	}
	var grantID *uuid.UUID
	if req.VoucherGrantID != "" {
		id, err := uuid.Parse(req.VoucherGrantID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid voucher ID")
			return
		}
		grantID = &id
	}

	result, err := h.checkout.CreateCheckout(r.Context(), userID, req.Domain, grantID)
	if err != nil {
		switch {
		case errors.Is(err, domainname.ErrInvalid):
			writeError(w, http.StatusBadRequest, "Invalid domain name")
		case errors.Is(err, checkoutapp.ErrDomainUnavailable):
			writeError(w, http.StatusConflict, "Domain is not available")
		case errors.Is(err, pricing.ErrUnsupportedTLD):
			writeError(w, http.StatusUnprocessableEntity, "Unsupported TLD")
		default:
			h.logger.Error("checkout failed", "domain", req.Domain, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Checkout failed")
		}
		return
	}

	h.metrics.Counter(observability.MetricCheckoutsCreated, 1)
	writeJSON(w, http.StatusCreated, map[string]any{
		"url":         result.URL,
		"amountCents": result.AmountCents,
		"free":        result.Free,
	})
}

// StripeWebhook handles POST /api/v1/webhooks/stripe. The raw body is
// read before any parsing: signature verification needs the exact
// bytes.
func (h *DomainsHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cannot read payload")
		return
	}

	h.metrics.Counter(observability.MetricWebhooksReceived, 1)
	if err := h.webhooks.Process(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, checkoutapp.ErrBadSignature) {
			h.metrics.Counter(observability.MetricWebhooksRejected, 1)
			writeError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		h.logger.Error("webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type verifyResponse struct {
	Activated bool               `json:"activated"`
	DNSRecord *hosting.DNSRecord `json:"dnsRecord,omitempty"`
}

// VerifyDomain handles POST /api/v1/domains/{domain}/verify
func (h *DomainsHandler) VerifyDomain(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing user")
		return
	}

	result, err := h.domains.Verify(r.Context(), userID, r.PathValue("domain"))
	if err != nil {
		switch {
		case errors.Is(err, domainsapp.ErrAlreadyActive):
			// Verification of an active domain is a success, not an error.
		case errors.Is(err, domainsdomain.ErrNotFound):
			writeError(w, http.StatusNotFound, "Domain not found")
			return
		default:
			h.logger.Error("verification failed", "domain", r.PathValue("domain"), "error", err)
			writeError(w, http.StatusBadGateway, "Verification temporarily unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Activated: result.Verified,
		DNSRecord: result.Required,
	})
}

type attachExternalRequest struct {
	Domain string `json:"domain"`
}

// AttachExternal handles POST /api/v1/domains/byo
func (h *DomainsHandler) AttachExternal(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing user")
		return
	}

	var req attachExternalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "Request must include a domain")
		return
	}

	rec, result, err := h.domains.AttachExternal(r.Context(), userID, req.Domain)
	if err != nil {
		switch {
		case errors.Is(err, domainname.ErrInvalid):
			writeError(w, http.StatusBadRequest, "Invalid domain name")
		case errors.Is(err, domainsdomain.ErrDomainHeld):
			writeError(w, http.StatusConflict, "Domain already in use")
		default:
			h.logger.Error("external attach failed", "domain", req.Domain, "error", err)
			writeError(w, http.StatusBadGateway, "Hosting temporarily unavailable")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"domain":    rec.Domain,
		"type":      rec.Type,
		"status":    rec.Status,
		"activated": result.Verified,
		"dnsRecord": result.Required,
	})
}

type domainRecordResponse struct {
	Domain        string `json:"domain"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	DNSConfigured bool   `json:"dnsConfigured"`
	AutoRenew     bool   `json:"autoRenew"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

// ListDomains handles GET /api/v1/domains
func (h *DomainsHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing user")
		return
	}

	records, err := h.domains.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("list domains failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list domains")
		return
	}

	out := make([]domainRecordResponse, 0, len(records))
	for _, rec := range records {
		item := domainRecordResponse{
			Domain:        rec.Domain,
			Type:          string(rec.Type),
			Status:        string(rec.Status),
			DNSConfigured: rec.DNSConfigured,
			AutoRenew:     rec.AutoRenew,
		}
		if rec.ExpiresAt != nil {
			item.ExpiresAt = rec.ExpiresAt.UTC().Format("2006-01-02")
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": out})
}

// Lookup handles GET /api/v1/lookup/{domain}
func (h *DomainsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	entry, err := h.routes.Lookup(r.Context(), r.PathValue("domain"))
	if err != nil {
		if errors.Is(err, routingdomain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No active route for domain")
			return
		}
		h.logger.Error("route lookup failed", "domain", r.PathValue("domain"), "error", err)
		writeError(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	h.metrics.Counter(observability.MetricRouteLookups, 1)
	writeJSON(w, http.StatusOK, map[string]string{
		"domain":        entry.Domain,
		"portfolioId":   entry.PortfolioID.String(),
		"portfolioType": entry.PortfolioType,
	})
}
