// Package pricing computes the sellable price of a domain from registrar
// wholesale pricing plus platform markup rules.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/craftfolio/craftfolio/internal/registrar"
	"github.com/craftfolio/craftfolio/internal/shared/domain/domainname"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedTLD is returned when the registrar does not sell the TLD.
var ErrUnsupportedTLD = errors.New("pricing: unsupported TLD")

// Quote is the price offered to a customer for one domain. It is derived
// fresh on every checkout and never persisted or trusted from the client.
type Quote struct {
	Domain       string
	Available    bool
	Premium      bool
	BasePrice    decimal.Decimal
	RegistrarFee decimal.Decimal
	PlatformFee  decimal.Decimal
	TotalPrice   decimal.Decimal
}

// Config holds the platform's markup rules.
type Config struct {
	// FlatRetailPrice is what a customer pays for any standard domain
	// whose registrar cost is at or below it.
	FlatRetailPrice decimal.Decimal

	// FixedMarkup is added on top of registrar cost for standard domains
	// priced above FlatRetailPrice.
	FixedMarkup decimal.Decimal
}

// Engine quotes domain prices. Price-list lookups go through an injected
// cache; a refresh mutex keeps concurrent cache misses from stampeding
// the registrar from a single process.
type Engine struct {
	client registrar.Client
	cache  PriceListCache
	cfg    Config
	logger *slog.Logger

	refreshMu sync.Mutex
}

// NewEngine creates a pricing engine.
func NewEngine(client registrar.Client, cache PriceListCache, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, cache: cache, cfg: cfg, logger: logger}
}

// Quote prices a single domain. Unavailable domains short-circuit with
// Available=false and no price fields computed.
func (e *Engine) Quote(ctx context.Context, rawDomain string) (Quote, error) {
	domain, err := domainname.Normalize(rawDomain)
	if err != nil {
		return Quote{}, err
	}
	_, tld, err := domainname.Split(domain)
	if err != nil {
		return Quote{}, err
	}

	avail, err := e.client.CheckAvailability(ctx, domain)
	if err != nil {
		return Quote{}, fmt.Errorf("availability check for %s: %w", domain, err)
	}
	if !avail.Available {
		return Quote{Domain: domain, Available: false}, nil
	}

	if avail.Premium {
		// Premium prices are registry-set and passed through unmarked.
		total := avail.PremiumPrice.Add(avail.RegistrarFee).Round(2)
		return Quote{
			Domain:       domain,
			Available:    true,
			Premium:      true,
			BasePrice:    avail.PremiumPrice,
			RegistrarFee: avail.RegistrarFee,
			PlatformFee:  decimal.Zero,
			TotalPrice:   total,
		}, nil
	}

	list, err := e.priceList(ctx)
	if err != nil {
		return Quote{}, err
	}
	tldPrice, ok := list[tld]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedTLD, tld)
	}

	quote := Quote{
		Domain:       domain,
		Available:    true,
		BasePrice:    tldPrice.Price,
		RegistrarFee: tldPrice.RegistrarFee,
	}
	// Standard domains at or below the flat retail price always sell for
	// exactly the flat price; the platform margin absorbs registrar cost.
	// Above it, a fixed markup rides on top of registrar cost. Rounding
	// happens once, on the final total.
	if tldPrice.Price.LessThanOrEqual(e.cfg.FlatRetailPrice) {
		quote.PlatformFee = e.cfg.FlatRetailPrice.Sub(tldPrice.Price)
		quote.TotalPrice = e.cfg.FlatRetailPrice.Add(tldPrice.RegistrarFee).Round(2)
	} else {
		quote.PlatformFee = e.cfg.FixedMarkup
		quote.TotalPrice = tldPrice.Price.Add(tldPrice.RegistrarFee).Add(e.cfg.FixedMarkup).Round(2)
	}
	return quote, nil
}

func (e *Engine) priceList(ctx context.Context) (registrar.PriceList, error) {
	list, ok, err := e.cache.Get(ctx)
	if err != nil {
		e.logger.Warn("price list cache read failed", "error", err)
	}
	if ok {
		return list, nil
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	list, ok, err = e.cache.Get(ctx)
	if err == nil && ok {
		return list, nil
	}

	list, err = e.client.PriceList(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch registrar price list: %w", err)
	}
	if err := e.cache.Set(ctx, list); err != nil {
		e.logger.Warn("price list cache write failed", "error", err)
	}
	return list, nil
}
