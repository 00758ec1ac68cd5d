package registrar

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerClient wraps a Client with a circuit breaker so a struggling
// registrar API fails fast instead of tying up checkout requests.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[any]
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the consecutive-failure count that trips the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns a sensible default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewBreakerClient wraps inner with a circuit breaker.
func NewBreakerClient(inner Client, cfg BreakerConfig) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        "registrar",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// An already-registered response is a business outcome, not a
		// registrar outage; it must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAlreadyRegistered)
		},
	}
	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (c *BreakerClient) CheckAvailability(ctx context.Context, domain string) (Availability, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.inner.CheckAvailability(ctx, domain)
	})
	if err != nil {
		return Availability{}, err
	}
	return result.(Availability), nil
}

func (c *BreakerClient) PriceList(ctx context.Context) (PriceList, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.inner.PriceList(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(PriceList), nil
}

func (c *BreakerClient) Register(ctx context.Context, req RegisterRequest) (Registration, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.inner.Register(ctx, req)
	})
	if err != nil {
		return Registration{}, err
	}
	return result.(Registration), nil
}
