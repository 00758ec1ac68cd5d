package hosting

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerClient wraps a Client with a circuit breaker.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[AttachResult]
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
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
		Name:        "hosting",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[AttachResult](settings),
	}
}

func (c *BreakerClient) Attach(ctx context.Context, domain string) (AttachResult, error) {
	return c.breaker.Execute(func() (AttachResult, error) {
		return c.inner.Attach(ctx, domain)
	})
}

func (c *BreakerClient) Verify(ctx context.Context, domain string) (AttachResult, error) {
	return c.breaker.Execute(func() (AttachResult, error) {
		return c.inner.Verify(ctx, domain)
	})
}
