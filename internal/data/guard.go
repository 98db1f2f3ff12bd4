package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/contactkeval/iv-terminal/internal/logger"
)

// GuardOptions configures the rate limiter and circuit breaker placed in
// front of an upstream provider.
type GuardOptions struct {
	RatePerSecond          float64       `yaml:"rate_per_second"`
	Burst                  int           `yaml:"burst"`
	MaxConsecutiveFailures uint32        `yaml:"max_consecutive_failures"`
	OpenTimeout            time.Duration `yaml:"open_timeout"`
}

// DefaultGuardOptions suits the free tiers of the hosted providers.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		RatePerSecond:          5,
		Burst:                  10,
		MaxConsecutiveFailures: 5,
		OpenTimeout:            30 * time.Second,
	}
}

// guardedProvider throttles calls and stops calling an upstream that keeps
// failing. "No data" answers and caller cancellation do not count as failures.
type guardedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedProvider wraps inner. A RatePerSecond <= 0 disables throttling.
func NewGuardedProvider(inner Provider, opts GuardOptions) Provider {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	maxFailures := opts.MaxConsecutiveFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s changed: %s -> %s", name, from, to)
		},
	}

	return &guardedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNoPriceData) ||
		errors.Is(err, ErrNoOptionsData) ||
		errors.Is(err, ErrMalformedQuote) ||
		errors.Is(err, context.Canceled)
}

func (g *guardedProvider) Name() string {
	return g.inner.Name()
}

func (g *guardedProvider) Secondary() Provider {
	return g.inner.Secondary()
}

func (g *guardedProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.GetQuote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

func (g *guardedProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.GetExpirations(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.([]time.Time), nil
}

func (g *guardedProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.GetChain(ctx, symbol, expiry)
	})
	if err != nil {
		return nil, err
	}
	return v.(*OptionChain), nil
}

func (g *guardedProvider) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", g.inner.Name(), err)
	}

	v, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s unavailable: %w", g.inner.Name(), err)
	}
	return v, err
}
