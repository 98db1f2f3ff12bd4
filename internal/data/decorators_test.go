package data

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider returns err when set, otherwise fixed data, and counts calls.
type countingProvider struct {
	calls int
	err   error
}

func (c *countingProvider) Name() string        { return "counting" }
func (c *countingProvider) Secondary() Provider { return nil }

func (c *countingProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &Quote{Symbol: symbol, Price: 100, Source: c.Name()}, nil
}

func (c *countingProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []time.Time{time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)}, nil
}

func (c *countingProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &OptionChain{Underlying: symbol, Expiration: expiry}, nil
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{}
	p := NewCachedProvider(inner, time.Minute)
	expiry := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := p.GetQuote(ctx, "SPY")
		require.NoError(t, err)
		_, err = p.GetExpirations(ctx, "SPY")
		require.NoError(t, err)
		_, err = p.GetChain(ctx, "SPY", expiry)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	_, err := p.GetChain(ctx, "SPY", expiry.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)
	assert.Equal(t, "counting", p.Name())
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: ErrNoPriceData}
	p := NewCachedProvider(inner, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := p.GetQuote(context.Background(), "SPY")
		assert.ErrorIs(t, err, ErrNoPriceData)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_Disabled(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), NewCachedProvider(inner, 0))
}

func TestGuardedProvider_OpensAfterFailures(t *testing.T) {
	inner := &countingProvider{err: errors.New("upstream down")}
	p := NewGuardedProvider(inner, GuardOptions{MaxConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := p.GetQuote(context.Background(), "SPY")
		require.Error(t, err)
	}

	_, err := p.GetQuote(context.Background(), "SPY")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach upstream")
}

func TestGuardedProvider_NoDataIsNotAFailure(t *testing.T) {
	inner := &countingProvider{err: fmt.Errorf("quote: %w", ErrNoPriceData)}
	p := NewGuardedProvider(inner, GuardOptions{MaxConsecutiveFailures: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := p.GetQuote(context.Background(), "SPY")
		assert.ErrorIs(t, err, ErrNoPriceData)
	}
	assert.Equal(t, 3, inner.calls)
}

func TestGuardedProvider_PassesThrough(t *testing.T) {
	p := NewGuardedProvider(&countingProvider{}, DefaultGuardOptions())

	chain, err := p.GetChain(context.Background(), "SPY", time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "SPY", chain.Underlying)

	expiries, err := p.GetExpirations(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Len(t, expiries, 1)
}

func TestGuardedProvider_CancelledWait(t *testing.T) {
	p := NewGuardedProvider(&countingProvider{}, GuardOptions{RatePerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.GetQuote(ctx, "SPY") // consumes the only token
	require.NoError(t, err)

	cancel()
	_, err = p.GetQuote(ctx, "SPY")
	assert.Error(t, err)
}

func TestStaticSymbols(t *testing.T) {
	s := NewStaticSymbols(map[string]string{"es": "ES=F", "SPX": "I:SPX.X"})

	assert.Equal(t, "I:SPX.X", s.Resolve("spx"))
	assert.Equal(t, "ES=F", s.Resolve("ES"))
	assert.Equal(t, "I:VIX", s.Resolve("vix"))
	assert.Equal(t, "AAPL", s.Resolve(" aapl "))
	assert.Equal(t, "I:NDX", DefaultSymbols.Resolve("ndx"))
}

func TestPolygonSnapshotToQuote(t *testing.T) {
	var snap models.OptionContractSnapshot
	snap.Details.StrikePrice = 580
	snap.Day.Close = 12.1
	snap.Day.Volume = 1500
	snap.LastQuote.Bid = 12.0
	snap.LastQuote.Ask = 12.3
	snap.OpenInterest = 20000

	q := polygonSnapshotToQuote(snap)
	assert.False(t, q.ImpliedVolatility.Valid)
	assert.Equal(t, 580.0, q.Strike)
	assert.Equal(t, int64(1500), q.Volume)

	snap.ImpliedVolatility = 0.1834
	q = polygonSnapshotToQuote(snap)
	assert.Equal(t, Vol{Value: 0.1834, Valid: true}, q.ImpliedVolatility)
}
