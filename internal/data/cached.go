package data

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/contactkeval/iv-terminal/internal/logger"
)

// cachedProvider memoises successful answers of the wrapped provider for a
// short TTL. Errors are never cached.
type cachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// NewCachedProvider wraps inner with a TTL cache. A ttl <= 0 returns inner unchanged.
func NewCachedProvider(inner Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return inner
	}
	return &cachedProvider{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *cachedProvider) Name() string {
	return c.inner.Name()
}

func (c *cachedProvider) Secondary() Provider {
	return c.inner.Secondary()
}

func (c *cachedProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	key := "quote:" + symbol
	if v, found := c.cache.Get(key); found {
		logger.Tracef("%v: cache hit", key)
		return v.(*Quote), nil
	}

	q, err := c.inner.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, q)
	return q, nil
}

func (c *cachedProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	key := "exp:" + symbol
	if v, found := c.cache.Get(key); found {
		logger.Tracef("%v: cache hit", key)
		return v.([]time.Time), nil
	}

	expiries, err := c.inner.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, expiries)
	return expiries, nil
}

func (c *cachedProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	key := "chain:" + symbol + ":" + expiry.Format(DateLayout)
	if v, found := c.cache.Get(key); found {
		logger.Tracef("%v: cache hit", key)
		return v.(*OptionChain), nil
	}

	chain, err := c.inner.GetChain(ctx, symbol, expiry)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, chain)
	return chain, nil
}
