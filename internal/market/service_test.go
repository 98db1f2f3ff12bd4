package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/iv-terminal/internal/analytics"
	"github.com/contactkeval/iv-terminal/internal/data"
)

var testNow = time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

// fakeProvider serves fixed data; chainErr fails individual expirations.
type fakeProvider struct {
	mu        sync.Mutex
	quote     *data.Quote
	quoteErr  error
	expiries  []time.Time
	expErr    error
	chains    map[string]*data.OptionChain
	chainErr  map[string]error
	requested []string
}

func (f *fakeProvider) Name() string             { return "fake" }
func (f *fakeProvider) Secondary() data.Provider { return nil }

func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (*data.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return f.expiries, f.expErr
}

func (f *fakeProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*data.OptionChain, error) {
	key := expiry.Format(data.DateLayout)
	f.mu.Lock()
	f.requested = append(f.requested, key)
	f.mu.Unlock()

	if err := f.chainErr[key]; err != nil {
		return nil, err
	}
	if c, ok := f.chains[key]; ok {
		return c, nil
	}
	return &data.OptionChain{Underlying: symbol, Expiration: expiry, DaysToExpiration: data.DaysToExpiration(expiry, testNow)}, nil
}

func day(n int) time.Time {
	return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func quoteAt(strike, iv float64) data.OptionQuote {
	return data.OptionQuote{Strike: strike, LastPrice: 1, Bid: 0.9, Ask: 1.1, ImpliedVolatility: data.NewVol(iv)}
}

func newFake() *fakeProvider {
	f := &fakeProvider{
		quote:    &data.Quote{Symbol: "SPY", Price: 100, PreviousClose: 98, Source: "fake"},
		chains:   map[string]*data.OptionChain{},
		chainErr: map[string]error{},
	}
	for i, n := range []int{0, 7, 14, 30, 40, 60, 90, 150, 200, 365} {
		e := day(n)
		f.expiries = append(f.expiries, e)
		iv := 0.20 + float64(i)/100
		f.chains[e.Format(data.DateLayout)] = &data.OptionChain{
			Underlying:       "SPY",
			Expiration:       e,
			DaysToExpiration: data.DaysToExpiration(e, testNow),
			Calls:            []data.OptionQuote{quoteAt(95, iv+0.02), quoteAt(100, iv), quoteAt(150, iv)},
			Puts:             []data.OptionQuote{quoteAt(100, iv+0.01), {Strike: 105, ImpliedVolatility: data.Vol{}}},
		}
	}
	return f
}

func newTestService(p data.Provider) *Service {
	s := NewService(p, data.NewStaticSymbols(nil), DefaultSettings())
	s.now = func() time.Time { return testNow }
	return s
}

func TestQuote(t *testing.T) {
	resp, err := newTestService(newFake()).Quote(context.Background(), "spy")
	require.NoError(t, err)

	assert.Equal(t, "spy", resp.Ticker)
	assert.Equal(t, "SPY", resp.ProviderTicker)
	require.NotNil(t, resp.Price)
	assert.Equal(t, 100.0, *resp.Price)
	require.NotNil(t, resp.Change)
	assert.Equal(t, 2.0, *resp.Change)
	assert.InDelta(t, 2.0408, *resp.ChangePct, 1e-4)
	assert.Equal(t, "2025-01-02T15:00:00Z", resp.Timestamp)
	assert.Nil(t, resp.MarketCap, "unknown market cap stays null")
	assert.Empty(t, resp.Error)
}

func TestQuote_MarketCap(t *testing.T) {
	f := newFake()
	f.quote = &data.Quote{Price: 230, PreviousClose: 228, MarketCap: 3.5e12, Source: "fake"}

	resp, err := newTestService(f).Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, resp.MarketCap)
	assert.Equal(t, 3.5e12, *resp.MarketCap)
}

func TestQuote_RemapsIndexTicker(t *testing.T) {
	resp, err := newTestService(newFake()).Quote(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, "I:SPX", resp.ProviderTicker)
}

func TestQuote_NoPreviousClose(t *testing.T) {
	f := newFake()
	f.quote = &data.Quote{Price: 50, Source: "fake"}

	resp, err := newTestService(f).Quote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Nil(t, resp.PreviousClose)
	assert.Nil(t, resp.Change)
	assert.Nil(t, resp.ChangePct)
}

func TestQuote_NoPrice(t *testing.T) {
	f := newFake()
	f.quoteErr = fmt.Errorf("wrapped: %w", data.ErrNoPriceData)

	resp, err := newTestService(f).Quote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Nil(t, resp.Price)
	assert.Equal(t, MsgNoSpot, resp.Error)
}

func TestQuote_UpstreamFailure(t *testing.T) {
	f := newFake()
	f.quoteErr = errors.New("connection reset")

	_, err := newTestService(f).Quote(context.Background(), "SPY")
	assert.Error(t, err)
}

func TestSurface(t *testing.T) {
	f := newFake()
	resp, err := newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)

	assert.Equal(t, 100.0, resp.Spot)
	assert.Empty(t, resp.Error)

	// first 6 expirations, the expired one dropped: 5 chains x (2 calls + 1 put)
	assert.Len(t, resp.Surface, 15)
	for _, p := range resp.Surface {
		assert.Greater(t, p.DTE, 0)
		assert.True(t, analytics.DefaultBand.Contains(p.Moneyness))
	}
	assert.Equal(t, 6, resp.Surface[0].DTE)
	assert.NotContains(t, f.requested, day(0).Format(data.DateLayout), "expired expiration must not be fetched")
	assert.Len(t, f.requested, 5)
}

func TestSurface_FailedChainIsDropped(t *testing.T) {
	f := newFake()
	f.chainErr[day(14).Format(data.DateLayout)] = errors.New("timeout")
	f.chainErr[day(30).Format(data.DateLayout)] = fmt.Errorf("row 3: %w", data.ErrMalformedQuote)

	resp, err := newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Len(t, resp.Surface, 9)
}

func TestSurface_AllChainsFailUpstream(t *testing.T) {
	f := newFake()
	outage := errors.New("context deadline exceeded")
	for _, e := range f.expiries {
		f.chainErr[e.Format(data.DateLayout)] = outage
	}

	_, err := newTestService(f).Surface(context.Background(), "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)

	_, err = newTestService(f).TermStructure(context.Background(), "SPY")
	assert.ErrorIs(t, err, outage)

	_, err = newTestService(f).Options(context.Background(), "SPY")
	assert.ErrorIs(t, err, outage)
}

func TestSurface_AllChainsMalformedIsNoData(t *testing.T) {
	f := newFake()
	for _, e := range f.expiries {
		f.chainErr[e.Format(data.DateLayout)] = fmt.Errorf("row 2: %w", data.ErrMalformedQuote)
	}
	// one outage among malformed chains is still a partial answer
	f.chainErr[day(7).Format(data.DateLayout)] = errors.New("connection reset")

	resp, err := newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Empty(t, resp.Surface)
	assert.Empty(t, resp.Error)
}

func TestSurface_NoOptions(t *testing.T) {
	f := newFake()
	f.expiries = nil

	resp, err := newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, MsgNoOptions, resp.Error)
	assert.NotNil(t, resp.Surface)
	assert.Empty(t, resp.Surface)
}

func TestSurface_NoOptionsSentinel(t *testing.T) {
	f := newFake()
	f.expErr = data.ErrNoOptionsData

	resp, err := newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, MsgNoOptions, resp.Error)
}

func TestSurface_NoSpot(t *testing.T) {
	f := newFake()
	f.quoteErr = data.ErrNoPriceData

	resp, err := newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, MsgNoSpot, resp.Error)
	assert.Empty(t, resp.Surface)
	assert.Empty(t, f.requested, "builders must not run without a spot")

	f.quoteErr = nil
	f.quote = &data.Quote{Price: 0}
	resp, err = newTestService(f).Surface(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, MsgNoSpot, resp.Error)
}

func TestSurface_ExpirationsFailure(t *testing.T) {
	f := newFake()
	f.expErr = errors.New("503 from upstream")

	_, err := newTestService(f).Surface(context.Background(), "SPY")
	assert.Error(t, err)
}

func TestTermStructure(t *testing.T) {
	resp, err := newTestService(newFake()).TermStructure(context.Background(), "SPY")
	require.NoError(t, err)

	// first 8 expirations minus the expired one
	require.Len(t, resp.Raw, 7)
	assert.Equal(t, 100.0, resp.Raw[0].ATMStrike)
	assert.Equal(t, 0.21, resp.Raw[0].ATMIV)

	assert.Equal(t, map[analytics.Tenor]float64{
		analytics.Tenor1W: 0.21,
		analytics.Tenor2W: 0.22,
		analytics.Tenor1M: 0.23, // dte 29; dte 39 lands in 1M too and loses
		analytics.Tenor2M: 0.25,
		analytics.Tenor3M: 0.26,
		analytics.Tenor6M: 0.27,
	}, resp.TermStructure)
}

func TestTermStructure_NoSpot(t *testing.T) {
	f := newFake()
	f.quoteErr = data.ErrNoPriceData

	resp, err := newTestService(f).TermStructure(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, MsgNoSpot, resp.Error)
	assert.Empty(t, resp.TermStructure)
	assert.Empty(t, resp.Raw)
}

func TestOptions(t *testing.T) {
	f := newFake()
	f.chainErr[day(7).Format(data.DateLayout)] = errors.New("timeout")

	resp, err := newTestService(f).Options(context.Background(), "SPY")
	require.NoError(t, err)

	assert.Len(t, resp.Expirations, 8)
	assert.Equal(t, "2025-01-02", resp.Expirations[0])
	require.Len(t, resp.Chains, 3)
	assert.Equal(t, "2025-01-02", resp.Chains[0].Expiration)
	assert.Equal(t, -1, resp.Chains[0].DTE)
	assert.Equal(t, "2025-01-16", resp.Chains[1].Expiration)
	assert.Equal(t, 0.0, resp.Chains[1].Puts[1].ImpliedVolatility, "missing volatility is reported as 0")
}

func TestOptions_NoData(t *testing.T) {
	f := newFake()
	f.expiries = []time.Time{}

	resp, err := newTestService(f).Options(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, MsgNoOptionsChain, resp.Error)
	assert.Empty(t, resp.Expirations)
	assert.NotNil(t, resp.Chains)
}
