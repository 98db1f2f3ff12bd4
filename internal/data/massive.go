// Package data provides market data provider implementations.
//
// This file contains a Massive-backed Provider implementation that retrieves
// underlying quotes, listed expirations and option chain snapshots through
// the Massive REST SDK.
//
// Design notes:
//   - Pagination is left to the SDK iterators
//   - HTTP 429 is retried on the SDK's HTTP client, 403/404 mean "no data"
//   - Logging is verbose at Debug/Trace levels for diagnostics
package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	massive "github.com/massive-com/client-go/v2/rest"
	"github.com/massive-com/client-go/v2/rest/models"

	"github.com/contactkeval/iv-terminal/internal/logger"
)

const (
	// maxRateLimitRetries bounds how often a 429 is retried before giving up.
	maxRateLimitRetries = 3

	contractsPageLimit = 1000
	chainPageLimit     = 250
)

// massiveDataProvider implements the Provider interface using Massive APIs.
type massiveDataProvider struct {
	client *massive.Client

	// secondary is an optional fallback provider.
	secondary Provider

	now func() time.Time
}

// NewMassiveDataProvider constructs a Massive-backed data provider.
func NewMassiveDataProvider(apiKey string, secondary Provider) *massiveDataProvider {
	logger.Infof("initializing Massive data provider")
	return newMassiveDataProvider(massive.New(apiKey), secondary)
}

// newMassiveDataProvider wires rate-limit retries onto the SDK client.
// Between attempts resty backs off from RetryWaitTime up to one minute,
// Massive's rate window.
func newMassiveDataProvider(client *massive.Client, secondary Provider) *massiveDataProvider {
	client.HTTP.
		SetRetryCount(maxRateLimitRetries).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(time.Minute).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() == http.StatusTooManyRequests)
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			if r != nil && r.StatusCode() == http.StatusTooManyRequests {
				logger.Infof("massive rate limit hit on %s, retrying", r.Request.URL)
			}
		})

	return &massiveDataProvider{
		client:    client,
		secondary: secondary,
		now:       time.Now,
	}
}

// Name identifies the provider in responses and logs.
func (massiveDataProv *massiveDataProvider) Name() string {
	return "massive"
}

// Secondary returns the configured secondary Provider, if any.
func (massiveDataProv *massiveDataProvider) Secondary() Provider {
	return massiveDataProv.secondary
}

// GetQuote returns the last trade price and the previous daily close.
//
// When the last-trade endpoint has nothing (plan restrictions, closed market)
// the previous close doubles as the price, the same fallback a daily-history
// lookup would give. ErrNoPriceData is returned when neither is available.
func (massiveDataProv *massiveDataProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	logger.Debugf("quote request: %s", symbol)

	price, err := massiveDataProv.lastTradePrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("massive last trade %s: %w", symbol, err)
	}

	prevClose, err := massiveDataProv.previousClose(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("massive previous close %s: %w", symbol, err)
	}

	if price == 0 {
		logger.Tracef("no last trade for %s, falling back to previous close", symbol)
		price = prevClose
	}

	if price == 0 {
		if massiveDataProv.secondary != nil {
			logger.Tracef("delegating quote to secondary provider")
			return massiveDataProv.secondary.GetQuote(ctx, symbol)
		}
		return nil, fmt.Errorf("massive quote %s: %w", symbol, ErrNoPriceData)
	}

	return &Quote{
		Symbol:        symbol,
		Price:         price,
		PreviousClose: prevClose,
		MarketCap:     massiveDataProv.marketCap(ctx, symbol),
		Source:        massiveDataProv.Name(),
	}, nil
}

// lastTradePrice returns 0 without error when Massive has no trade to report.
func (massiveDataProv *massiveDataProvider) lastTradePrice(ctx context.Context, symbol string) (float64, error) {
	res, err := massiveDataProv.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
	if isMassiveNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return res.Results.Price, nil
}

// previousClose returns 0 without error when Massive has no daily bar.
func (massiveDataProv *massiveDataProvider) previousClose(ctx context.Context, symbol string) (float64, error) {
	params := models.GetPreviousCloseAggParams{Ticker: symbol}.WithAdjusted(true)

	res, err := massiveDataProv.client.GetPreviousCloseAgg(ctx, params)
	if isMassiveNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(res.Results) == 0 {
		return 0, nil
	}
	return res.Results[len(res.Results)-1].Close, nil
}

// marketCap is best effort: indices and unentitled symbols have none.
func (massiveDataProv *massiveDataProvider) marketCap(ctx context.Context, symbol string) float64 {
	res, err := massiveDataProv.client.GetTickerDetails(ctx, &models.GetTickerDetailsParams{Ticker: symbol})
	if err != nil {
		logger.Debugf("massive ticker details %s: %v", symbol, err)
		return 0
	}
	return res.Results.MarketCap
}

// GetExpirations returns the unexpired listed expirations for the underlying,
// nearest first.
func (massiveDataProv *massiveDataProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	now := massiveDataProv.now()

	contracts, err := massiveDataProv.getContracts(ctx, symbol, now)
	if err != nil {
		return nil, err
	}

	expiries := make([]time.Time, 0, len(contracts))
	for _, c := range contracts {
		expiries = append(expiries, c.ExpiryDate)
	}
	expiries = UniqueSortedDates(expiries)

	if len(expiries) == 0 && massiveDataProv.secondary != nil {
		logger.Tracef("no expiries from massive, delegating to secondary provider")
		return massiveDataProv.secondary.GetExpirations(ctx, symbol)
	}

	logger.Debugf("resolved %d unique expiries for %s", len(expiries), symbol)
	return expiries, nil
}

// getContracts retrieves the option contracts listed for the underlying that
// expire on or after fromDate. The SDK iterator follows next_url.
func (massiveDataProv *massiveDataProvider) getContracts(ctx context.Context, underlying string, fromDate time.Time) ([]OptionContract, error) {
	logger.Tracef("fetching option contracts: %s from=%s", underlying, fromDate.Format(DateLayout))

	params := models.ListOptionsContractsParams{}.
		WithUnderlyingTicker(models.EQ, underlying).
		WithExpirationDate(models.GTE, models.Date(fromDate)).
		WithExpired(false).
		WithLimit(contractsPageLimit)

	iter := massiveDataProv.client.ListOptionsContracts(ctx, params)

	out := []OptionContract{}
	loc := fromDate.Location()
	for iter.Next() {
		c := iter.Item()
		y, m, d := time.Time(c.ExpirationDate).Date()
		out = append(out, OptionContract{
			ExpiryDate: time.Date(y, m, d, 0, 0, 0, 0, loc),
			Strike:     c.StrikePrice,
			Type:       c.ContractType,
		})
	}
	if err := iter.Err(); err != nil {
		if isMassiveNotFound(err) {
			logger.Debugf("massive has no contracts for %s", underlying)
			return out, nil
		}
		return nil, fmt.Errorf("massive contracts %s: %w", underlying, err)
	}

	logger.Tracef("received %d contracts", len(out))
	return out, nil
}

// GetChain retrieves the option chain snapshot of one expiration.
// Calls and puts keep the order Massive returned them in.
func (massiveDataProv *massiveDataProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	now := massiveDataProv.now()
	logger.Debugf("chain request: %s expiry=%s", symbol, expiry.Format(DateLayout))

	chain := &OptionChain{
		Underlying:       symbol,
		Expiration:       expiry,
		DaysToExpiration: DaysToExpiration(expiry, now),
	}

	y, m, d := expiry.Date()
	params := models.ListOptionsChainParams{UnderlyingAsset: symbol}.
		WithExpirationDate(models.EQ, models.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))).
		WithLimit(chainPageLimit)

	iter := massiveDataProv.client.ListOptionsChainSnapshot(ctx, params)
	for iter.Next() {
		snap := iter.Item()

		optType, err := ParseOptionType(snap.Details.ContractType)
		if err != nil {
			return nil, fmt.Errorf("massive chain %s: %w", snap.Details.Ticker, err)
		}

		q := snapshotToQuote(snap)
		if optType == Call {
			chain.Calls = append(chain.Calls, q)
		} else {
			chain.Puts = append(chain.Puts, q)
		}
	}
	if err := iter.Err(); err != nil && !isMassiveNotFound(err) {
		return nil, fmt.Errorf("massive chain %s %s: %w", symbol, expiry.Format(DateLayout), err)
	}

	logger.Tracef("chain %s %s: %d calls %d puts", symbol, expiry.Format(DateLayout), len(chain.Calls), len(chain.Puts))

	if len(chain.Calls) == 0 && len(chain.Puts) == 0 && massiveDataProv.secondary != nil {
		logger.Tracef("empty chain from massive, delegating to secondary provider")
		return massiveDataProv.secondary.GetChain(ctx, symbol, expiry)
	}

	return chain, nil
}

// snapshotToQuote prefers the last trade over the day close. The SDK decodes
// a missing implied volatility as 0, which is treated as unavailable.
func snapshotToQuote(snap models.OptionContractSnapshot) OptionQuote {
	last := snap.LastTrade.Price
	if last == 0 {
		last = snap.Day.Close
	}

	iv := Vol{}
	if snap.ImpliedVolatility != 0 {
		iv = NewVol(snap.ImpliedVolatility)
	}

	return OptionQuote{
		Strike:            snap.Details.StrikePrice,
		LastPrice:         last,
		Bid:               snap.LastQuote.Bid,
		Ask:               snap.LastQuote.Ask,
		Volume:            int64(snap.Day.Volume),
		OpenInterest:      int64(snap.OpenInterest),
		ImpliedVolatility: iv,
	}
}

// isMassiveNotFound reports whether Massive answered 403 or 404, which mean
// "no data for this symbol" (unknown ticker or not in the plan).
func isMassiveNotFound(err error) bool {
	var errRes *models.ErrorResponse
	if !errors.As(err, &errRes) {
		return false
	}
	return errRes.StatusCode == http.StatusNotFound || errRes.StatusCode == http.StatusForbidden
}
