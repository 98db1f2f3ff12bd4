package data

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/contactkeval/iv-terminal/internal/logger"
)

// polygonDataProvider implements Data Provider using the Polygon.io SDK.
//
// Polygon's chain snapshot is listed per underlying, so one listing serves
// both GetExpirations and every GetChain call; it is memoised briefly.
type polygonDataProvider struct {
	client    *polygon.Client
	secondary Provider
	chains    *gocache.Cache
	now       func() time.Time
}

func NewPolygonDataProvider(apiKey string, secondary Provider) Provider {
	return newPolygonDataProvider(polygon.New(apiKey), secondary)
}

func newPolygonDataProvider(client *polygon.Client, secondary Provider) *polygonDataProvider {
	return &polygonDataProvider{
		client:    client,
		secondary: secondary,
		chains:    gocache.New(30*time.Second, time.Minute),
		now:       time.Now,
	}
}

func (polygonDataProv *polygonDataProvider) Name() string {
	return "polygon"
}

func (polygonDataProv *polygonDataProvider) Secondary() Provider {
	return polygonDataProv.secondary
}

func (polygonDataProv *polygonDataProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	quote := &Quote{Symbol: symbol, Source: polygonDataProv.Name()}

	last, err := polygonDataProv.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
	if err != nil {
		logger.Debugf("polygon last trade %s: %v", symbol, err)
	} else {
		quote.Price = last.Results.Price
	}

	prev, err := polygonDataProv.client.GetPreviousCloseAgg(ctx, &models.GetPreviousCloseAggParams{Ticker: symbol})
	if err != nil {
		logger.Debugf("polygon previous close %s: %v", symbol, err)
	} else if len(prev.Results) > 0 {
		quote.PreviousClose = prev.Results[len(prev.Results)-1].Close
	}

	if quote.Price == 0 {
		quote.Price = polygonDataProv.latestDailyClose(ctx, symbol)
	}

	if quote.Price == 0 {
		if polygonDataProv.secondary != nil {
			return polygonDataProv.secondary.GetQuote(ctx, symbol)
		}
		return nil, fmt.Errorf("polygon quote %s: %w", symbol, ErrNoPriceData)
	}

	details, err := polygonDataProv.client.GetTickerDetails(ctx, &models.GetTickerDetailsParams{Ticker: symbol})
	if err != nil {
		logger.Debugf("polygon ticker details %s: %v", symbol, err)
	} else {
		quote.MarketCap = details.Results.MarketCap
	}
	return quote, nil
}

// latestDailyClose reads the last daily bar of the past week.
func (polygonDataProv *polygonDataProvider) latestDailyClose(ctx context.Context, symbol string) float64 {
	to := polygonDataProv.now()
	from := to.AddDate(0, 0, -7)

	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(from),
		To:         models.Millis(to),
	}.WithOrder(models.Asc).WithAdjusted(true)

	iter := polygonDataProv.client.ListAggs(ctx, params)

	lastClose := 0.0
	for iter.Next() {
		lastClose = iter.Item().Close
	}
	if err := iter.Err(); err != nil {
		logger.Debugf("polygon daily bars %s: %v", symbol, err)
		return 0
	}
	return lastClose
}

func (polygonDataProv *polygonDataProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	snaps, err := polygonDataProv.fullChain(ctx, symbol)
	if err != nil {
		return nil, err
	}

	loc := polygonDataProv.now().Location()
	expiries := make([]time.Time, 0, 16)
	for _, snap := range snaps {
		y, m, d := time.Time(snap.Details.ExpirationDate).Date()
		expiries = append(expiries, time.Date(y, m, d, 0, 0, 0, 0, loc))
	}
	expiries = UniqueSortedDates(expiries)

	if len(expiries) == 0 && polygonDataProv.secondary != nil {
		return polygonDataProv.secondary.GetExpirations(ctx, symbol)
	}
	return expiries, nil
}

func (polygonDataProv *polygonDataProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	snaps, err := polygonDataProv.fullChain(ctx, symbol)
	if err != nil {
		return nil, err
	}

	chain := &OptionChain{
		Underlying:       symbol,
		Expiration:       expiry,
		DaysToExpiration: DaysToExpiration(expiry, polygonDataProv.now()),
	}

	want := expiry.Format(DateLayout)
	for _, snap := range snaps {
		if time.Time(snap.Details.ExpirationDate).Format(DateLayout) != want {
			continue
		}
		optType, err := ParseOptionType(snap.Details.ContractType)
		if err != nil {
			return nil, fmt.Errorf("polygon chain %s: %w", snap.Details.Ticker, err)
		}
		if optType == Call {
			chain.Calls = append(chain.Calls, polygonSnapshotToQuote(snap))
		} else {
			chain.Puts = append(chain.Puts, polygonSnapshotToQuote(snap))
		}
	}

	if len(chain.Calls) == 0 && len(chain.Puts) == 0 && polygonDataProv.secondary != nil {
		return polygonDataProv.secondary.GetChain(ctx, symbol, expiry)
	}
	return chain, nil
}

func (polygonDataProv *polygonDataProvider) fullChain(ctx context.Context, symbol string) ([]models.OptionContractSnapshot, error) {
	if cached, ok := polygonDataProv.chains.Get(symbol); ok {
		return cached.([]models.OptionContractSnapshot), nil
	}

	logger.Debugf("fetching polygon chain snapshot for %s", symbol)

	iter := polygonDataProv.client.ListOptionsChainSnapshot(ctx, &models.ListOptionsChainParams{
		UnderlyingAsset: symbol,
	})

	var snaps []models.OptionContractSnapshot
	for iter.Next() {
		snaps = append(snaps, iter.Item())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("polygon chain snapshot %s: %w", symbol, err)
	}

	polygonDataProv.chains.SetDefault(symbol, snaps)
	return snaps, nil
}

// polygonSnapshotToQuote maps an SDK snapshot to a quote. The SDK decodes a
// missing implied volatility as 0, which is treated as unavailable.
func polygonSnapshotToQuote(snap models.OptionContractSnapshot) OptionQuote {
	iv := Vol{}
	if snap.ImpliedVolatility != 0 {
		iv = NewVol(snap.ImpliedVolatility)
	}

	return OptionQuote{
		Strike:            snap.Details.StrikePrice,
		LastPrice:         snap.Day.Close,
		Bid:               snap.LastQuote.Bid,
		Ask:               snap.LastQuote.Ask,
		Volume:            int64(snap.Day.Volume),
		OpenInterest:      int64(snap.OpenInterest),
		ImpliedVolatility: iv,
	}
}
