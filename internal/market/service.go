// Package market answers the terminal's read-only queries by combining a
// data.Provider with the analytics builders.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/iv-terminal/internal/analytics"
	"github.com/contactkeval/iv-terminal/internal/data"
	"github.com/contactkeval/iv-terminal/internal/logger"
)

// Settings bounds how many expirations each query reads.
type Settings struct {
	OptionsChains      int
	OptionsExpirations int
	SurfaceExpirations int
	TermExpirations    int
	Band               analytics.Band
	// Concurrency caps in-flight chain fetches per query.
	Concurrency int
}

// DefaultSettings mirrors the limits the terminal has always used.
func DefaultSettings() Settings {
	return Settings{
		OptionsChains:      4,
		OptionsExpirations: 8,
		SurfaceExpirations: 6,
		TermExpirations:    8,
		Band:               analytics.DefaultBand,
		Concurrency:        4,
	}
}

// Service is safe for concurrent use.
type Service struct {
	provider data.Provider
	symbols  data.SymbolResolver
	settings Settings
	now      func() time.Time
}

func NewService(provider data.Provider, symbols data.SymbolResolver, settings Settings) *Service {
	if symbols == nil {
		symbols = data.DefaultSymbols
	}
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	return &Service{provider: provider, symbols: symbols, settings: settings, now: time.Now}
}

// ProviderName is reported as the source of every response.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Quote returns the latest price with its change against the previous close.
// A missing price is reported in the body, not as an error.
func (s *Service) Quote(ctx context.Context, ticker string) (*QuoteResponse, error) {
	symbol := s.symbols.Resolve(ticker)
	resp := &QuoteResponse{
		Ticker:         ticker,
		ProviderTicker: symbol,
		Timestamp:      s.timestamp(),
		Source:         s.provider.Name(),
	}

	q, err := s.provider.GetQuote(ctx, symbol)
	if errors.Is(err, data.ErrNoPriceData) {
		resp.Error = MsgNoSpot
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}

	resp.Source = q.Source
	if q.Price > 0 {
		resp.Price = &q.Price
	} else {
		resp.Error = MsgNoSpot
	}
	if q.PreviousClose > 0 {
		resp.PreviousClose = &q.PreviousClose
	}
	if resp.Price != nil && resp.PreviousClose != nil {
		change := q.Price - q.PreviousClose
		pct := change / q.PreviousClose * 100
		resp.Change = &change
		resp.ChangePct = &pct
	}
	if q.MarketCap > 0 {
		resp.MarketCap = &q.MarketCap
	}
	return resp, nil
}

// Options returns the first few chains in full plus the listed expirations.
func (s *Service) Options(ctx context.Context, ticker string) (*OptionsResponse, error) {
	symbol := s.symbols.Resolve(ticker)
	resp := &OptionsResponse{
		Ticker:      ticker,
		Expirations: []string{},
		Chains:      []ChainView{},
		Timestamp:   s.timestamp(),
		Source:      s.provider.Name(),
	}

	expiries, err := s.expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(expiries) == 0 {
		resp.Error = MsgNoOptionsChain
		return resp, nil
	}

	for _, e := range head(expiries, s.settings.OptionsExpirations) {
		resp.Expirations = append(resp.Expirations, e.Format(data.DateLayout))
	}

	chains, err := s.fetchChains(ctx, symbol, head(expiries, s.settings.OptionsChains), false)
	if err != nil {
		return nil, err
	}
	for _, chain := range chains {
		resp.Chains = append(resp.Chains, ChainView{
			Expiration: chain.Expiration.Format(data.DateLayout),
			DTE:        chain.DaysToExpiration,
			Calls:      toRows(chain.Calls),
			Puts:       toRows(chain.Puts),
		})
	}
	return resp, nil
}

// Surface builds the implied-volatility surface of the nearest expirations.
func (s *Service) Surface(ctx context.Context, ticker string) (*SurfaceResponse, error) {
	symbol := s.symbols.Resolve(ticker)
	resp := &SurfaceResponse{
		Ticker:    ticker,
		Surface:   []analytics.SurfacePoint{},
		Timestamp: s.timestamp(),
		Source:    s.provider.Name(),
	}

	expiries, err := s.expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(expiries) == 0 {
		resp.Error = MsgNoOptions
		return resp, nil
	}

	spot, ok, err := s.spot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		resp.Error = MsgNoSpot
		return resp, nil
	}
	resp.Spot = spot

	chains, err := s.fetchChains(ctx, symbol, head(expiries, s.settings.SurfaceExpirations), true)
	if err != nil {
		return nil, err
	}
	surface, err := analytics.BuildSurface(chains, spot, s.settings.SurfaceExpirations, s.settings.Band)
	if err != nil {
		return nil, fmt.Errorf("surface %s: %w", symbol, err)
	}
	resp.Surface = surface
	return resp, nil
}

// TermStructure builds the ATM implied-volatility term structure.
func (s *Service) TermStructure(ctx context.Context, ticker string) (*TermStructureResponse, error) {
	symbol := s.symbols.Resolve(ticker)
	resp := &TermStructureResponse{
		Ticker:        ticker,
		TermStructure: map[analytics.Tenor]float64{},
		Raw:           []analytics.TermStructureEntry{},
		Timestamp:     s.timestamp(),
		Source:        s.provider.Name(),
	}

	expiries, err := s.expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(expiries) == 0 {
		resp.Error = MsgNoOptions
		return resp, nil
	}

	spot, ok, err := s.spot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		resp.Error = MsgNoSpot
		return resp, nil
	}
	resp.Spot = spot

	chains, err := s.fetchChains(ctx, symbol, head(expiries, s.settings.TermExpirations), true)
	if err != nil {
		return nil, err
	}
	ts, err := analytics.BuildTermStructure(chains, spot, s.settings.TermExpirations)
	if err != nil {
		return nil, fmt.Errorf("term structure %s: %w", symbol, err)
	}
	resp.TermStructure = ts.Buckets
	resp.Raw = ts.Entries
	return resp, nil
}

// expirations treats ErrNoOptionsData as an empty listing.
func (s *Service) expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	expiries, err := s.provider.GetExpirations(ctx, symbol)
	if errors.Is(err, data.ErrNoOptionsData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expirations %s: %w", symbol, err)
	}
	return expiries, nil
}

// spot resolves the underlying price. ok is false when the provider has none.
func (s *Service) spot(ctx context.Context, symbol string) (float64, bool, error) {
	q, err := s.provider.GetQuote(ctx, symbol)
	if errors.Is(err, data.ErrNoPriceData) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("spot %s: %w", symbol, err)
	}
	if q.Price <= 0 {
		return 0, false, nil
	}
	return q.Price, true, nil
}

// fetchChains fetches the chains of expiries concurrently and returns the
// ones that arrived, in expiry order. A failed fetch drops only its own
// expiration, unless every fetch failed on the upstream itself: then the
// first such error is returned. With skipExpired, expirations at or past
// their date are not fetched at all.
func (s *Service) fetchChains(ctx context.Context, symbol string, expiries []time.Time, skipExpired bool) ([]data.OptionChain, error) {
	now := s.now()
	results := make([]*data.OptionChain, len(expiries))
	errs := make([]error, len(expiries))

	var g errgroup.Group
	g.SetLimit(s.settings.Concurrency)

	for i, expiry := range expiries {
		if skipExpired && data.DaysToExpiration(expiry, now) <= 0 {
			continue
		}
		i, expiry := i, expiry
		g.Go(func() error {
			chain, err := s.provider.GetChain(ctx, symbol, expiry)
			if err == nil {
				err = chain.Validate()
			}
			if err != nil {
				logger.WithFields(logrus.Fields{
					"symbol":     symbol,
					"expiration": expiry.Format(data.DateLayout),
				}).Warnf("dropping chain: %v", err)
				errs[i] = err
				return nil
			}
			results[i] = chain
			return nil
		})
	}
	_ = g.Wait()

	chains := make([]data.OptionChain, 0, len(results))
	var firstErr error
	attempted, failed := 0, 0
	for i, c := range results {
		if c != nil {
			chains = append(chains, *c)
			attempted++
			continue
		}
		if errs[i] == nil {
			continue // not fetched
		}
		attempted++
		if isNoData(errs[i]) {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = errs[i]
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, fmt.Errorf("chains %s: %w", symbol, firstErr)
	}
	return chains, nil
}

// isNoData reports whether err says the upstream answered without usable
// data, as opposed to failing.
func isNoData(err error) bool {
	return errors.Is(err, data.ErrNoOptionsData) ||
		errors.Is(err, data.ErrNoPriceData) ||
		errors.Is(err, data.ErrMalformedQuote)
}

func (s *Service) timestamp() string {
	return s.now().Format(time.RFC3339)
}

func head(expiries []time.Time, n int) []time.Time {
	if n > 0 && len(expiries) > n {
		return expiries[:n]
	}
	return expiries
}
