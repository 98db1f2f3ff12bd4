package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/iv-terminal/internal/logger"
)

// localCSVDataProvider implements Data Provider from local CSV files:
//
//	<dir>/quotes.csv          symbol,price,previous_close[,market_cap]
//	<dir>/chains/<SYMBOL>.csv expiration,type,strike,last_price,bid,ask,volume,open_interest,implied_volatility
//
// Fields are read as text so a bad number surfaces as ErrMalformedQuote on
// the one expiration that contains it.
type localCSVDataProvider struct {
	dir       string
	secondary Provider
	now       func() time.Time
}

type csvQuoteRow struct {
	Symbol        string `csv:"symbol"`
	Price         string `csv:"price"`
	PreviousClose string `csv:"previous_close"`
	MarketCap     string `csv:"market_cap"`
}

type csvChainRow struct {
	Expiration        string `csv:"expiration"`
	Type              string `csv:"type"`
	Strike            string `csv:"strike"`
	LastPrice         string `csv:"last_price"`
	Bid               string `csv:"bid"`
	Ask               string `csv:"ask"`
	Volume            string `csv:"volume"`
	OpenInterest      string `csv:"open_interest"`
	ImpliedVolatility string `csv:"implied_volatility"`
}

// NewLocalCSVDataProvider convenience constructor.
func NewLocalCSVDataProvider(dir string, secondary Provider) *localCSVDataProvider {
	return &localCSVDataProvider{dir: dir, secondary: secondary, now: time.Now}
}

func (localCSVDataProv *localCSVDataProvider) Name() string {
	return "local"
}

func (localCSVDataProv *localCSVDataProvider) Secondary() Provider {
	return localCSVDataProv.secondary
}

func (localCSVDataProv *localCSVDataProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var rows []*csvQuoteRow
	err := readCSV(filepath.Join(localCSVDataProv.dir, "quotes.csv"), &rows)
	if errors.Is(err, os.ErrNotExist) && localCSVDataProv.secondary != nil {
		return localCSVDataProv.secondary.GetQuote(ctx, symbol)
	}
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if !strings.EqualFold(strings.TrimSpace(row.Symbol), symbol) {
			continue
		}
		price, err := parsePrice(row.Price)
		if err != nil {
			return nil, fmt.Errorf("quotes.csv %s price: %w", symbol, err)
		}
		prevClose, err := parsePrice(row.PreviousClose)
		if err != nil {
			return nil, fmt.Errorf("quotes.csv %s previous_close: %w", symbol, err)
		}
		marketCap, err := parsePrice(row.MarketCap)
		if err != nil {
			return nil, fmt.Errorf("quotes.csv %s market_cap: %w", symbol, err)
		}
		if price <= 0 {
			break
		}
		return &Quote{
			Symbol:        symbol,
			Price:         price,
			PreviousClose: prevClose,
			MarketCap:     marketCap,
			Source:        localCSVDataProv.Name(),
		}, nil
	}

	if localCSVDataProv.secondary != nil {
		return localCSVDataProv.secondary.GetQuote(ctx, symbol)
	}
	return nil, fmt.Errorf("local quote %s: %w", symbol, ErrNoPriceData)
}

func (localCSVDataProv *localCSVDataProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	rows, err := localCSVDataProv.chainRows(symbol)
	if errors.Is(err, os.ErrNotExist) {
		if localCSVDataProv.secondary != nil {
			return localCSVDataProv.secondary.GetExpirations(ctx, symbol)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	loc := localCSVDataProv.now().Location()
	expiries := make([]time.Time, 0, 8)
	for _, row := range rows {
		t, err := ParseExpiration(row.Expiration, loc)
		if err != nil {
			logger.Debugf("local chain %s: skipping expiration %q", symbol, row.Expiration)
			continue
		}
		expiries = append(expiries, t)
	}
	return UniqueSortedDates(expiries), nil
}

func (localCSVDataProv *localCSVDataProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	rows, err := localCSVDataProv.chainRows(symbol)
	if errors.Is(err, os.ErrNotExist) && localCSVDataProv.secondary != nil {
		return localCSVDataProv.secondary.GetChain(ctx, symbol, expiry)
	}
	if err != nil {
		return nil, err
	}

	chain := &OptionChain{
		Underlying:       symbol,
		Expiration:       expiry,
		DaysToExpiration: DaysToExpiration(expiry, localCSVDataProv.now()),
	}

	want := expiry.Format(DateLayout)
	for i, row := range rows {
		if strings.TrimSpace(row.Expiration) != want {
			continue
		}
		optType, q, err := row.toQuote()
		if err != nil {
			return nil, fmt.Errorf("local chain %s row %d: %w", symbol, i+2, err)
		}
		if optType == Call {
			chain.Calls = append(chain.Calls, q)
		} else {
			chain.Puts = append(chain.Puts, q)
		}
	}
	return chain, nil
}

func (localCSVDataProv *localCSVDataProvider) chainRows(symbol string) ([]*csvChainRow, error) {
	var rows []*csvChainRow
	path := filepath.Join(localCSVDataProv.dir, "chains", chainFileName(symbol))
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (row *csvChainRow) toQuote() (OptionType, OptionQuote, error) {
	optType, err := ParseOptionType(row.Type)
	if err != nil {
		return "", OptionQuote{}, err
	}

	var q OptionQuote
	if q.Strike, err = parsePrice(row.Strike); err != nil {
		return "", q, err
	}
	if q.LastPrice, err = parsePrice(row.LastPrice); err != nil {
		return "", q, err
	}
	if q.Bid, err = parsePrice(row.Bid); err != nil {
		return "", q, err
	}
	if q.Ask, err = parsePrice(row.Ask); err != nil {
		return "", q, err
	}
	if q.Volume, err = parseCount(row.Volume); err != nil {
		return "", q, err
	}
	if q.OpenInterest, err = parseCount(row.OpenInterest); err != nil {
		return "", q, err
	}
	if q.ImpliedVolatility, err = parseVol(row.ImpliedVolatility); err != nil {
		return "", q, err
	}
	return optType, q, nil
}

// chainFileName maps provider tickers such as "I:SPX" or "^GSPC" to a file name.
func chainFileName(symbol string) string {
	r := strings.NewReplacer(":", "_", "^", "_", "/", "_")
	return strings.ToUpper(r.Replace(symbol)) + ".csv"
}

func readCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}
