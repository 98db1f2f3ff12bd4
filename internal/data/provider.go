package data

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for expirations on the wire.
const DateLayout = "2006-01-02"

var (
	// ErrNoPriceData means the provider answered but has no usable price.
	ErrNoPriceData = errors.New("no price data")
	// ErrNoOptionsData means the underlying has no listed expirations.
	ErrNoOptionsData = errors.New("no options data")
	// ErrMalformedQuote marks a chain row that could not be parsed.
	ErrMalformedQuote = errors.New("malformed option quote")
	// ErrNotImplemented is returned by providers lacking an endpoint and a secondary.
	ErrNotImplemented = errors.New("not implemented")
)

// Provider supplies market data
type Provider interface {
	Name() string
	Secondary() Provider
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)
	GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error)
}

// OptionType is the side of an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType accepts "call"/"put" and their one-letter forms.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", fmt.Errorf("%w: option type %q", ErrMalformedQuote, s)
}

// Vol is an implied volatility reading. Valid is false when upstream
// reported none (NaN or missing), which is not the same as a 0% reading.
type Vol struct {
	Value float64
	Valid bool
}

// NewVol normalises NaN and infinities to the invalid marker.
func NewVol(v float64) Vol {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Vol{}
	}
	return Vol{Value: v, Valid: true}
}

// OrZero returns the value, or 0 when the reading is invalid.
func (v Vol) OrZero() float64 {
	if !v.Valid {
		return 0
	}
	return v.Value
}

// OptionQuote is one strike of one side of a chain.
type OptionQuote struct {
	Strike            float64
	LastPrice         float64
	Bid               float64
	Ask               float64
	Volume            int64
	OpenInterest      int64
	ImpliedVolatility Vol
}

// Validate reports rows a builder must not trust.
func (q OptionQuote) Validate() error {
	if math.IsNaN(q.Strike) || math.IsInf(q.Strike, 0) || q.Strike <= 0 {
		return fmt.Errorf("%w: strike %v", ErrMalformedQuote, q.Strike)
	}
	for _, px := range []float64{q.LastPrice, q.Bid, q.Ask} {
		if math.IsNaN(px) || math.IsInf(px, 0) || px < 0 {
			return fmt.Errorf("%w: strike %v price %v", ErrMalformedQuote, q.Strike, px)
		}
	}
	if q.Volume < 0 || q.OpenInterest < 0 {
		return fmt.Errorf("%w: strike %v negative size", ErrMalformedQuote, q.Strike)
	}
	return nil
}

// OptionChain is the snapshot of a single expiration.
type OptionChain struct {
	Underlying       string
	Expiration       time.Time
	DaysToExpiration int
	Calls            []OptionQuote
	Puts             []OptionQuote
}

// Validate checks every call and put row.
func (c *OptionChain) Validate() error {
	for _, q := range c.Calls {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("call: %w", err)
		}
	}
	for _, q := range c.Puts {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("put: %w", err)
		}
	}
	return nil
}

// Quote is the latest price of an underlying. MarketCap is 0 when the
// provider does not know it.
type Quote struct {
	Symbol        string
	Price         float64
	PreviousClose float64
	MarketCap     float64
	Source        string
}

// OptionContract is a listed contract from a reference endpoint.
type OptionContract struct {
	ExpiryDate time.Time
	Strike     float64
	Type       string // "call" or "put"
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// DaysToExpiration counts whole days from now until midnight of the expiry
// date, rounding down. Same-day and past expirations yield values <= 0.
func DaysToExpiration(expiry, now time.Time) int {
	y, m, d := expiry.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return int(math.Floor(midnight.Sub(now).Hours() / 24))
}

// ParseExpiration parses a YYYY-MM-DD date in loc.
func ParseExpiration(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}

// UniqueSortedDates drops duplicate calendar dates and sorts ascending.
func UniqueSortedDates(dates []time.Time) []time.Time {
	seen := make(map[string]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		key := d.Format(DateLayout)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func isMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "-":
		return true
	}
	return false
}

// parsePrice parses a price field; missing values default to 0.
func parsePrice(s string) (float64, error) {
	if isMissing(s) {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedQuote, s)
	}
	if math.IsNaN(v) {
		return 0, nil
	}
	return v, nil
}

// parseCount parses a volume or open-interest field; missing values default to 0.
func parseCount(s string) (int64, error) {
	v, err := parsePrice(s)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// parseVol parses an implied volatility field; missing values are invalid, not 0.
func parseVol(s string) (Vol, error) {
	if isMissing(s) {
		return Vol{}, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Vol{}, fmt.Errorf("%w: implied volatility %q", ErrMalformedQuote, s)
	}
	return NewVol(v), nil
}
