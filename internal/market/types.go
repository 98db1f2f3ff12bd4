package market

import (
	"github.com/contactkeval/iv-terminal/internal/analytics"
	"github.com/contactkeval/iv-terminal/internal/data"
)

// Messages reported in the error field of a 200 response.
const (
	MsgNoSpot         = "Cannot determine spot price"
	MsgNoOptions      = "No options data"
	MsgNoOptionsChain = "No options data available"
)

// QuoteResponse is the body of /api/quote/{ticker}.
type QuoteResponse struct {
	Ticker         string   `json:"ticker"`
	ProviderTicker string   `json:"provider_ticker"`
	Price          *float64 `json:"price"`
	PreviousClose  *float64 `json:"previous_close"`
	Change         *float64 `json:"change"`
	ChangePct      *float64 `json:"change_pct"`
	MarketCap      *float64 `json:"market_cap"`
	Error          string   `json:"error,omitempty"`
	Timestamp      string   `json:"timestamp"`
	Source         string   `json:"source"`
}

// OptionRow is one strike of the options endpoint. Missing numbers are 0.
type OptionRow struct {
	Strike            float64 `json:"strike" csv:"strike"`
	LastPrice         float64 `json:"lastPrice" csv:"last_price"`
	Bid               float64 `json:"bid" csv:"bid"`
	Ask               float64 `json:"ask" csv:"ask"`
	Volume            int64   `json:"volume" csv:"volume"`
	OpenInterest      int64   `json:"openInterest" csv:"open_interest"`
	ImpliedVolatility float64 `json:"impliedVolatility" csv:"implied_volatility"`
}

// ChainView is one expiration of the options endpoint.
type ChainView struct {
	Expiration string      `json:"expiration"`
	DTE        int         `json:"dte"`
	Calls      []OptionRow `json:"calls"`
	Puts       []OptionRow `json:"puts"`
}

// OptionsResponse is the body of /api/options/{ticker}.
type OptionsResponse struct {
	Ticker      string      `json:"ticker"`
	Expirations []string    `json:"expirations"`
	Chains      []ChainView `json:"chains"`
	Error       string      `json:"error,omitempty"`
	Timestamp   string      `json:"timestamp"`
	Source      string      `json:"source"`
}

// SurfaceResponse is the body of /api/iv-surface/{ticker}.
type SurfaceResponse struct {
	Ticker    string                   `json:"ticker"`
	Spot      float64                  `json:"spot,omitempty"`
	Surface   []analytics.SurfacePoint `json:"surface"`
	Error     string                   `json:"error,omitempty"`
	Timestamp string                   `json:"timestamp"`
	Source    string                   `json:"source"`
}

// TermStructureResponse is the body of /api/term-structure/{ticker}.
type TermStructureResponse struct {
	Ticker        string                         `json:"ticker"`
	Spot          float64                        `json:"spot,omitempty"`
	TermStructure map[analytics.Tenor]float64    `json:"term_structure"`
	Raw           []analytics.TermStructureEntry `json:"raw"`
	Error         string                         `json:"error,omitempty"`
	Timestamp     string                         `json:"timestamp"`
	Source        string                         `json:"source"`
}

func toRows(quotes []data.OptionQuote) []OptionRow {
	rows := make([]OptionRow, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, OptionRow{
			Strike:            q.Strike,
			LastPrice:         q.LastPrice,
			Bid:               q.Bid,
			Ask:               q.Ask,
			Volume:            q.Volume,
			OpenInterest:      q.OpenInterest,
			ImpliedVolatility: q.ImpliedVolatility.OrZero(),
		})
	}
	return rows
}
