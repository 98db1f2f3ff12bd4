package analytics

import (
	"errors"
	"math"

	"github.com/contactkeval/iv-terminal/internal/data"
	"github.com/contactkeval/iv-terminal/internal/logger"
)

// ErrInvalidSpot is returned when the spot price is not a positive number.
var ErrInvalidSpot = errors.New("spot price must be positive")

// Band is an inclusive moneyness range.
type Band struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// DefaultBand keeps strikes within 20% of spot.
var DefaultBand = Band{Low: 0.8, High: 1.2}

// Contains reports whether m lies in [Low, High].
func (b Band) Contains(m float64) bool {
	return m >= b.Low && m <= b.High
}

// SurfacePoint is one (strike, expiration) sample of the IV surface.
type SurfacePoint struct {
	Strike    float64         `json:"strike" csv:"strike"`
	Moneyness float64         `json:"moneyness" csv:"moneyness"`
	DTE       int             `json:"dte" csv:"dte"`
	IV        float64         `json:"iv" csv:"iv"`
	Type      data.OptionType `json:"type" csv:"type"`
}

// BuildSurface flattens chains into surface points.
//
// Only the first maxExpirations chains are considered (all of them when
// maxExpirations <= 0). Chains already expired (dte <= 0) and chains with
// malformed rows are skipped whole. Within a chain calls come before puts,
// each in upstream order. A quote yields a point iff its IV is valid and
// positive and its unrounded moneyness lies in band.
func BuildSurface(chains []data.OptionChain, spot float64, maxExpirations int, band Band) ([]SurfacePoint, error) {
	if !validSpot(spot) {
		return nil, ErrInvalidSpot
	}

	surface := make([]SurfacePoint, 0, 64)
	for _, chain := range truncate(chains, maxExpirations) {
		if chain.DaysToExpiration <= 0 {
			continue
		}
		if err := chain.Validate(); err != nil {
			logger.Debugf("surface: skipping %s %s: %v", chain.Underlying, chain.Expiration.Format(data.DateLayout), err)
			continue
		}

		surface = appendPoints(surface, chain.Calls, data.Call, chain.DaysToExpiration, spot, band)
		surface = appendPoints(surface, chain.Puts, data.Put, chain.DaysToExpiration, spot, band)
	}
	return surface, nil
}

func appendPoints(dst []SurfacePoint, quotes []data.OptionQuote, optType data.OptionType, dte int, spot float64, band Band) []SurfacePoint {
	for _, q := range quotes {
		if !hasPositiveIV(q) {
			continue
		}
		m := q.Strike / spot
		if !band.Contains(m) {
			continue
		}
		dst = append(dst, SurfacePoint{
			Strike:    q.Strike,
			Moneyness: Round4(m),
			DTE:       dte,
			IV:        Round4(q.ImpliedVolatility.Value),
			Type:      optType,
		})
	}
	return dst
}

func validSpot(spot float64) bool {
	return !math.IsNaN(spot) && !math.IsInf(spot, 0) && spot > 0
}

func truncate(chains []data.OptionChain, max int) []data.OptionChain {
	if max > 0 && len(chains) > max {
		return chains[:max]
	}
	return chains
}
