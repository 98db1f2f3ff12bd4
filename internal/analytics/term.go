package analytics

import (
	"github.com/contactkeval/iv-terminal/internal/data"
	"github.com/contactkeval/iv-terminal/internal/logger"
)

// Tenor is a standard maturity bucket.
type Tenor string

const (
	Tenor1W Tenor = "1W"
	Tenor2W Tenor = "2W"
	Tenor1M Tenor = "1M"
	Tenor2M Tenor = "2M"
	Tenor3M Tenor = "3M"
	Tenor6M Tenor = "6M"
)

// Tenors lists the buckets shortest first.
var Tenors = []Tenor{Tenor1W, Tenor2W, Tenor1M, Tenor2M, Tenor3M, Tenor6M}

// ClassifyTenor maps days-to-expiration to its bucket.
func ClassifyTenor(dte int) Tenor {
	switch {
	case dte <= 10:
		return Tenor1W
	case dte <= 20:
		return Tenor2W
	case dte <= 45:
		return Tenor1M
	case dte <= 75:
		return Tenor2M
	case dte <= 120:
		return Tenor3M
	default:
		return Tenor6M
	}
}

// TermStructureEntry is the ATM call of one expiration.
type TermStructureEntry struct {
	Expiration string  `json:"expiration" csv:"expiration"`
	DTE        int     `json:"dte" csv:"dte"`
	ATMIV      float64 `json:"atm_iv" csv:"atm_iv"`
	ATMStrike  float64 `json:"atm_strike" csv:"atm_strike"`
}

// TermStructure holds the per-expiration entries and their tenor buckets.
type TermStructure struct {
	Entries []TermStructureEntry
	Buckets map[Tenor]float64
}

// BuildTermStructure picks, for each of the first maxExpirations unexpired
// chains, the call with positive valid IV whose strike is nearest spot, then
// buckets the entries by tenor.
func BuildTermStructure(chains []data.OptionChain, spot float64, maxExpirations int) (*TermStructure, error) {
	if !validSpot(spot) {
		return nil, ErrInvalidSpot
	}

	entries := make([]TermStructureEntry, 0, len(chains))
	for _, chain := range truncate(chains, maxExpirations) {
		if chain.DaysToExpiration <= 0 {
			continue
		}
		if err := chain.Validate(); err != nil {
			logger.Debugf("term structure: skipping %s %s: %v", chain.Underlying, chain.Expiration.Format(data.DateLayout), err)
			continue
		}

		candidates := make([]data.OptionQuote, 0, len(chain.Calls))
		for _, q := range chain.Calls {
			if hasPositiveIV(q) {
				candidates = append(candidates, q)
			}
		}

		atm, ok := NearestByAbsoluteDistance(candidates, spot)
		if !ok {
			continue
		}

		entries = append(entries, TermStructureEntry{
			Expiration: chain.Expiration.Format(data.DateLayout),
			DTE:        chain.DaysToExpiration,
			ATMIV:      Round4(atm.ImpliedVolatility.Value),
			ATMStrike:  atm.Strike,
		})
	}

	return &TermStructure{Entries: entries, Buckets: BucketTenors(entries)}, nil
}

// BucketTenors assigns each entry's ATM IV to its tenor. The first entry to
// reach a bucket keeps it; later entries of the same tenor are ignored.
func BucketTenors(entries []TermStructureEntry) map[Tenor]float64 {
	buckets := make(map[Tenor]float64, len(Tenors))
	for _, e := range entries {
		tenor := ClassifyTenor(e.DTE)
		if _, taken := buckets[tenor]; taken {
			continue
		}
		buckets[tenor] = e.ATMIV
	}
	return buckets
}
