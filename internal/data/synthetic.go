package data

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// synthDataProvider implements Data Provider generating synthetic data.
// Output is deterministic for a given seed, symbol, expiry and clock.
type synthDataProvider struct {
	secondary Provider
	seed      int64
	now       func() time.Time
}

// syntheticWeeks are the expirations generated, in weeks from now.
var syntheticWeeks = []int{1, 2, 3, 4, 8, 13, 26, 52}

func NewSyntheticProvider() Provider {
	return &synthDataProvider{seed: 42, now: time.Now}
}

func (synthDataProv *synthDataProvider) Name() string {
	return "synthetic"
}

func (synthDataProv *synthDataProvider) Secondary() Provider {
	return synthDataProv.secondary
}

func (synthDataProv *synthDataProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if symbol == "" {
		return nil, fmt.Errorf("synthetic quote: %w", ErrNoPriceData)
	}
	price := synthDataProv.spot(symbol)
	return &Quote{
		Symbol:        symbol,
		Price:         price,
		PreviousClose: math.Round(price*0.996*100) / 100,
		Source:        synthDataProv.Name(),
	}, nil
}

func (synthDataProv *synthDataProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	now := synthDataProv.now()
	// first Friday strictly after today
	daysToFriday := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	if daysToFriday == 0 {
		daysToFriday = 7
	}
	y, m, d := now.AddDate(0, 0, daysToFriday).Date()
	friday := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	out := make([]time.Time, 0, len(syntheticWeeks))
	for _, w := range syntheticWeeks {
		out = append(out, friday.AddDate(0, 0, 7*(w-1)))
	}
	return out, nil
}

// GetChain builds a smile-shaped chain around the synthetic spot. Strikes run
// from 70% to 130% of spot; the odd far strike has no implied volatility,
// the way thin upstream listings do.
func (synthDataProv *synthDataProvider) GetChain(ctx context.Context, symbol string, expiry time.Time) (*OptionChain, error) {
	now := synthDataProv.now()
	spot := synthDataProv.spot(symbol)
	dte := DaysToExpiration(expiry, now)
	years := math.Max(float64(dte), 1) / 365.0

	rng := rand.New(rand.NewSource(synthDataProv.seed ^ int64(symbolHash(symbol)) ^ expiry.Unix()))

	step := strikeStep(spot)
	lo := math.Ceil(spot*0.7/step) * step
	hi := math.Floor(spot*1.3/step) * step

	baseVol := 0.16 + 0.04*math.Exp(-years*4)

	chain := &OptionChain{Underlying: symbol, Expiration: expiry, DaysToExpiration: dte}
	for strike := lo; strike <= hi+step/2; strike += step {
		k := math.Round(strike*100) / 100
		m := k / spot
		skew := -0.25 * (m - 1)
		smile := 0.6 * (m - 1) * (m - 1)
		callIV := baseVol + skew + smile + rng.NormFloat64()*0.003
		putIV := callIV + 0.01

		chain.Calls = append(chain.Calls, synthQuote(rng, k, spot, years, callIV, Call))
		chain.Puts = append(chain.Puts, synthQuote(rng, k, spot, years, putIV, Put))
	}
	return chain, nil
}

func synthQuote(rng *rand.Rand, strike, spot, years, iv float64, optType OptionType) OptionQuote {
	intrinsic := math.Max(spot-strike, 0)
	if optType == Put {
		intrinsic = math.Max(strike-spot, 0)
	}
	// rough time value, enough to make bid/ask look plausible
	timeValue := 0.4 * spot * iv * math.Sqrt(years) * math.Exp(-math.Abs(strike/spot-1)*5)
	last := math.Round((intrinsic+timeValue)*100) / 100

	vol := NewVol(math.Round(iv*10000) / 10000)
	if math.Abs(strike/spot-1) > 0.28 && rng.Intn(3) == 0 {
		vol = Vol{}
	}

	return OptionQuote{
		Strike:            strike,
		LastPrice:         last,
		Bid:               math.Round(last*0.98*100) / 100,
		Ask:               math.Round(last*1.02*100) / 100,
		Volume:            int64(rng.Intn(5000)),
		OpenInterest:      int64(1000 + rng.Intn(20000)),
		ImpliedVolatility: vol,
	}
}

func (synthDataProv *synthDataProvider) spot(symbol string) float64 {
	return 100.0 + float64(symbolHash(symbol)%40000)/100.0
}

func strikeStep(spot float64) float64 {
	switch {
	case spot < 50:
		return 1
	case spot < 200:
		return 2.5
	case spot < 1000:
		return 5
	default:
		return 25
	}
}

func symbolHash(symbol string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return h.Sum32()
}
