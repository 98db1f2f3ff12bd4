package data

import "strings"

// SymbolResolver maps the ticker a client asks for to the ticker the
// provider lists it under.
type SymbolResolver interface {
	Resolve(ticker string) string
}

// StaticSymbols is a fixed lookup table keyed by upper-case ticker.
// Unknown tickers resolve to their upper-case form.
type StaticSymbols map[string]string

// DefaultSymbols maps index aliases to Massive/Polygon index tickers.
var DefaultSymbols = StaticSymbols{
	"SPX": "I:SPX",
	"VIX": "I:VIX",
	"NDX": "I:NDX",
	"RUT": "I:RUT",
}

// NewStaticSymbols builds a table from overrides layered over DefaultSymbols.
func NewStaticSymbols(overrides map[string]string) StaticSymbols {
	out := make(StaticSymbols, len(DefaultSymbols)+len(overrides))
	for k, v := range DefaultSymbols {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func (s StaticSymbols) Resolve(ticker string) string {
	key := strings.ToUpper(strings.TrimSpace(ticker))
	if mapped, ok := s[key]; ok && mapped != "" {
		return mapped
	}
	return key
}
