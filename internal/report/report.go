// Package report writes query results to files and renders them as tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"

	"github.com/contactkeval/iv-terminal/internal/analytics"
	"github.com/contactkeval/iv-terminal/internal/market"
)

// WriteJSON writes v indented to <outdir>/<name>.json.
func WriteJSON(v any, outdir, name string) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, name+".json"), b, 0644)
}

// WriteSurfaceCSV writes <outdir>/surface.csv.
func WriteSurfaceCSV(points []analytics.SurfacePoint, outdir string) error {
	return writeCSV(filepath.Join(outdir, "surface.csv"), &points)
}

// WriteTermCSV writes <outdir>/term_structure.csv.
func WriteTermCSV(entries []analytics.TermStructureEntry, outdir string) error {
	return writeCSV(filepath.Join(outdir, "term_structure.csv"), &entries)
}

type chainCSVRow struct {
	Expiration        string  `csv:"expiration"`
	Type              string  `csv:"type"`
	Strike            float64 `csv:"strike"`
	LastPrice         float64 `csv:"last_price"`
	Bid               float64 `csv:"bid"`
	Ask               float64 `csv:"ask"`
	Volume            int64   `csv:"volume"`
	OpenInterest      int64   `csv:"open_interest"`
	ImpliedVolatility float64 `csv:"implied_volatility"`
}

// WriteChainsCSV writes every chain row to <outdir>/chains.csv, in the
// same column layout the local provider reads.
func WriteChainsCSV(chains []market.ChainView, outdir string) error {
	rows := make([]chainCSVRow, 0, 64)
	for _, c := range chains {
		rows = appendChainRows(rows, c.Expiration, "call", c.Calls)
		rows = appendChainRows(rows, c.Expiration, "put", c.Puts)
	}
	return writeCSV(filepath.Join(outdir, "chains.csv"), &rows)
}

func appendChainRows(dst []chainCSVRow, expiration, optType string, quotes []market.OptionRow) []chainCSVRow {
	for _, q := range quotes {
		dst = append(dst, chainCSVRow{
			Expiration:        expiration,
			Type:              optType,
			Strike:            q.Strike,
			LastPrice:         q.LastPrice,
			Bid:               q.Bid,
			Ask:               q.Ask,
			Volume:            q.Volume,
			OpenInterest:      q.OpenInterest,
			ImpliedVolatility: q.ImpliedVolatility,
		})
	}
	return dst
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// --------------------------------------------------------------------------------------------
// Tables
// --------------------------------------------------------------------------------------------

func RenderQuote(w io.Writer, q *market.QuoteResponse) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Ticker", "Provider ticker", "Price", "Prev close", "Change", "Change %", "Market cap", "Source"})
	table.Append([]string{q.Ticker, q.ProviderTicker, optional(q.Price, "%.2f"), optional(q.PreviousClose, "%.2f"),
		optional(q.Change, "%+.2f"), optional(q.ChangePct, "%+.2f%%"), optional(q.MarketCap, "%.0f"), q.Source})
	table.Render()
	footer(w, q.Error)
}

// RenderOptions prints the expirations list and one table per chain.
func RenderOptions(w io.Writer, o *market.OptionsResponse) {
	fmt.Fprintf(w, "%s expirations: %v\n", o.Ticker, o.Expirations)
	for _, c := range o.Chains {
		fmt.Fprintf(w, "\n%s (dte %d)\n", c.Expiration, c.DTE)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Type", "Strike", "Last", "Bid", "Ask", "Volume", "OI", "IV"})
		table.SetAlignment(tablewriter.ALIGN_RIGHT)
		appendRows(table, "call", c.Calls)
		appendRows(table, "put", c.Puts)
		table.Render()
	}
	footer(w, o.Error)
}

func appendRows(table *tablewriter.Table, optType string, rows []market.OptionRow) {
	for _, r := range rows {
		table.Append([]string{
			optType,
			fmt.Sprintf("%.2f", r.Strike),
			fmt.Sprintf("%.2f", r.LastPrice),
			fmt.Sprintf("%.2f", r.Bid),
			fmt.Sprintf("%.2f", r.Ask),
			fmt.Sprintf("%d", r.Volume),
			fmt.Sprintf("%d", r.OpenInterest),
			fmt.Sprintf("%.4f", r.ImpliedVolatility),
		})
	}
}

func RenderSurface(w io.Writer, s *market.SurfaceResponse) {
	fmt.Fprintf(w, "%s spot %.2f, %d points\n", s.Ticker, s.Spot, len(s.Surface))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"DTE", "Type", "Strike", "Moneyness", "IV"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, p := range s.Surface {
		table.Append([]string{
			fmt.Sprintf("%d", p.DTE),
			string(p.Type),
			fmt.Sprintf("%.2f", p.Strike),
			fmt.Sprintf("%.4f", p.Moneyness),
			fmt.Sprintf("%.4f", p.IV),
		})
	}
	table.Render()
	footer(w, s.Error)
}

// RenderTermStructure prints the raw entries followed by the tenor buckets,
// shortest tenor first.
func RenderTermStructure(w io.Writer, ts *market.TermStructureResponse) {
	fmt.Fprintf(w, "%s spot %.2f\n", ts.Ticker, ts.Spot)

	raw := tablewriter.NewWriter(w)
	raw.SetHeader([]string{"Expiration", "DTE", "ATM strike", "ATM IV"})
	for _, e := range ts.Raw {
		raw.Append([]string{e.Expiration, fmt.Sprintf("%d", e.DTE), fmt.Sprintf("%.2f", e.ATMStrike), fmt.Sprintf("%.4f", e.ATMIV)})
	}
	raw.Render()

	tenors := make([]analytics.Tenor, 0, len(ts.TermStructure))
	for tenor := range ts.TermStructure {
		tenors = append(tenors, tenor)
	}
	sort.Slice(tenors, func(i, j int) bool { return tenorRank(tenors[i]) < tenorRank(tenors[j]) })

	buckets := tablewriter.NewWriter(w)
	buckets.SetHeader([]string{"Tenor", "ATM IV"})
	for _, tenor := range tenors {
		buckets.Append([]string{string(tenor), fmt.Sprintf("%.4f", ts.TermStructure[tenor])})
	}
	buckets.Render()
	footer(w, ts.Error)
}

func tenorRank(t analytics.Tenor) int {
	for i, known := range analytics.Tenors {
		if known == t {
			return i
		}
	}
	return len(analytics.Tenors)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func footer(w io.Writer, msg string) {
	if msg != "" {
		fmt.Fprintf(w, "note: %s\n", msg)
	}
}
