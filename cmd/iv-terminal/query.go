package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contactkeval/iv-terminal/internal/market"
	"github.com/contactkeval/iv-terminal/internal/report"
)

type queryOpts struct {
	asJSON bool
	outdir string
}

// queryCmd wires one service query to a subcommand taking a single ticker.
// Results go to stdout as a table (or JSON) and, with --out, to files.
func queryCmd[T any](
	a *app,
	use, short string,
	run func(*market.Service, context.Context, string) (*T, error),
	render func(io.Writer, *T),
	save func(*T, string) error,
) *cobra.Command {
	var opts queryOpts

	cmd := &cobra.Command{
		Use:   use + " TICKER",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(a.cfg)
			if err != nil {
				return err
			}

			ticker := strings.ToUpper(strings.TrimSpace(args[0]))
			res, err := run(svc, cmd.Context(), ticker)
			if err != nil {
				return fmt.Errorf("%s %s: %w", use, ticker, err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				render(out, res)
			}

			if opts.outdir == "" {
				return nil
			}
			if err := os.MkdirAll(opts.outdir, 0755); err != nil {
				return err
			}
			if err := report.WriteJSON(res, opts.outdir, use); err != nil {
				return err
			}
			if save != nil {
				if err := save(res, opts.outdir); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s results to %s\n", use, opts.outdir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the API JSON body instead of a table")
	cmd.Flags().StringVarP(&opts.outdir, "out", "o", "", "also write JSON/CSV results to this directory")
	return cmd
}

func quoteCmd(a *app) *cobra.Command {
	return queryCmd(a, "quote", "Spot price and change versus previous close",
		(*market.Service).Quote, report.RenderQuote, nil)
}

func optionsCmd(a *app) *cobra.Command {
	return queryCmd(a, "options", "Option chains for the nearest expirations",
		(*market.Service).Options, report.RenderOptions,
		func(o *market.OptionsResponse, dir string) error {
			return report.WriteChainsCSV(o.Chains, dir)
		})
}

func surfaceCmd(a *app) *cobra.Command {
	return queryCmd(a, "surface", "Implied-volatility surface by moneyness and DTE",
		(*market.Service).Surface, report.RenderSurface,
		func(s *market.SurfaceResponse, dir string) error {
			return report.WriteSurfaceCSV(s.Surface, dir)
		})
}

func termCmd(a *app) *cobra.Command {
	return queryCmd(a, "term", "ATM implied-volatility term structure",
		(*market.Service).TermStructure, report.RenderTermStructure,
		func(ts *market.TermStructureResponse, dir string) error {
			return report.WriteTermCSV(ts.Raw, dir)
		})
}
