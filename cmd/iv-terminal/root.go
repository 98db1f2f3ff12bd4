package main

import (
	"github.com/spf13/cobra"

	"github.com/contactkeval/iv-terminal/internal/config"
	"github.com/contactkeval/iv-terminal/internal/logger"
)

// app is shared by every subcommand once the root has loaded the config.
type app struct {
	configPath string
	envFile    string
	provider   string
	verbosity  int
	logJSON    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "iv-terminal",
		Short:         "Quotes, option chains and implied-volatility analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath, a.envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("provider") {
				cfg.Provider.Name = a.provider
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("verbosity") {
				cfg.Verbosity = a.verbosity
			}
			logger.SetVerbosity(cfg.Verbosity)
			if a.logJSON {
				logger.SetJSON()
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to YAML config")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with API keys (skipped when missing)")
	flags.StringVarP(&a.provider, "provider", "p", "", "data provider: massive, polygon, local, synthetic")
	flags.IntVarP(&a.verbosity, "verbosity", "v", int(logger.Info), "0=error 1=info 2=debug 3=trace")
	flags.BoolVar(&a.logJSON, "log-json", false, "emit logs as JSON")

	root.AddCommand(
		serveCmd(a),
		quoteCmd(a),
		optionsCmd(a),
		surfaceCmd(a),
		termCmd(a),
	)
	return root
}
