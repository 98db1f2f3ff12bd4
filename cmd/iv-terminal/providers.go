package main

import (
	"fmt"

	"github.com/contactkeval/iv-terminal/internal/config"
	"github.com/contactkeval/iv-terminal/internal/data"
	"github.com/contactkeval/iv-terminal/internal/logger"
	"github.com/contactkeval/iv-terminal/internal/market"
)

// buildProvider assembles primary (+ secondary) provider, guarded when it
// talks to a hosted API, and cached.
func buildProvider(cfg *config.Config) (data.Provider, error) {
	var secondary data.Provider
	if cfg.Provider.Secondary != "" {
		p, err := newProvider(cfg, cfg.Provider.Secondary, nil)
		if err != nil {
			return nil, err
		}
		secondary = p
	}

	prov, err := newProvider(cfg, cfg.Provider.Name, secondary)
	if err != nil {
		return nil, err
	}

	if prov.Name() == "massive" || prov.Name() == "polygon" {
		prov = data.NewGuardedProvider(prov, cfg.Provider.Guard)
	}
	prov = data.NewCachedProvider(prov, cfg.Provider.CacheTTL)

	logger.Infof("%s provider enabled", prov.Name())
	return prov, nil
}

func newProvider(cfg *config.Config, name string, secondary data.Provider) (data.Provider, error) {
	if cfg.NeedsKey(name) {
		logger.Warnf("no API key for %s, using synthetic data", name)
		return data.NewSyntheticProvider(), nil
	}

	switch name {
	case "massive":
		return data.NewMassiveDataProvider(cfg.Provider.MassiveAPIKey, secondary), nil
	case "polygon":
		return data.NewPolygonDataProvider(cfg.Provider.PolygonAPIKey, secondary), nil
	case "local":
		return data.NewLocalCSVDataProvider(cfg.Provider.DataDir, secondary), nil
	case "synthetic":
		return data.NewSyntheticProvider(), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

func buildService(cfg *config.Config) (*market.Service, error) {
	prov, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	settings := market.Settings{
		OptionsChains:      cfg.Analytics.OptionsChains,
		OptionsExpirations: cfg.Analytics.OptionsExpirations,
		SurfaceExpirations: cfg.Analytics.SurfaceExpirations,
		TermExpirations:    cfg.Analytics.TermExpirations,
		Band:               cfg.Analytics.MoneynessBand,
		Concurrency:        cfg.Provider.Concurrency,
	}
	return market.NewService(prov, data.NewStaticSymbols(cfg.Symbols), settings), nil
}
