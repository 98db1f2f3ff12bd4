// Package config loads iv-terminal settings from a YAML file, a .env file
// and the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/contactkeval/iv-terminal/internal/analytics"
	"github.com/contactkeval/iv-terminal/internal/data"
	"github.com/contactkeval/iv-terminal/internal/logger"
)

// Config is the full application configuration.
type Config struct {
	Verbosity int               `yaml:"verbosity"`
	Server    ServerConfig      `yaml:"server"`
	Provider  ProviderConfig    `yaml:"provider"`
	Analytics AnalyticsConfig   `yaml:"analytics"`
	Symbols   map[string]string `yaml:"symbols"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ProviderConfig selects and tunes the market data provider.
type ProviderConfig struct {
	// Name is one of massive, polygon, local, synthetic.
	Name string `yaml:"name"`
	// Secondary is consulted when Name has no data for a call. Empty disables it.
	Secondary   string            `yaml:"secondary"`
	DataDir     string            `yaml:"data_dir"`
	CacheTTL    time.Duration     `yaml:"cache_ttl"`
	Concurrency int               `yaml:"concurrency"`
	Guard       data.GuardOptions `yaml:"guard"`

	// API keys only come from the environment.
	MassiveAPIKey string `yaml:"-"`
	PolygonAPIKey string `yaml:"-"`
}

// AnalyticsConfig bounds how many expirations each endpoint looks at.
type AnalyticsConfig struct {
	OptionsChains      int            `yaml:"options_chains"`
	OptionsExpirations int            `yaml:"options_expirations"`
	SurfaceExpirations int            `yaml:"surface_expirations"`
	TermExpirations    int            `yaml:"term_expirations"`
	MoneynessBand      analytics.Band `yaml:"moneyness_band"`
}

var providerNames = map[string]bool{
	"massive":   true,
	"polygon":   true,
	"local":     true,
	"synthetic": true,
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Verbosity: int(logger.Info),
		Server: ServerConfig{
			Addr:           ":5000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   60 * time.Second,
			RequestTimeout: 45 * time.Second,
		},
		Provider: ProviderConfig{
			Name:        "massive",
			DataDir:     "data",
			CacheTTL:    30 * time.Second,
			Concurrency: 4,
			Guard:       data.DefaultGuardOptions(),
		},
		Analytics: AnalyticsConfig{
			OptionsChains:      4,
			OptionsExpirations: 8,
			SurfaceExpirations: 6,
			TermExpirations:    8,
			MoneynessBand:      analytics.DefaultBand,
		},
		Symbols: map[string]string{},
	}
}

// Load builds the configuration. path may be empty; envFile is loaded when
// present and silently skipped when missing.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s file: %w", envFile, err)
		}
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider.MassiveAPIKey = os.Getenv("MASSIVE_API_KEY")
	c.Provider.PolygonAPIKey = os.Getenv("POLYGON_API_KEY")

	if v := os.Getenv("IVT_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("IVT_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	c.Provider.Secondary = strings.ToLower(strings.TrimSpace(c.Provider.Secondary))

	if !providerNames[c.Provider.Name] {
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Provider.Secondary != "" {
		if !providerNames[c.Provider.Secondary] {
			return fmt.Errorf("unknown secondary provider %q", c.Provider.Secondary)
		}
		if c.Provider.Secondary == c.Provider.Name {
			return fmt.Errorf("secondary provider must differ from %q", c.Provider.Name)
		}
	}
	if c.Provider.Concurrency < 1 {
		return fmt.Errorf("provider.concurrency must be at least 1, got %d", c.Provider.Concurrency)
	}
	if c.Provider.CacheTTL < 0 {
		return fmt.Errorf("provider.cache_ttl must not be negative")
	}

	band := c.Analytics.MoneynessBand
	if band.Low <= 0 || band.High < band.Low {
		return fmt.Errorf("invalid moneyness band [%v, %v]", band.Low, band.High)
	}
	for name, n := range map[string]int{
		"options_chains":      c.Analytics.OptionsChains,
		"options_expirations": c.Analytics.OptionsExpirations,
		"surface_expirations": c.Analytics.SurfaceExpirations,
		"term_expirations":    c.Analytics.TermExpirations,
	} {
		if n < 0 {
			return fmt.Errorf("analytics.%s must not be negative, got %d", name, n)
		}
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// NeedsKey reports whether the named provider needs an API key that is missing.
func (c *Config) NeedsKey(name string) bool {
	switch name {
	case "massive":
		return c.Provider.MassiveAPIKey == ""
	case "polygon":
		return c.Provider.PolygonAPIKey == ""
	}
	return false
}
