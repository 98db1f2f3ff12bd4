package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Analytics.SurfaceExpirations)
	assert.Equal(t, 8, cfg.Analytics.TermExpirations)
	assert.Equal(t, 4, cfg.Analytics.OptionsChains)
	assert.Equal(t, 0.8, cfg.Analytics.MoneynessBand.Low)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
verbosity: 2
server:
  addr: ":8080"
  request_timeout: 20s
provider:
  name: Polygon
  secondary: synthetic
  cache_ttl: 1m
  guard:
    rate_per_second: 2
    open_timeout: 45s
analytics:
  surface_expirations: 3
  moneyness_band:
    low: 0.9
    high: 1.1
symbols:
  es: ES=F
`), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("POLYGON_API_KEY=from-dotenv\n"), 0o644))

	t.Setenv("POLYGON_API_KEY", "")
	os.Unsetenv("POLYGON_API_KEY")
	t.Setenv("MASSIVE_API_KEY", "massive-key")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Verbosity)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 20*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "polygon", cfg.Provider.Name)
	assert.Equal(t, "synthetic", cfg.Provider.Secondary)
	assert.Equal(t, time.Minute, cfg.Provider.CacheTTL)
	assert.Equal(t, 2.0, cfg.Provider.Guard.RatePerSecond)
	assert.Equal(t, 45*time.Second, cfg.Provider.Guard.OpenTimeout)
	assert.Equal(t, 3, cfg.Analytics.SurfaceExpirations)
	assert.Equal(t, 8, cfg.Analytics.TermExpirations)
	assert.Equal(t, 0.9, cfg.Analytics.MoneynessBand.Low)
	assert.Equal(t, "ES=F", cfg.Symbols["es"])
	assert.Equal(t, "from-dotenv", cfg.Provider.PolygonAPIKey)
	assert.Equal(t, "massive-key", cfg.Provider.MassiveAPIKey)
	assert.False(t, cfg.NeedsKey("polygon"))
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "massive", cfg.Provider.Name)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider.Name = "yahoo" }},
		{"same secondary", func(c *Config) { c.Provider.Secondary = "massive" }},
		{"zero concurrency", func(c *Config) { c.Provider.Concurrency = 0 }},
		{"inverted band", func(c *Config) { c.Analytics.MoneynessBand.Low = 1.3 }},
		{"negative limit", func(c *Config) { c.Analytics.TermExpirations = -1 }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNeedsKey(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.NeedsKey("massive"))
	assert.False(t, cfg.NeedsKey("synthetic"))
	assert.False(t, cfg.NeedsKey("local"))
}
