package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/iv-terminal/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--env-file", "", "--verbosity", "0"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildProvider_MissingKeyFallsBackToSynthetic(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "polygon"
	cfg.Provider.PolygonAPIKey = ""

	prov, err := buildProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", prov.Name())
}

func TestBuildProvider_LocalWithSecondary(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "local"
	cfg.Provider.Secondary = "synthetic"
	cfg.Provider.DataDir = t.TempDir()

	prov, err := buildProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", prov.Name())
	require.NotNil(t, prov.Secondary())
	assert.Equal(t, "synthetic", prov.Secondary().Name())
}

func TestBuildProvider_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "yahoo"

	_, err := buildProvider(cfg)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestTermCommand_JSON(t *testing.T) {
	out, err := execute(t, "--provider", "synthetic", "term", "spy", "--json")
	require.NoError(t, err)

	var body struct {
		Ticker        string             `json:"ticker"`
		TermStructure map[string]float64 `json:"term_structure"`
		Raw           []map[string]any   `json:"raw"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "SPY", body.Ticker)
	assert.NotEmpty(t, body.Raw)
	assert.Contains(t, body.TermStructure, "1W")
}

func TestSurfaceCommand_WritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	out, err := execute(t, "--provider", "synthetic", "surface", "QQQ", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "MONEYNESS")

	for _, name := range []string{"surface.json", "surface.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestQueryCommand_RequiresTicker(t *testing.T) {
	_, err := execute(t, "--provider", "synthetic", "quote")
	assert.Error(t, err)
}

func TestRootRejectsUnknownProvider(t *testing.T) {
	_, err := execute(t, "--provider", "nope", "quote", "SPY")
	assert.ErrorContains(t, err, "unknown provider")
}
