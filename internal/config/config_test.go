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

	assert.Equal(t, 90*time.Second, cfg.Pipeline.ProducerTimeout)
	assert.Len(t, cfg.Pipeline.Phases, 3)
	assert.Equal(t, "risk", cfg.Pipeline.RiskProducer)
	assert.Equal(t, 0.5, cfg.Sizing.KellySafetyFraction)
	assert.Equal(t, 0.25, cfg.Sizing.MaxPositionPct)
	assert.Equal(t, "SPY", cfg.Sizing.PrimarySymbol)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Sizing, cfg.Sizing)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
sizing:
  portfolio_value: 250000
  primary_symbol: IWM
storage:
  redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250000.0, cfg.Sizing.PortfolioValue)
	assert.Equal(t, "IWM", cfg.Sizing.PrimarySymbol)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
	// Untouched sections keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.Pipeline.ProducerTimeout)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsDuplicateProducer(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Phases = []PhaseConfig{
		{Name: "a", Producers: []string{"macro"}},
		{Name: "b", Producers: []string{"macro"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most one phase")
}

func TestValidateRejectsRiskProducerInPhase(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Phases[0].Producers = append(cfg.Pipeline.Phases[0].Producers, "risk")
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadFractions(t *testing.T) {
	cfg := Default()
	cfg.Sizing.KellySafetyFraction = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sizing.MaxPositionPct = 0
	assert.Error(t, cfg.Validate())
}
