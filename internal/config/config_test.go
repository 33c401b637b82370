package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 0.05, cfg.Risk.StopLoss)
	assert.Equal(t, 0.1, cfg.Risk.TakeProfit)
	assert.Equal(t, 0.02, cfg.Trading.RiskPerTrade)
	assert.Equal(t, 100.0, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 60, cfg.Trading.TickInterval)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/portfolio.db", cfg.Database.DSN)
	assert.Equal(t, []string{"AAPL"}, cfg.Trading.Symbols)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
trading:
  symbols: ["MSFT", "NVDA"]
  risk_per_trade: 0.01
  dry_run: false
risk:
  max_drawdown: 0.3
logger:
  level: debug
  format: json
database:
  dsn: "file::memory:"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"MSFT", "NVDA"}, cfg.Trading.Symbols)
	assert.Equal(t, 0.01, cfg.Trading.RiskPerTrade)
	assert.False(t, cfg.Trading.DryRun)
	assert.Equal(t, 0.3, cfg.Risk.MaxDrawdown)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.05, cfg.Risk.StopLoss)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("RISK_MAX_DRAWDOWN", "0.5")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("risk: [unclosed"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
