package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trader.json")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// TestLoad_FillsDefaults tests that a minimal paper config comes back with
// every omitted section at its working default
func TestLoad_FillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"symbols": ["AAPL", "MSFT"]}`))
	assert.NoError(t, err)

	assert.Equal(t, "trader", cfg.Account)
	assert.Equal(t, "paper", cfg.Broker.Name)
	assert.Equal(t, 100000.0, cfg.Broker.StartingCash)
	assert.Equal(t, 60*time.Second, cfg.Engine.FeatureInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.MonitorInterval)
	assert.Equal(t, 0.015, cfg.Risk.MinStopDistancePct)
	assert.Equal(t, 2.0, cfg.Execution.MinRiskReward)
	assert.Equal(t, "store", cfg.StoreDir)
	assert.Equal(t, 3*time.Second, cfg.AdvisorTimeout)
}

// TestLoad_RejectsEmptySymbols tests the fail-closed symbol requirement
func TestLoad_RejectsEmptySymbols(t *testing.T) {
	_, err := Load(writeConfig(t, `{"symbols": []}`))
	assert.ErrorContains(t, err, "at least one symbol")
}

// TestLoad_RejectsUnknownBroker tests venue validation
func TestLoad_RejectsUnknownBroker(t *testing.T) {
	_, err := Load(writeConfig(t, `{"symbols": ["AAPL"], "broker": {"name": "robinhood"}}`))
	assert.ErrorContains(t, err, "unknown broker")
}

// TestLoad_BybitRequiresCredentialsFromEnv tests that live bybit trading
// refuses to start without API credentials in the environment
func TestLoad_BybitRequiresCredentialsFromEnv(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	body := `{"symbols": ["BTCUSDT"], "broker": {"name": "bybit"}}`
	_, err := Load(writeConfig(t, body))
	assert.ErrorContains(t, err, "BYBIT_API_KEY")

	t.Setenv("BYBIT_API_KEY", "k")
	t.Setenv("BYBIT_API_SECRET", "s")
	cfg, err := Load(writeConfig(t, body))
	assert.NoError(t, err)
	assert.Equal(t, "bybit", cfg.Broker.Name)
}

// TestLoad_RejectsExcessiveRisk tests the per-trade risk ceiling
func TestLoad_RejectsExcessiveRisk(t *testing.T) {
	body := `{"symbols": ["AAPL"], "risk": {"max_risk_per_trade_pct": 0.1}}`
	_, err := Load(writeConfig(t, body))
	assert.ErrorContains(t, err, "max risk per trade")
}

// TestLoad_DryRunFansOut tests that the engine dry-run flag reaches every
// order-placing component
func TestLoad_DryRunFansOut(t *testing.T) {
	body := `{"symbols": ["AAPL"], "engine": {"dry_run": true}}`
	cfg, err := Load(writeConfig(t, body))
	assert.NoError(t, err)
	assert.True(t, cfg.Execution.DryRun)
	assert.True(t, cfg.Position.DryRun)
}

// TestLoad_MissingFile tests the error path for a bad config path
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}
