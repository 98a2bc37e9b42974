package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/cooldown"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/execution"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/position"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/risk"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/signal"
)

// TraderConfig is the complete configuration for the trading engine
type TraderConfig struct {
	// Account label used for log file naming
	Account string `json:"account"`

	// Symbols the engine evaluates each cycle
	Symbols []string `json:"symbols"`

	// Broker selection and credentials
	Broker BrokerConfig `json:"broker"`

	// Engine loop cadence
	Engine EngineConfig `json:"engine"`

	// Pre-trade gates and bracket management
	Risk      risk.Config      `json:"risk"`
	Signal    signal.MTFConfig `json:"signal"`
	Cooldown  cooldown.Config  `json:"cooldown"`
	Execution execution.Config `json:"execution"`
	Position  position.Config  `json:"position"`

	// Persistence and observability
	StoreDir    string `json:"store_dir"`
	JournalXLSX string `json:"journal_xlsx"` // Empty disables the Excel export
	MetricsPort int    `json:"metrics_port"` // 0 disables the metrics server

	// Advisory service timeout; the advisor itself is optional
	AdvisorTimeout time.Duration `json:"advisor_timeout"`
}

// BrokerConfig selects the trading venue
type BrokerConfig struct {
	Name         string       `json:"name"`          // "paper" or "bybit"
	StartingCash float64      `json:"starting_cash"` // Paper broker only
	Bybit        *BybitConfig `json:"bybit,omitempty"`
}

// BybitConfig holds Bybit venue settings; credentials come from the
// environment, never from the config file
type BybitConfig struct {
	Category string `json:"category"`
	Testnet  bool   `json:"testnet"`
	Demo     bool   `json:"demo"`
}

// EngineConfig holds the loop intervals
type EngineConfig struct {
	FeatureInterval    time.Duration `json:"feature_interval"`    // Feature refresh cadence (~60s)
	EvaluationInterval time.Duration `json:"evaluation_interval"` // Signal evaluation cadence (~60s)
	MonitorInterval    time.Duration `json:"monitor_interval"`    // Position monitoring cadence (~10s)
	RegimeRefresh      time.Duration `json:"regime_refresh"`      // Regime parameter refresh interval
	SnapshotMaxAge     time.Duration `json:"snapshot_max_age"`    // Feature staleness cutoff
	DryRun             bool          `json:"dry_run"`
}

// Load reads a trader configuration from file. A bare name is resolved
// under configs/ and .json is appended when missing.
func Load(configFile string) (*TraderConfig, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config TraderConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults fills omitted fields with working values
func (c *TraderConfig) setDefaults() {
	if c.Account == "" {
		c.Account = "trader"
	}

	if c.Broker.Name == "" {
		c.Broker.Name = "paper"
	}
	if c.Broker.StartingCash == 0 {
		c.Broker.StartingCash = 100000
	}

	if c.Engine.FeatureInterval == 0 {
		c.Engine.FeatureInterval = 60 * time.Second
	}
	if c.Engine.EvaluationInterval == 0 {
		c.Engine.EvaluationInterval = 60 * time.Second
	}
	if c.Engine.MonitorInterval == 0 {
		c.Engine.MonitorInterval = 10 * time.Second
	}
	if c.Engine.RegimeRefresh == 0 {
		c.Engine.RegimeRefresh = 5 * time.Minute
	}
	if c.Engine.SnapshotMaxAge == 0 {
		c.Engine.SnapshotMaxAge = 3 * time.Minute
	}

	if c.Risk == (risk.Config{}) {
		c.Risk = risk.DefaultConfig()
	}
	if c.Cooldown == (cooldown.Config{}) {
		c.Cooldown = cooldown.DefaultConfig()
	}
	if c.Signal == (signal.MTFConfig{}) {
		c.Signal = signal.DefaultMTFConfig()
	}
	if c.Execution == (execution.Config{}) {
		c.Execution = execution.DefaultConfig()
	}
	if c.Position.PartialExitFraction == 0 {
		c.Position = position.DefaultConfig()
	}

	if c.StoreDir == "" {
		c.StoreDir = "store"
	}
	if c.AdvisorTimeout == 0 {
		c.AdvisorTimeout = 3 * time.Second
	}

	// Dry run fans out to every order-placing component
	if c.Engine.DryRun {
		c.Execution.DryRun = true
		c.Position.DryRun = true
	}
}

// validate rejects configurations that could place unprotected trades
func (c *TraderConfig) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}

	switch strings.ToLower(c.Broker.Name) {
	case "paper":
	case "bybit":
		if !c.Engine.DryRun {
			if os.Getenv("BYBIT_API_KEY") == "" || os.Getenv("BYBIT_API_SECRET") == "" {
				return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET must be set for live bybit trading")
			}
		}
	default:
		return fmt.Errorf("unknown broker %q", c.Broker.Name)
	}

	if c.Risk.MaxRiskPerTradePct <= 0 || c.Risk.MaxRiskPerTradePct > 0.05 {
		return fmt.Errorf("max risk per trade must be in (0, 0.05], got %.4f", c.Risk.MaxRiskPerTradePct)
	}
	if c.Risk.MinStopDistancePct <= 0 {
		return fmt.Errorf("min stop distance must be positive")
	}
	if c.Execution.MinRiskReward < 1.0 {
		return fmt.Errorf("min risk reward must be at least 1.0, got %.2f", c.Execution.MinRiskReward)
	}
	if c.Position.PartialExitFraction <= 0 || c.Position.PartialExitFraction > 1 {
		return fmt.Errorf("partial exit fraction must be in (0, 1], got %.2f", c.Position.PartialExitFraction)
	}
	return nil
}
