package risk

import (
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
)

// Config holds the numeric risk limits
type Config struct {
	MinStopDistancePct  float64 `json:"min_stop_distance_pct"`  // Floor on stop distance as fraction of entry (0.015 = 1.5%)
	MaxRiskPerTradePct  float64 `json:"max_risk_per_trade_pct"` // Max equity fraction at risk per trade (0.01 = 1%)
	ATRStopMultiplier   float64 `json:"atr_stop_multiplier"`    // ATR multiple for the raw stop distance
	LossReductionStreak int     `json:"loss_reduction_streak"`  // Consecutive losses that halve position size
	DailyLossLimitPct   float64 `json:"daily_loss_limit_pct"`   // Daily drawdown that trips the circuit breaker (0.03 = 3%)
	MaxConcurrentPos    int     `json:"max_concurrent_positions"`
}

// DefaultConfig returns the default risk limits
func DefaultConfig() Config {
	return Config{
		MinStopDistancePct:  0.015,
		MaxRiskPerTradePct:  0.01,
		ATRStopMultiplier:   2.0,
		LossReductionStreak: 3,
		DailyLossLimitPct:   0.03,
		MaxConcurrentPos:    3,
	}
}

// OrderCheck bundles the read-only context for a composite entry check
type OrderCheck struct {
	Symbol     string           `json:"symbol"`
	Side       broker.OrderSide `json:"side"`
	EntryPrice float64          `json:"entry_price"`
	ATR        float64          `json:"atr"`
	Equity     float64          `json:"equity"`

	OpenPositions     int     `json:"open_positions"`
	MarketOpen        bool    `json:"market_open"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	TrendReference    float64 `json:"trend_reference"`  // Longer-period trend anchor (daily EMA200); 0 = unavailable
	VolatilityIndex   float64 `json:"volatility_index"` // VIX-style level; negative = unavailable
}

// Decision is the outcome of a composite entry check
type Decision struct {
	Approved  bool      `json:"approved"`
	MaxShares int       `json:"max_shares"`
	StopPrice float64   `json:"stop_price"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
