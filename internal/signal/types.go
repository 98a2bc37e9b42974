package signal

import (
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
)

// Signal is a candidate trade produced once per evaluation tick. It is
// consumed immediately or discarded; signals are never stored.
type Signal struct {
	Symbol     string                  `json:"symbol"`
	Side       broker.OrderSide        `json:"side"`
	Confidence float64                 `json:"confidence"` // Raw 0-100 confidence before filtering
	Features   *market.FeatureSnapshot `json:"features"`
	Timestamp  time.Time               `json:"timestamp"`
}

// FilterResult is the multi-timeframe filter's verdict on a candidate signal
type FilterResult struct {
	Approved       bool    `json:"approved"`
	Confidence     float64 `json:"confidence"`      // Adjusted confidence after alignment scoring
	SizeMultiplier float64 `json:"size_multiplier"` // Combined confidence/S&R/ADX multiplier, 0 on rejection
	StopAnchor     float64 `json:"stop_anchor"`     // Structure level to anchor the stop beyond, 0 = none
	TargetAnchor   float64 `json:"target_anchor"`   // Structure level to anchor the target at, 0 = none
	Reason         string  `json:"reason,omitempty"`
}

// TrendBias is the higher-timeframe trend classification used to gate signals
type TrendBias string

const (
	BiasBullish TrendBias = "bullish"
	BiasBearish TrendBias = "bearish"
	BiasNeutral TrendBias = "neutral"
)
