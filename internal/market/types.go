package market

import "time"

// Timeframe identifies the bar interval a feature snapshot was computed on
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1min"
	Timeframe5Min  Timeframe = "5min"
	Timeframe15Min Timeframe = "15min"
	TimeframeDaily Timeframe = "daily"
)

// TrendDirection is the coarse trend classification supplied by the feed
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// FeatureSnapshot holds precomputed indicator values for one symbol on one
// timeframe. Indicator math happens upstream in the data pipeline; this core
// only consumes the results. Zero-valued optional fields mean "not available"
// and consumers degrade to neutral behavior.
type FeatureSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`

	Price float64 `json:"price"` // Last trade price

	// Moving averages
	EMA9   float64 `json:"ema_9"`
	EMA21  float64 `json:"ema_21"`
	EMA50  float64 `json:"ema_50"`
	EMA200 float64 `json:"ema_200"`

	// Oscillators and trend strength
	RSI           float64 `json:"rsi"`            // 0-100, 0 = unavailable
	MACDHistogram float64 `json:"macd_histogram"` // Signed histogram value
	ADX           float64 `json:"adx"`            // 0-100, 0 = unavailable
	ATR           float64 `json:"atr"`            // Absolute price units
	VolumeRatio   float64 `json:"volume_ratio"`   // Current volume / average volume

	// Nearest structure levels, 0 = unavailable
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`

	// Daily context carried on intraday snapshots
	DailyEMA200 float64        `json:"daily_ema_200"`
	Trend       TrendDirection `json:"trend"`
}

// HasRSI reports whether the snapshot carries a usable RSI value
func (f *FeatureSnapshot) HasRSI() bool {
	return f != nil && f.RSI > 0
}

// HasADX reports whether the snapshot carries a usable ADX value
func (f *FeatureSnapshot) HasADX() bool {
	return f != nil && f.ADX > 0
}

// TimeframeBundle groups per-timeframe snapshots for one symbol, used by the
// multi-timeframe filter. Any entry may be nil when the feed has no data for
// that timeframe yet.
type TimeframeBundle struct {
	Symbol string           `json:"symbol"`
	M1     *FeatureSnapshot `json:"m1,omitempty"`
	M5     *FeatureSnapshot `json:"m5,omitempty"`
	M15    *FeatureSnapshot `json:"m15,omitempty"`
	Daily  *FeatureSnapshot `json:"daily,omitempty"`
}

// Intraday returns the non-nil intraday snapshots in 1min/5min/15min order
func (b *TimeframeBundle) Intraday() []*FeatureSnapshot {
	var out []*FeatureSnapshot
	for _, s := range []*FeatureSnapshot{b.M1, b.M5, b.M15} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// MarketContext holds market-wide inputs refreshed once per feature tick.
// SentimentScore and VolatilityIndex are optional; negative values mean
// "unavailable" and downstream consumers fall back to neutral defaults.
type MarketContext struct {
	SentimentScore  float64   `json:"sentiment_score"`  // 0-100 fear/greed style score
	VolatilityIndex float64   `json:"volatility_index"` // VIX-style index level
	UpdatedAt       time.Time `json:"updated_at"`
}
