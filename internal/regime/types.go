package regime

import "time"

// Regime classifies market sentiment into discrete buckets that drive
// default risk parameters
type Regime string

const (
	RegimeExtremeFear  Regime = "EXTREME_FEAR"
	RegimeFear         Regime = "FEAR"
	RegimeNeutral      Regime = "NEUTRAL"
	RegimeGreed        Regime = "GREED"
	RegimeExtremeGreed Regime = "EXTREME_GREED"
)

// Sentiment score boundaries between regimes
const (
	extremeFearMax = 20.0
	fearMax        = 40.0
	neutralMax     = 60.0
	greedMax       = 80.0
)

// Params holds the regime-default risk parameters consumed by sizing and
// position lifecycle components. Snapshots are immutable; a new snapshot is
// produced at most once per refresh interval.
type Params struct {
	Regime        Regime    `json:"regime"`
	Sentiment     float64   `json:"sentiment"`       // Score that produced this snapshot
	ProfitTargetR float64   `json:"profit_target_r"` // First partial-profit milestone in R
	TrailingStopR float64   `json:"trailing_stop_r"` // Trailing distance in R
	BaseSizeMult  float64   `json:"base_size_mult"`  // Default position size multiplier
	ComputedAt    time.Time `json:"computed_at"`
}

// Classify maps a sentiment score to its regime bucket
func Classify(sentiment float64) Regime {
	switch {
	case sentiment < extremeFearMax:
		return RegimeExtremeFear
	case sentiment < fearMax:
		return RegimeFear
	case sentiment < neutralMax:
		return RegimeNeutral
	case sentiment <= greedMax:
		return RegimeGreed
	default:
		return RegimeExtremeGreed
	}
}

// defaultParams returns the default risk parameters for each regime.
// Fearful regimes take profits earlier and trail wider on smaller size;
// greedy regimes let winners run on tighter trails and larger size.
func defaultParams(r Regime) Params {
	switch r {
	case RegimeExtremeFear:
		return Params{Regime: r, ProfitTargetR: 1.5, TrailingStopR: 1.0, BaseSizeMult: 0.7}
	case RegimeFear:
		return Params{Regime: r, ProfitTargetR: 2.0, TrailingStopR: 0.9, BaseSizeMult: 0.85}
	case RegimeNeutral:
		return Params{Regime: r, ProfitTargetR: 2.0, TrailingStopR: 0.75, BaseSizeMult: 1.0}
	case RegimeGreed:
		return Params{Regime: r, ProfitTargetR: 2.5, TrailingStopR: 0.7, BaseSizeMult: 1.1}
	case RegimeExtremeGreed:
		return Params{Regime: r, ProfitTargetR: 3.0, TrailingStopR: 0.6, BaseSizeMult: 1.2}
	default:
		return Params{Regime: RegimeNeutral, ProfitTargetR: 2.0, TrailingStopR: 0.75, BaseSizeMult: 1.0}
	}
}
