package regime

// MomentumStrength combines ADX, volume ratio and trend strength into a
// single 0-1 score. The three components are normalized to [0,1] and
// averaged with equal weight.
//
// ADX saturates at 50 (readings above that are unambiguous trends), volume
// ratio saturates at 2x average. Trend strength is supplied already
// normalized by the feed.
func MomentumStrength(adx, volumeRatio, trendStrength float64) float64 {
	adxComponent := clamp01(adx / 50.0)
	volumeComponent := clamp01(volumeRatio / 2.0)
	trendComponent := clamp01(trendStrength)

	return (adxComponent + volumeComponent + trendComponent) / 3.0
}

// Momentum thresholds used by the regime-confirmed sizing rules
const (
	strongGreedMomentum = 0.8
	weakGreedMomentum   = 0.5
	strongFearMomentum  = 0.7
)

// Size multiplier bounds after all regime/momentum/volatility adjustments
const (
	minSizeMultiplier = 0.5
	maxSizeMultiplier = 1.5
)

// Hard cap on the profit target during extreme fear, in R
const extremeFearTargetCapR = 2.0

// ConfirmedSizeMultiplier returns the regime size multiplier adjusted by
// momentum confirmation and capped by the volatility index, clamped to
// [0.5, 1.5].
//
// In EXTREME_GREED strong momentum rides the wave at 1.2x while weak
// momentum cuts to 0.7x (reversal protection). In EXTREME_FEAR strong
// momentum keeps full size, weaker momentum reduces to 0.8x. A negative
// volatilityIndex means "unavailable" and applies no cap.
func ConfirmedSizeMultiplier(params Params, momentum, volatilityIndex float64) float64 {
	mult := params.BaseSizeMult

	switch params.Regime {
	case RegimeExtremeGreed:
		if momentum > strongGreedMomentum {
			mult = 1.2
		} else if momentum < weakGreedMomentum {
			mult = 0.7
		}
	case RegimeExtremeFear:
		if momentum > strongFearMomentum {
			mult = 1.0
		} else {
			mult = 0.8
		}
	}

	if cap := volatilityCap(volatilityIndex); mult > cap {
		mult = cap
	}

	return clamp(mult, minSizeMultiplier, maxSizeMultiplier)
}

// volatilityCap maps a VIX-style index level to a maximum size multiplier
func volatilityCap(volatilityIndex float64) float64 {
	switch {
	case volatilityIndex < 0:
		return maxSizeMultiplier // unavailable, no cap
	case volatilityIndex < 15:
		return 1.2
	case volatilityIndex <= 25:
		return 1.0
	case volatilityIndex <= 35:
		return 0.9
	default:
		return 0.7
	}
}

// AdjustedProfitTargetR shifts the regime profit target by up to ±0.5R with
// momentum strength. During EXTREME_FEAR the target is hard-capped at 2.0R.
func AdjustedProfitTargetR(params Params, momentum float64) float64 {
	target := params.ProfitTargetR + (momentum - 0.5)

	if target < 0.5 {
		target = 0.5
	}
	if params.Regime == RegimeExtremeFear && target > extremeFearTargetCapR {
		target = extremeFearTargetCapR
	}
	return target
}

// AdjustedTrailingStopR returns the trailing distance in R for the regime.
// Strong EXTREME_GREED momentum tightens the trail to 0.5R to lock in gains;
// EXTREME_FEAR widens it to 1.0R to survive whipsaws.
func AdjustedTrailingStopR(params Params, momentum float64) float64 {
	switch params.Regime {
	case RegimeExtremeGreed:
		if momentum > strongGreedMomentum {
			return 0.5
		}
	case RegimeExtremeFear:
		return 1.0
	}
	return params.TrailingStopR
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
