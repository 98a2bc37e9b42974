package signal

import (
	"fmt"
	"math"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
)

// MTFConfig holds the multi-timeframe filter thresholds
type MTFConfig struct {
	Enabled            bool    `json:"enabled"`
	TrendDeadbandPct   float64 `json:"trend_deadband_pct"`   // EMA50/EMA200 equality deadband (0.001 = 0.1%)
	StructureProxPct   float64 `json:"structure_prox_pct"`   // S&R proximity that discounts size (0.003 = 0.3%)
	StructureBufferPct float64 `json:"structure_buffer_pct"` // Buffer beyond the anchoring level
	RangingADX         float64 `json:"ranging_adx"`          // ADX below this counts as ranging
	TrendingADX        float64 `json:"trending_adx"`         // ADX above this on all frames skips reduction
}

// DefaultMTFConfig returns the default filter thresholds
func DefaultMTFConfig() MTFConfig {
	return MTFConfig{
		Enabled:            true,
		TrendDeadbandPct:   0.001,
		StructureProxPct:   0.003,
		StructureBufferPct: 0.001,
		RangingADX:         20,
		TrendingADX:        25,
	}
}

// MultiTimeframeFilter confirms or rejects a candidate signal against
// 1-min/5-min/15-min/daily alignment and support/resistance structure.
// It is a pure function over read-only snapshots; all state lives in the
// inputs.
type MultiTimeframeFilter struct {
	config MTFConfig
}

// NewMultiTimeframeFilter creates a filter with the given thresholds
func NewMultiTimeframeFilter(config MTFConfig) *MultiTimeframeFilter {
	if config.StructureProxPct == 0 {
		config = DefaultMTFConfig()
	}
	return &MultiTimeframeFilter{config: config}
}

// Evaluate runs the full confirmation pipeline on a candidate signal.
// When the filter is disabled it falls back to the single-timeframe
// legacy evaluation over the signal's own snapshot.
func (f *MultiTimeframeFilter) Evaluate(sig *Signal, bundle *market.TimeframeBundle) FilterResult {
	if !f.config.Enabled || bundle == nil {
		return f.evaluateLegacy(sig)
	}

	reject := func(reason string) FilterResult {
		return FilterResult{Approved: false, Confidence: sig.Confidence, Reason: reason}
	}

	// 1. Higher-timeframe trend bias must not oppose the signal
	bias := f.trendBias(bundle.M15)
	if bias == BiasBullish && sig.Side == broker.SideSell {
		return reject("15-min trend bias is bullish, sell signal rejected")
	}
	if bias == BiasBearish && sig.Side == broker.SideBuy {
		return reject("15-min trend bias is bearish, buy signal rejected")
	}

	// 2. Momentum alignment across intraday timeframes
	rsiAligned, rsiChecked := f.rsiAlignment(sig.Side, bundle)
	if rsiChecked >= 2 && rsiAligned < 2 {
		return reject(fmt.Sprintf("RSI aligned on only %d of %d intraday timeframes", rsiAligned, rsiChecked))
	}

	confidence := sig.Confidence + f.alignmentAdjustment(sig.Side, bundle, rsiAligned, rsiChecked)
	if confidence > 100 {
		confidence = 100
	}

	// 5. Confidence-to-size mapping is the base multiplier
	mult := ConfidenceSizeMultiplier(confidence)
	if mult == 0 {
		return FilterResult{
			Approved:   false,
			Confidence: confidence,
			Reason:     fmt.Sprintf("confidence %.1f below tradable floor", confidence),
		}
	}

	// 3. Support/resistance proximity gate
	stopAnchor, targetAnchor, nearStructure := f.structureGate(sig, bundle.M15)
	if nearStructure {
		mult *= 0.7
	}

	// 4. ADX-based sizing for ranging markets
	mult *= f.adxMultiplier(bundle)

	return FilterResult{
		Approved:       true,
		Confidence:     confidence,
		SizeMultiplier: mult,
		StopAnchor:     stopAnchor,
		TargetAnchor:   targetAnchor,
	}
}

// trendBias classifies the 15-min context trend from EMA50 vs EMA200 with a
// deadband around equality
func (f *MultiTimeframeFilter) trendBias(m15 *market.FeatureSnapshot) TrendBias {
	if m15 == nil || m15.EMA50 <= 0 || m15.EMA200 <= 0 {
		return BiasNeutral
	}

	spread := (m15.EMA50 - m15.EMA200) / m15.EMA200
	switch {
	case spread > f.config.TrendDeadbandPct:
		return BiasBullish
	case spread < -f.config.TrendDeadbandPct:
		return BiasBearish
	default:
		return BiasNeutral
	}
}

// rsiAlignment counts intraday timeframes whose RSI confirms the signal side
// (>50 for buys, <50 for sells). Timeframes without RSI are skipped.
func (f *MultiTimeframeFilter) rsiAlignment(side broker.OrderSide, bundle *market.TimeframeBundle) (aligned, checked int) {
	for _, snap := range bundle.Intraday() {
		if !snap.HasRSI() {
			continue
		}
		checked++
		if (side == broker.SideBuy && snap.RSI > 50) || (side == broker.SideSell && snap.RSI < 50) {
			aligned++
		}
	}
	return aligned, checked
}

// macdConfirmation reports whether the MACD histogram sign matches the
// signal on both the 5-min and 15-min frames, and whether it conflicts on
// both
func (f *MultiTimeframeFilter) macdConfirmation(side broker.OrderSide, bundle *market.TimeframeBundle) (confirms, conflicts bool) {
	m5, m15 := bundle.M5, bundle.M15
	if m5 == nil || m15 == nil {
		return false, false
	}

	match := func(hist float64) bool {
		if side == broker.SideBuy {
			return hist > 0
		}
		return hist < 0
	}

	confirms = match(m5.MACDHistogram) && match(m15.MACDHistogram)
	conflicts = !match(m5.MACDHistogram) && !match(m15.MACDHistogram) &&
		m5.MACDHistogram != 0 && m15.MACDHistogram != 0
	return confirms, conflicts
}

// alignmentAdjustment scores the combined RSI/MACD momentum picture:
// full alignment earns +25 confidence, a MACD conflict on both confirming
// frames costs -20, anything partial is neutral
func (f *MultiTimeframeFilter) alignmentAdjustment(side broker.OrderSide, bundle *market.TimeframeBundle, rsiAligned, rsiChecked int) float64 {
	macdConfirms, macdConflicts := f.macdConfirmation(side, bundle)

	if rsiChecked == 3 && rsiAligned == 3 && macdConfirms {
		return 25
	}
	if macdConflicts {
		return -20
	}
	return 0
}

// structureGate checks proximity to the nearest opposing 15-min structure
// level and returns the stop/target anchors. Buying straight into resistance
// (or selling into support) earns the 0.7x discount.
func (f *MultiTimeframeFilter) structureGate(sig *Signal, m15 *market.FeatureSnapshot) (stopAnchor, targetAnchor float64, near bool) {
	if m15 == nil {
		return 0, 0, false
	}

	entry := sig.Features.Price
	if entry <= 0 {
		return 0, 0, false
	}

	buffer := entry * f.config.StructureBufferPct

	if sig.Side == broker.SideBuy {
		if m15.Resistance > 0 {
			targetAnchor = m15.Resistance
			near = math.Abs(m15.Resistance-entry)/entry <= f.config.StructureProxPct
		}
		if m15.Support > 0 && m15.Support < entry {
			stopAnchor = m15.Support - buffer
		}
	} else {
		if m15.Support > 0 {
			targetAnchor = m15.Support
			near = math.Abs(entry-m15.Support)/entry <= f.config.StructureProxPct
		}
		if m15.Resistance > 0 && m15.Resistance > entry {
			stopAnchor = m15.Resistance + buffer
		}
	}
	return stopAnchor, targetAnchor, near
}

// adxMultiplier discounts size when more than one timeframe is ranging.
// All frames trending above the trending threshold means no reduction.
func (f *MultiTimeframeFilter) adxMultiplier(bundle *market.TimeframeBundle) float64 {
	ranging := 0
	checked := 0
	allTrending := true

	frames := bundle.Intraday()
	if bundle.Daily != nil {
		frames = append(frames, bundle.Daily)
	}
	for _, snap := range frames {
		if !snap.HasADX() {
			continue
		}
		checked++
		if snap.ADX < f.config.RangingADX {
			ranging++
		}
		if snap.ADX <= f.config.TrendingADX {
			allTrending = false
		}
	}

	if checked == 0 || allTrending {
		return 1.0
	}
	if ranging > 1 {
		return 0.6
	}
	return 1.0
}

// evaluateLegacy is the single-timeframe fallback used when the filter is
// bypassed: momentum on the signal's own snapshot gates approval and the
// confidence mapping supplies the multiplier unchanged.
func (f *MultiTimeframeFilter) evaluateLegacy(sig *Signal) FilterResult {
	mult := ConfidenceSizeMultiplier(sig.Confidence)
	if mult == 0 {
		return FilterResult{
			Approved:   false,
			Confidence: sig.Confidence,
			Reason:     fmt.Sprintf("confidence %.1f below tradable floor", sig.Confidence),
		}
	}

	snap := sig.Features
	if snap != nil && snap.HasRSI() {
		if sig.Side == broker.SideBuy && snap.RSI < 50 {
			return FilterResult{Approved: false, Confidence: sig.Confidence, Reason: "RSI does not confirm buy"}
		}
		if sig.Side == broker.SideSell && snap.RSI > 50 {
			return FilterResult{Approved: false, Confidence: sig.Confidence, Reason: "RSI does not confirm sell"}
		}
	}

	return FilterResult{Approved: true, Confidence: sig.Confidence, SizeMultiplier: mult}
}
