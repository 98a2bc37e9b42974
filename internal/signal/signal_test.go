package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
)

func bullishSnapshot(symbol string) *market.FeatureSnapshot {
	return &market.FeatureSnapshot{
		Symbol:        symbol,
		Timeframe:     market.Timeframe5Min,
		Price:         102,
		EMA9:          101,
		EMA21:         100,
		EMA50:         99,
		RSI:           60,
		MACDHistogram: 0.5,
		VolumeRatio:   1.5,
	}
}

// TestConfidenceSizeMultiplier_Bands verifies the confidence-to-size mapping:
// below 60 rejects, 60-70 trades at 0.7x, 70-80 at full size, above 80 at 1.5x.
func TestConfidenceSizeMultiplier_Bands(t *testing.T) {
	assert.Equal(t, 0.0, ConfidenceSizeMultiplier(59.9))
	assert.Equal(t, 0.7, ConfidenceSizeMultiplier(60))
	assert.Equal(t, 0.7, ConfidenceSizeMultiplier(69.9))
	assert.Equal(t, 1.0, ConfidenceSizeMultiplier(70))
	assert.Equal(t, 1.0, ConfidenceSizeMultiplier(80))
	assert.Equal(t, 1.5, ConfidenceSizeMultiplier(80.1))
	assert.Equal(t, 1.5, ConfidenceSizeMultiplier(100))
}

// TestGenerate_BullishConsensus feeds a snapshot where every indicator votes
// buy and expects a top-band buy candidate.
func TestGenerate_BullishConsensus(t *testing.T) {
	gen := NewGenerator(3)
	now := time.Now()

	sig := gen.Generate(bullishSnapshot("AAPL"), now)

	assert.NotNil(t, sig)
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, broker.SideBuy, sig.Side)
	assert.Equal(t, 100.0, sig.Confidence)
	assert.Equal(t, now, sig.Timestamp)
}

// TestGenerate_BearishConsensus mirrors the bullish case on the sell side
func TestGenerate_BearishConsensus(t *testing.T) {
	gen := NewGenerator(3)

	sig := gen.Generate(&market.FeatureSnapshot{
		Symbol:        "AAPL",
		Price:         98,
		EMA9:          99,
		EMA21:         100,
		EMA50:         101,
		RSI:           40,
		MACDHistogram: -0.5,
		VolumeRatio:   1.5,
	}, time.Now())

	assert.NotNil(t, sig)
	assert.Equal(t, broker.SideSell, sig.Side)
	assert.Equal(t, 100.0, sig.Confidence)
}

// TestGenerate_PartialConsensus checks that a dissenting vote lowers the
// confidence without blocking the candidate: 4 of 5 buy votes maps to 90.
func TestGenerate_PartialConsensus(t *testing.T) {
	gen := NewGenerator(3)

	snap := bullishSnapshot("MSFT")
	snap.MACDHistogram = -0.1 // one dissenting vote

	sig := gen.Generate(snap, time.Now())

	assert.NotNil(t, sig)
	assert.Equal(t, broker.SideBuy, sig.Side)
	assert.InDelta(t, 90.0, sig.Confidence, 0.001)
}

// TestGenerate_SplitVoteNoSignal verifies that an even indicator split emits
// no candidate at all.
func TestGenerate_SplitVoteNoSignal(t *testing.T) {
	gen := NewGenerator(3)

	sig := gen.Generate(&market.FeatureSnapshot{
		Symbol:        "AAPL",
		Price:         98, // below EMA50: sell
		EMA9:          101,
		EMA21:         100, // fast cross: buy
		EMA50:         99,
		RSI:           45,  // sell
		MACDHistogram: 0.5, // buy
		VolumeRatio:   1.0, // no participation vote
	}, time.Now())

	assert.Nil(t, sig)
}

// TestGenerate_MissingSnapshot verifies nil and priceless snapshots are ignored
func TestGenerate_MissingSnapshot(t *testing.T) {
	gen := NewGenerator(3)

	assert.Nil(t, gen.Generate(nil, time.Now()))
	assert.Nil(t, gen.Generate(&market.FeatureSnapshot{Symbol: "AAPL"}, time.Now()))
}

func testBundle(rsi1, rsi5, rsi15 float64) *market.TimeframeBundle {
	return &market.TimeframeBundle{
		Symbol: "AAPL",
		M1:     &market.FeatureSnapshot{Symbol: "AAPL", Timeframe: market.Timeframe1Min, Price: 100, RSI: rsi1},
		M5:     &market.FeatureSnapshot{Symbol: "AAPL", Timeframe: market.Timeframe5Min, Price: 100, RSI: rsi5},
		M15:    &market.FeatureSnapshot{Symbol: "AAPL", Timeframe: market.Timeframe15Min, Price: 100, RSI: rsi15, EMA50: 100, EMA200: 100},
	}
}

func buySignal(confidence float64) *Signal {
	return &Signal{
		Symbol:     "AAPL",
		Side:       broker.SideBuy,
		Confidence: confidence,
		Features:   &market.FeatureSnapshot{Symbol: "AAPL", Price: 100, RSI: 60},
		Timestamp:  time.Now(),
	}
}

// TestEvaluate_BiasGateRejectsCounterTrend verifies that a sell signal is
// rejected when the 15-min EMA50 sits clearly above EMA200.
func TestEvaluate_BiasGateRejectsCounterTrend(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(40, 45, 40)
	bundle.M15.EMA50 = 101
	bundle.M15.EMA200 = 100

	sig := buySignal(80)
	sig.Side = broker.SideSell

	res := filter.Evaluate(sig, bundle)

	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "bullish")
}

// TestEvaluate_RSIAlignmentRejection verifies that fewer than 2 of 3 aligned
// intraday RSI readings rejects the candidate.
func TestEvaluate_RSIAlignmentRejection(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	res := filter.Evaluate(buySignal(80), testBundle(40, 45, 60))

	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "RSI aligned on only 1 of 3")
}

// TestEvaluate_FullAlignmentBoost verifies the +25 confidence boost when all
// intraday RSIs and the MACD histogram confirm the side, pushing a 70
// candidate into the 1.5x overweight band.
func TestEvaluate_FullAlignmentBoost(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(60, 62, 58)
	bundle.M5.MACDHistogram = 0.2
	bundle.M15.MACDHistogram = 0.3
	bundle.M15.Support = 95
	bundle.M15.Resistance = 110

	res := filter.Evaluate(buySignal(70), bundle)

	assert.True(t, res.Approved)
	assert.InDelta(t, 95.0, res.Confidence, 0.001)
	assert.InDelta(t, 1.5, res.SizeMultiplier, 0.001)
	assert.InDelta(t, 94.9, res.StopAnchor, 0.001) // support minus 0.1% buffer
	assert.InDelta(t, 110.0, res.TargetAnchor, 0.001)
}

// TestEvaluate_MACDConflictPenalty verifies the -20 confidence penalty when
// the MACD histogram conflicts with the side on both confirming frames.
func TestEvaluate_MACDConflictPenalty(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(60, 62, 58)
	bundle.M5.MACDHistogram = -0.2
	bundle.M15.MACDHistogram = -0.3

	res := filter.Evaluate(buySignal(85), bundle)

	assert.True(t, res.Approved)
	assert.InDelta(t, 65.0, res.Confidence, 0.001)
	assert.InDelta(t, 0.7, res.SizeMultiplier, 0.001)
}

// TestEvaluate_StructureDiscount verifies the 0.7x multiplier when buying
// within 0.3% of 15-min resistance.
func TestEvaluate_StructureDiscount(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(60, 62, 58)
	bundle.M15.Resistance = 100.2

	res := filter.Evaluate(buySignal(75), bundle)

	assert.True(t, res.Approved)
	assert.InDelta(t, 0.7, res.SizeMultiplier, 0.001)
}

// TestEvaluate_RangingADXDiscount verifies the 0.6x multiplier when more
// than one timeframe shows ADX in ranging territory.
func TestEvaluate_RangingADXDiscount(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(60, 62, 58)
	bundle.M1.ADX = 15
	bundle.M5.ADX = 18
	bundle.M15.ADX = 30

	res := filter.Evaluate(buySignal(75), bundle)

	assert.True(t, res.Approved)
	assert.InDelta(t, 0.6, res.SizeMultiplier, 0.001)
}

// TestEvaluate_AllTrendingNoDiscount verifies that strong ADX on every frame
// keeps the full multiplier.
func TestEvaluate_AllTrendingNoDiscount(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(60, 62, 58)
	bundle.M1.ADX = 30
	bundle.M5.ADX = 32
	bundle.M15.ADX = 28

	res := filter.Evaluate(buySignal(75), bundle)

	assert.True(t, res.Approved)
	assert.InDelta(t, 1.0, res.SizeMultiplier, 0.001)
}

// TestEvaluate_LegacyFallback verifies the single-timeframe evaluation used
// when the multi-timeframe filter is disabled: RSI on the signal's own
// snapshot gates approval.
func TestEvaluate_LegacyFallback(t *testing.T) {
	cfg := DefaultMTFConfig()
	cfg.Enabled = false
	filter := NewMultiTimeframeFilter(cfg)

	res := filter.Evaluate(buySignal(75), testBundle(60, 62, 58))
	assert.True(t, res.Approved)
	assert.InDelta(t, 1.0, res.SizeMultiplier, 0.001)

	weak := buySignal(75)
	weak.Features.RSI = 40
	res = filter.Evaluate(weak, testBundle(60, 62, 58))
	assert.False(t, res.Approved)
}

// TestEvaluate_ConfidenceFloorAfterAdjustment verifies that a candidate whose
// adjusted confidence falls below 60 is rejected even if alignment passed.
func TestEvaluate_ConfidenceFloorAfterAdjustment(t *testing.T) {
	filter := NewMultiTimeframeFilter(DefaultMTFConfig())

	bundle := testBundle(60, 62, 58)
	bundle.M5.MACDHistogram = -0.2
	bundle.M15.MACDHistogram = -0.3

	res := filter.Evaluate(buySignal(70), bundle)

	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "below tradable floor")
}
