package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/indicators"
	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// FeatureBuilder turns raw candle history into feature snapshots. It computes
// every indicator the decision core consumes; a failed indicator leaves its
// field zero and consumers degrade to neutral behavior.
type FeatureBuilder struct {
	provider Provider

	ema9   *indicators.EMA
	ema21  *indicators.EMA
	ema50  *indicators.EMA
	ema200 *indicators.EMA
	rsi    *indicators.RSI
	macd   *indicators.MACD
	adx    *indicators.ADX
	atr    *indicators.ATR

	volumeLookback int
	levelLookback  int
	candleLimit    int
}

// NewFeatureBuilder creates a builder with standard indicator periods
func NewFeatureBuilder(provider Provider) *FeatureBuilder {
	return &FeatureBuilder{
		provider:       provider,
		ema9:           indicators.NewEMA(9),
		ema21:          indicators.NewEMA(21),
		ema50:          indicators.NewEMA(50),
		ema200:         indicators.NewEMA(200),
		rsi:            indicators.NewRSI(14),
		macd:           indicators.NewMACD(12, 26, 9),
		adx:            indicators.NewADX(14),
		atr:            indicators.NewATR(14),
		volumeLookback: 20,
		levelLookback:  60,
		candleLimit:    400,
	}
}

// BuildBundle fetches candles for every intraday timeframe plus the daily
// context and assembles the snapshot bundle for one symbol
func (b *FeatureBuilder) BuildBundle(ctx context.Context, symbol string) (*TimeframeBundle, error) {
	daily, err := b.buildSnapshot(ctx, symbol, TimeframeDaily)
	if err != nil {
		// Daily context is advisory; intraday snapshots still work without it
		daily = nil
	}

	var dailyEMA200 float64
	trend := TrendNeutral
	if daily != nil {
		dailyEMA200 = daily.EMA200
		trend = classifyTrend(daily.Price, daily.EMA200)
	}

	bundle := &TimeframeBundle{Symbol: symbol, Daily: daily}
	for _, tf := range []Timeframe{Timeframe1Min, Timeframe5Min, Timeframe15Min} {
		snap, err := b.buildSnapshot(ctx, symbol, tf)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s features for %s: %w", tf, symbol, err)
		}
		snap.DailyEMA200 = dailyEMA200
		snap.Trend = trend

		switch tf {
		case Timeframe1Min:
			bundle.M1 = snap
		case Timeframe5Min:
			bundle.M5 = snap
		case Timeframe15Min:
			bundle.M15 = snap
		}
	}
	return bundle, nil
}

// buildSnapshot fetches candle history and computes one timeframe's snapshot
func (b *FeatureBuilder) buildSnapshot(ctx context.Context, symbol string, tf Timeframe) (*FeatureSnapshot, error) {
	candles, err := b.provider.GetCandles(ctx, symbol, tf, b.candleLimit)
	if err != nil {
		return nil, err
	}
	return b.SnapshotFromCandles(symbol, tf, candles)
}

// SnapshotFromCandles computes a snapshot from candle history already in
// hand. Replay runs feed rolling windows through here directly, without a
// provider round trip.
func (b *FeatureBuilder) SnapshotFromCandles(symbol string, tf Timeframe, candles []types.OHLCV) (*FeatureSnapshot, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s %s", symbol, tf)
	}

	last := candles[len(candles)-1]
	snap := &FeatureSnapshot{
		Symbol:    symbol,
		Timeframe: tf,
		Timestamp: last.Timestamp,
		Price:     last.Close,
	}

	// Optional indicators leave their zero value on insufficient history
	snap.EMA9, _ = b.ema9.Calculate(candles)
	snap.EMA21, _ = b.ema21.Calculate(candles)
	snap.EMA50, _ = b.ema50.Calculate(candles)
	snap.EMA200, _ = b.ema200.Calculate(candles)
	snap.RSI, _ = b.rsi.Calculate(candles)
	_, _, snap.MACDHistogram, _ = b.macd.Calculate(candles)
	snap.ADX, _ = b.adx.Calculate(candles)
	snap.ATR, _ = b.atr.Calculate(candles)
	snap.VolumeRatio, _ = indicators.VolumeRatio(candles, b.volumeLookback)
	snap.Support, snap.Resistance = indicators.SwingLevels(candles, b.levelLookback)

	return snap, nil
}

// classifyTrend compares price to the daily EMA200 with a small deadband
func classifyTrend(price, ema200 float64) TrendDirection {
	if price <= 0 || ema200 <= 0 {
		return TrendNeutral
	}
	distance := (price - ema200) / ema200
	switch {
	case distance > 0.001:
		return TrendBullish
	case distance < -0.001:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// TrendStrength derives a 0-1 measure of how stretched price is from the
// daily EMA200; 2% distance saturates
func TrendStrength(price, dailyEMA200 float64) float64 {
	if price <= 0 || dailyEMA200 <= 0 {
		return 0.5
	}
	strength := math.Abs(price-dailyEMA200) / dailyEMA200 / 0.02
	if strength > 1 {
		strength = 1
	}
	return strength
}

// StaleAfter reports whether a snapshot is older than the given age
func StaleAfter(snap *FeatureSnapshot, maxAge time.Duration, now time.Time) bool {
	return snap == nil || now.Sub(snap.Timestamp) > maxAge
}
