package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/config"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/cooldown"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/execution"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/position"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/risk"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/signal"
	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// acceleratingProvider serves an accelerating uptrend on every timeframe so
// the trend, momentum and MACD readings all confirm a long entry.
type acceleratingProvider struct {
	bars     int
	lastTime time.Time
}

func (p *acceleratingProvider) GetCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]types.OHLCV, error) {
	out := make([]types.OHLCV, p.bars)
	for i := range out {
		base := 100 + 0.0005*float64(i*i)
		out[i] = types.OHLCV{
			Open:      base,
			High:      base + 0.5,
			Low:       base - 0.5,
			Close:     base + 0.25,
			Volume:    1000,
			Timestamp: p.lastTime.Add(time.Duration(i-p.bars) * time.Minute),
		}
	}
	return out, nil
}

// lastClose is the final close of the synthetic series, which the paper
// broker quotes so entries fill at the signal price
func (p *acceleratingProvider) lastClose() float64 {
	i := float64(p.bars - 1)
	return 100 + 0.0005*i*i + 0.25
}

func testEngineConfig() *config.TraderConfig {
	exec := execution.DefaultConfig()
	exec.RegularHoursBufferPct = 0.002
	exec.ExtendedHoursBufferPct = 0.002
	exec.FillTimeout = 2 * time.Second
	exec.PollInterval = 20 * time.Millisecond

	posCfg := position.DefaultConfig()
	posCfg.EODFlattenTime = "" // keep the tests independent of wall-clock time

	return &config.TraderConfig{
		Account:        "test",
		Symbols:        []string{"AAPL"},
		Engine:         config.EngineConfig{SnapshotMaxAge: time.Hour, RegimeRefresh: time.Hour},
		Risk:           risk.DefaultConfig(),
		Signal:         signal.DefaultMTFConfig(),
		Cooldown:       cooldown.DefaultConfig(),
		Execution:      exec,
		Position:       posCfg,
		AdvisorTimeout: 100 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, pb *broker.PaperBroker, provider market.Provider) *TradingEngine {
	t.Helper()
	e, err := New(testEngineConfig(), Deps{Broker: pb, Provider: provider})
	assert.NoError(t, err)
	return e
}

// TestNew_RequiresBrokerAndProvider tests constructor dependency validation
func TestNew_RequiresBrokerAndProvider(t *testing.T) {
	_, err := New(testEngineConfig(), Deps{})
	assert.Error(t, err)

	_, err = New(testEngineConfig(), Deps{Broker: broker.NewPaperBroker(100000)})
	assert.Error(t, err)
}

// TestEntryPipeline_OpensProtectedPositionAndClosesOnStop walks one symbol
// through the full decision core: feature refresh, consensus signal,
// multi-timeframe confirmation, risk sizing, execution, protective stop,
// then a stop-out feeding the journal and the loss cooldown.
func TestEntryPipeline_OpensProtectedPositionAndClosesOnStop(t *testing.T) {
	ctx := context.Background()
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	pb.SetQuote("AAPL", provider.lastClose())
	e := newTestEngine(t, pb, provider)

	e.refreshFeatures(ctx)
	e.evaluateSignals(ctx)

	pos, ok := e.positions.Get("AAPL")
	assert.True(t, ok, "expected an open position after evaluation")
	assert.Equal(t, 1, e.positions.Count())
	assert.Equal(t, broker.SideBuy, pos.Side)
	assert.NotEmpty(t, pos.StopOrderID, "protective stop should be armed")

	// Sizing is pinned by the buying-power cap, not the risk budget: the 1%
	// risk budget over the 1.5% stop floor would exceed the account
	fill := provider.lastClose()
	affordable := int(math.Floor(100000 / fill))
	assert.Equal(t, affordable, pos.OriginalQuantity)
	assert.InDelta(t, fill, pos.EntryPrice, 1e-9)
	assert.LessOrEqual(t, float64(pos.OriginalQuantity)*pos.EntryPrice, 100000.0)

	// Stop at the 1.5% floor (wider than 2x ATR here), target at the
	// momentum-shifted regime R multiple
	riskPerShare := fill * 0.015
	assert.InDelta(t, fill-riskPerShare, pos.StopPrice, 1e-6)
	momentum := (1.0 + 0.5 + 1.0) / 3.0 // ADX and trend saturated, volume ratio 1.0
	assert.InDelta(t, fill+(2.0+momentum-0.5)*riskPerShare, pos.TargetPrice, 1e-6)

	// A second evaluation pass must not stack a second position
	e.evaluateSignals(ctx)
	assert.Equal(t, 1, e.positions.Count())

	// Price gaps through the stop: the monitor flattens the position and the
	// loss flows into the journal, the cooldown and the daily P/L
	crash := pos.StopPrice - 1
	pb.SetQuote("AAPL", crash)
	e.cache.Put(&market.FeatureSnapshot{Symbol: "AAPL", Price: crash, Timestamp: time.Now()})
	e.monitorPositions(ctx)

	assert.Equal(t, 0, e.positions.Count())
	stats := e.Journal().Stats()
	assert.Equal(t, 1, stats.Trades)
	assert.Less(t, stats.TotalPnL, 0.0)
	assert.Equal(t, 1, e.cooldown.ConsecutiveLosses("AAPL"))
	assert.Less(t, e.risk.DailyPnL(), 0.0)
}

// TestEvaluateSignals_EntryGates tests that the pause switch and the daily
// loss breaker both block new entries without touching open positions
func TestEvaluateSignals_EntryGates(t *testing.T) {
	ctx := context.Background()
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	pb.SetQuote("AAPL", provider.lastClose())
	e := newTestEngine(t, pb, provider)
	e.refreshFeatures(ctx)

	e.SetEnabled(false)
	e.evaluateSignals(ctx)
	assert.Equal(t, 0, e.positions.Count())
	e.SetEnabled(true)

	e.risk.StartSession(100000, time.Now())
	e.risk.UpdateDailyPnL(-3001) // breaches the 3% daily loss limit
	e.evaluateSignals(ctx)
	assert.Equal(t, 0, e.positions.Count())

	// A fresh session resets the breaker and the entry goes through
	e.risk.StartSession(100000, time.Now())
	e.evaluateSignals(ctx)
	assert.Equal(t, 1, e.positions.Count())
}

// TestRefreshFeatures_TripsBreakerOnUnrealizedDrawdown tests that the daily
// loss breaker trips on open-position drawdown before any trade closes
func TestRefreshFeatures_TripsBreakerOnUnrealizedDrawdown(t *testing.T) {
	ctx := context.Background()
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	pb.SetQuote("AAPL", 100)
	e := newTestEngine(t, pb, provider)
	e.risk.StartSession(100000, time.Now())

	_, err := pb.SubmitOrder(ctx, broker.OrderParams{
		Symbol:    "AAPL",
		Side:      broker.SideBuy,
		OrderType: broker.OrderTypeMarket,
		Quantity:  500,
	})
	assert.NoError(t, err)

	// Mark the open position down 20%: $10,000 unrealized against a 3% limit
	pb.SetQuote("AAPL", 80)
	e.refreshFeatures(ctx)

	assert.True(t, e.risk.IsDailyLossLimitReached())
	assert.InDelta(t, -10000, e.risk.DailyPnL(), 1e-6)
	assert.Equal(t, 0, e.Journal().Stats().Trades, "nothing realized yet")

	// New entries stay blocked while the drawdown is still open
	e.evaluateSignals(ctx)
	assert.Equal(t, 0, e.positions.Count())
}

// structureBundle builds a bundle whose indicator votes all confirm a long
// at $100, with 15-min support at $99.20 and resistance where the test wants
// the target pinned
func structureBundle(resistance float64, now time.Time) *market.TimeframeBundle {
	m5 := &market.FeatureSnapshot{
		Symbol:    "AAPL",
		Timeframe: market.Timeframe5Min,
		Timestamp: now,
		Price:     100,
		EMA9:      101, EMA21: 100.5, EMA50: 99,
		RSI: 60, MACDHistogram: 0.5, ADX: 30,
		ATR: 0.4, VolumeRatio: 1.0,
		DailyEMA200: 90,
	}
	m15 := &market.FeatureSnapshot{
		Symbol:    "AAPL",
		Timeframe: market.Timeframe15Min,
		Timestamp: now,
		Price:     100,
		EMA50:     100, EMA200: 99,
		RSI: 60, MACDHistogram: 0.5, ADX: 30,
		Support: 99.2, Resistance: resistance,
	}
	return &market.TimeframeBundle{Symbol: "AAPL", M5: m5, M15: m15}
}

// TestEvaluateSymbol_AnchorsBracketToStructure tests that 15-min support
// tightens the ATR stop and resistance caps the profit target
func TestEvaluateSymbol_AnchorsBracketToStructure(t *testing.T) {
	ctx := context.Background()
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	pb.SetQuote("AAPL", 100)
	e := newTestEngine(t, pb, provider)

	e.cache.PutBundle(structureBundle(101.9, time.Now()))
	e.evaluateSignals(ctx)

	pos, ok := e.positions.Get("AAPL")
	assert.True(t, ok, "expected an open position")

	// Stop lifts from the 1.5% ATR floor ($98.50) to support minus the 0.1%
	// buffer; the 2.2R momentum target ($101.98) is capped at resistance
	assert.InDelta(t, 99.2-100*0.001, pos.StopPrice, 1e-6)
	assert.InDelta(t, 101.9, pos.TargetPrice, 1e-6)
	assert.InDelta(t, 100-pos.StopPrice, pos.InitialRiskPerShare, 1e-6)
}

// TestEvaluateSymbol_RejectsTargetCappedBelowMinimum tests that an opposing
// level squeezing the reward under the minimum R:R blocks the entry
func TestEvaluateSymbol_RejectsTargetCappedBelowMinimum(t *testing.T) {
	ctx := context.Background()
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	pb.SetQuote("AAPL", 100)
	e := newTestEngine(t, pb, provider)

	// Resistance one dollar up is only ~1.1R against the anchored $0.90 stop
	e.cache.PutBundle(structureBundle(101.0, time.Now()))
	e.evaluateSignals(ctx)
	assert.Equal(t, 0, e.positions.Count())
}

// TestOnTradeClosed_CooldownCountsOnlyStopLosses tests that losing EOD
// flattens leave the loss streak alone while stop-family exits feed it
func TestOnTradeClosed_CooldownCountsOnlyStopLosses(t *testing.T) {
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	e := newTestEngine(t, pb, provider)
	now := time.Now()

	record := func(pnl float64, reason position.CloseReason) {
		e.onTradeClosed(position.ClosedTrade{
			Symbol:   "AAPL",
			Side:     broker.SideBuy,
			PnL:      pnl,
			Reason:   reason,
			OpenedAt: now,
			ClosedAt: now,
		})
	}

	record(-120, position.ReasonEODFlatten)
	assert.Equal(t, 0, e.cooldown.ConsecutiveLosses("AAPL"))

	record(-80, position.ReasonStopLoss)
	assert.Equal(t, 1, e.cooldown.ConsecutiveLosses("AAPL"))

	record(-50, position.ReasonTrailingStop)
	assert.Equal(t, 2, e.cooldown.ConsecutiveLosses("AAPL"))

	// Any non-losing close clears the streak
	record(200, position.ReasonTakeProfit)
	assert.Equal(t, 0, e.cooldown.ConsecutiveLosses("AAPL"))
}

// TestReconcilePositions_AdoptsUnprotectedPosition tests that a position
// found at the broker on startup gets registered with a computed stop
func TestReconcilePositions_AdoptsUnprotectedPosition(t *testing.T) {
	ctx := context.Background()
	provider := &acceleratingProvider{bars: 400, lastTime: time.Now()}
	pb := broker.NewPaperBroker(100000)
	pb.SetQuote("AAPL", provider.lastClose())

	// A position that predates the engine, with no stop anywhere
	_, err := pb.SubmitOrder(ctx, broker.OrderParams{
		Symbol:    "AAPL",
		Side:      broker.SideBuy,
		OrderType: broker.OrderTypeMarket,
		Quantity:  100,
	})
	assert.NoError(t, err)

	e := newTestEngine(t, pb, provider)
	e.refreshFeatures(ctx)
	assert.NoError(t, e.reconcilePositions(ctx))

	pos, ok := e.positions.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 100, pos.OriginalQuantity)
	assert.Greater(t, pos.StopPrice, 0.0)
	assert.Less(t, pos.StopPrice, pos.EntryPrice)
	assert.NotEmpty(t, pos.StopOrderID)

	// Re-running reconciliation must not duplicate the adoption
	assert.NoError(t, e.reconcilePositions(ctx))
	assert.Equal(t, 1, e.positions.Count())
}
