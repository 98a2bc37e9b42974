package backtest

import (
	"fmt"
	"math"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/position"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/risk"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/signal"
	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// Config holds the replay parameters. The replay runs the same consensus
// signal, stop floor and R-multiple bracket rules as the live decision core,
// under a neutral regime: historical sentiment is not reconstructed.
type Config struct {
	StartingEquity      float64 `json:"starting_equity"`
	CommissionPct       float64 `json:"commission_pct"`        // Per-side commission as a fraction of notional
	WindowSize          int     `json:"window_size"`           // Bars of history before the first evaluation
	MinVotes            int     `json:"min_votes"`             // Indicator consensus threshold
	MinConfidence       float64 `json:"min_confidence"`        // Raw confidence floor for entries
	PartialExitPct      float64 `json:"partial_exit_pct"`      // Fraction exited at the first profit milestone
	ProfitTargetR       float64 `json:"profit_target_r"`       // First milestone in R multiples
	TrailingStopR       float64 `json:"trailing_stop_r"`       // Trailing distance in R multiples
	TrailingActivationR float64 `json:"trailing_activation_r"` // Favorable excursion that starts the trail

	Risk risk.Config `json:"risk"`
}

// DefaultConfig returns replay parameters matching the live defaults
func DefaultConfig() Config {
	return Config{
		StartingEquity:      100000,
		CommissionPct:       0.0002,
		WindowSize:          60,
		MinVotes:            3,
		MinConfidence:       60,
		PartialExitPct:      0.5,
		ProfitTargetR:       2.0,
		TrailingStopR:       1.5,
		TrailingActivationR: 1.5,
		Risk:                risk.DefaultConfig(),
	}
}

// Results holds the outcome of one replay run
type Results struct {
	Symbol      string
	StartEquity float64
	EndEquity   float64
	TotalReturn float64 // Fraction of starting equity
	MaxDrawdown float64 // Peak-to-trough fraction
	Trades      []position.ClosedTrade
	EquityCurve []float64
}

// Backtester replays candle history through the entry and bracket rules
type Backtester struct {
	config  Config
	builder *market.FeatureBuilder
	gen     *signal.Generator
	risk    *risk.Manager
}

// New creates a backtester for the given parameters
func New(config Config) *Backtester {
	if config.WindowSize <= 0 {
		config = DefaultConfig()
	}
	return &Backtester{
		config:  config,
		builder: market.NewFeatureBuilder(nil),
		gen:     signal.NewGenerator(config.MinVotes),
		risk:    risk.NewManager(config.Risk),
	}
}

// replayPosition is the in-flight bracket state during a run
type replayPosition struct {
	symbol       string
	side         broker.OrderSide
	entryPrice   float64
	stopPrice    float64
	targetPrice  float64
	riskPerShare float64
	origQty      int
	remainingQty int
	partialTaken bool
	partials     int
	extremePrice float64
	realizedPnL  float64 // Net of commissions, partial exits included
	openedAt     types.OHLCV
}

// Run replays the candle series for one symbol and returns the results.
// Candles must be a single timeframe in chronological order.
func (b *Backtester) Run(symbol string, candles []types.OHLCV) (*Results, error) {
	if len(candles) <= b.config.WindowSize {
		return nil, fmt.Errorf("need more than %d candles, got %d", b.config.WindowSize, len(candles))
	}

	results := &Results{
		Symbol:      symbol,
		StartEquity: b.config.StartingEquity,
		EquityCurve: make([]float64, 0, len(candles)-b.config.WindowSize),
	}

	equity := b.config.StartingEquity
	maxEquity := equity
	var pos *replayPosition

	for i := b.config.WindowSize; i < len(candles); i++ {
		candle := candles[i]
		window := candles[i-b.config.WindowSize : i+1]

		snap, err := b.builder.SnapshotFromCandles(symbol, market.Timeframe5Min, window)
		if err != nil {
			return nil, fmt.Errorf("failed to compute features at bar %d: %w", i, err)
		}

		if pos != nil {
			if trade, closed := b.manageBracket(pos, candle, snap.ATR); closed {
				equity += trade.PnL
				results.Trades = append(results.Trades, trade)
				pos = nil
			}
		} else {
			pos = b.tryEnter(snap, candle, equity)
		}

		mark := equity
		if pos != nil {
			mark += pos.unrealized(candle.Close)
		}
		if mark > maxEquity {
			maxEquity = mark
		}
		if dd := (maxEquity - mark) / maxEquity; dd > results.MaxDrawdown {
			results.MaxDrawdown = dd
		}
		results.EquityCurve = append(results.EquityCurve, mark)
	}

	// Whatever is still open flattens at the last close
	if pos != nil {
		last := candles[len(candles)-1]
		trade := b.closeRemaining(pos, last, last.Close, position.ReasonEODFlatten)
		equity += trade.PnL
		results.Trades = append(results.Trades, trade)
	}

	results.EndEquity = equity
	results.TotalReturn = (equity - results.StartEquity) / results.StartEquity
	return results, nil
}

// tryEnter evaluates the consensus signal on the bar and opens a bracket at
// the bar close when it clears the confidence floor and the risk limits
func (b *Backtester) tryEnter(snap *market.FeatureSnapshot, candle types.OHLCV, equity float64) *replayPosition {
	sig := b.gen.Generate(snap, candle.Timestamp)
	if sig == nil || sig.Confidence < b.config.MinConfidence {
		return nil
	}

	entry := candle.Close
	stop := b.risk.CalculateStopPrice(entry, sig.Side, snap.ATR)
	shares := b.risk.MaxPositionSize(entry, stop, equity, risk.OrderCheck{
		Side:            sig.Side,
		VolatilityIndex: -1,
	})
	if shares < 1 {
		return nil
	}

	riskPerShare := math.Abs(entry - stop)
	targetDistance := b.config.ProfitTargetR * riskPerShare
	target := entry + targetDistance
	if sig.Side == broker.SideSell {
		target = entry - targetDistance
	}

	return &replayPosition{
		symbol:       snap.Symbol,
		side:         sig.Side,
		entryPrice:   entry,
		stopPrice:    stop,
		targetPrice:  target,
		riskPerShare: riskPerShare,
		origQty:      shares,
		remainingQty: shares,
		extremePrice: entry,
		realizedPnL:  -b.commission(entry, shares),
		openedAt:     candle,
	}
}

// manageBracket advances one open bracket through a bar: stop first, then
// the partial milestone, then the trail. Checking the stop before the target
// on a bar that spans both keeps the replay conservative.
func (b *Backtester) manageBracket(pos *replayPosition, candle types.OHLCV, atr float64) (position.ClosedTrade, bool) {
	dir := 1.0
	if pos.side == broker.SideSell {
		dir = -1.0
	}

	// Stop hit, gaps fill at the open
	stopHit := (pos.side == broker.SideBuy && candle.Low <= pos.stopPrice) ||
		(pos.side == broker.SideSell && candle.High >= pos.stopPrice)
	if stopHit {
		fill := pos.stopPrice
		if dir*(candle.Open-pos.stopPrice) < 0 {
			fill = candle.Open
		}
		reason := position.ReasonStopLoss
		if pos.partialTaken {
			reason = position.ReasonTrailingStop
		}
		return b.closeRemaining(pos, candle, fill, reason), true
	}

	// First profit milestone: scale out and protect the remainder
	if !pos.partialTaken {
		touched := (pos.side == broker.SideBuy && candle.High >= pos.targetPrice) ||
			(pos.side == broker.SideSell && candle.Low <= pos.targetPrice)
		if touched {
			exitQty := int(math.Floor(float64(pos.origQty) * b.config.PartialExitPct))
			if exitQty >= pos.remainingQty {
				exitQty = pos.remainingQty
			}
			if exitQty > 0 {
				pos.realizedPnL += dir*(pos.targetPrice-pos.entryPrice)*float64(exitQty) - b.commission(pos.targetPrice, exitQty)
				pos.remainingQty -= exitQty
				pos.partials++
			}
			pos.partialTaken = true
			pos.stopPrice = pos.entryPrice
			if pos.remainingQty == 0 {
				return b.closeTrade(pos, candle, position.ReasonTakeProfit), true
			}
		}
	}

	// Trail off the favorable extreme once the activation excursion is in
	if pos.side == broker.SideBuy && candle.High > pos.extremePrice {
		pos.extremePrice = candle.High
	}
	if pos.side == broker.SideSell && candle.Low < pos.extremePrice {
		pos.extremePrice = candle.Low
	}
	excursionR := dir * (pos.extremePrice - pos.entryPrice) / pos.riskPerShare
	if excursionR >= b.config.TrailingActivationR {
		base := pos.riskPerShare
		if atr > 0 && atr < base {
			base = atr
		}
		candidate := pos.extremePrice - dir*b.config.TrailingStopR*base
		if dir*(candidate-pos.stopPrice) > 0 {
			pos.stopPrice = candidate
		}
	}

	return position.ClosedTrade{}, false
}

// closeRemaining exits the rest of the bracket at the given fill price
func (b *Backtester) closeRemaining(pos *replayPosition, candle types.OHLCV, fill float64, reason position.CloseReason) position.ClosedTrade {
	dir := 1.0
	if pos.side == broker.SideSell {
		dir = -1.0
	}
	pos.realizedPnL += dir*(fill-pos.entryPrice)*float64(pos.remainingQty) - b.commission(fill, pos.remainingQty)
	pos.remainingQty = 0
	trade := b.closeTrade(pos, candle, reason)
	trade.ExitPrice = fill
	return trade
}

// closeTrade assembles the trade record once nothing remains open
func (b *Backtester) closeTrade(pos *replayPosition, candle types.OHLCV, reason position.CloseReason) position.ClosedTrade {
	rMultiple := 0.0
	if pos.riskPerShare > 0 && pos.origQty > 0 {
		rMultiple = pos.realizedPnL / (pos.riskPerShare * float64(pos.origQty))
	}
	return position.ClosedTrade{
		Symbol:     pos.symbol,
		Side:       pos.side,
		EntryPrice: pos.entryPrice,
		ExitPrice:  pos.targetPrice,
		Quantity:   pos.origQty,
		RMultiple:  rMultiple,
		PnL:        pos.realizedPnL,
		Reason:     reason,
		Partials:   pos.partials,
		OpenedAt:   pos.openedAt.Timestamp,
		ClosedAt:   candle.Timestamp,
	}
}

// unrealized marks the open remainder to a price
func (p *replayPosition) unrealized(price float64) float64 {
	dir := 1.0
	if p.side == broker.SideSell {
		dir = -1.0
	}
	return p.realizedPnL + dir*(price-p.entryPrice)*float64(p.remainingQty)
}

// commission is the per-fill cost
func (b *Backtester) commission(price float64, qty int) float64 {
	return price * float64(qty) * b.config.CommissionPct
}
