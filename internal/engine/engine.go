package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/advisor"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/config"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/cooldown"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/errors"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/execution"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/journal"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/logger"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/monitoring"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/notifications"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/position"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/regime"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/risk"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/signal"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/store"
)

// minimum confidence before cooldown penalties raise the floor
const baseConfidenceFloor = 60.0

// ContextSource supplies the broad market context (sentiment, volatility
// index). It is optional: with no source the engine runs with neutral
// regime behavior.
type ContextSource interface {
	GetMarketContext(ctx context.Context) (*market.MarketContext, error)
}

// Deps holds the external collaborators the engine does not build itself
type Deps struct {
	Broker        broker.Broker
	Provider      market.Provider
	ContextSource ContextSource          // optional
	Advisor       advisor.Advisor        // optional
	Notifier      notifications.Notifier // optional
	Store         store.Store            // optional, defaults to NopStore
	Logger        *logger.Logger
}

// TradingEngine owns the three loops of the decision core: feature refresh,
// signal evaluation and position monitoring. It is the sole writer of
// trading state; all other components are consulted, never mutated
// concurrently.
type TradingEngine struct {
	config *config.TraderConfig
	log    *logger.Logger

	broker    broker.Broker
	builder   *market.FeatureBuilder
	cache     *market.SnapshotCache
	ctxSource ContextSource

	regime    *regime.Manager
	cooldown  *cooldown.Manager
	risk      *risk.Manager
	generator *signal.Generator
	mtf       *signal.MultiTimeframeFilter
	advisor   *advisor.FailOpenAdvisor
	executor  *execution.SmartOrderExecutor
	positions *position.Manager

	journal  *journal.Journal
	store    store.Store
	health   *monitoring.HealthChecker
	notifier notifications.Notifier

	mu      sync.Mutex
	enabled bool
	wg      sync.WaitGroup
}

// New assembles the trading engine from configuration and dependencies
func New(cfg *config.TraderConfig, deps Deps) (*TradingEngine, error) {
	if deps.Broker == nil || deps.Provider == nil {
		return nil, errors.NewConfigurationError("engine", "new", "broker and provider are required")
	}
	if deps.Store == nil {
		deps.Store = store.NopStore{}
	}

	executor, err := execution.NewSmartOrderExecutor(cfg.Execution, deps.Broker, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	positions, err := position.NewManager(cfg.Position, deps.Broker, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create position manager: %w", err)
	}

	e := &TradingEngine{
		config:    cfg,
		log:       deps.Logger,
		broker:    deps.Broker,
		builder:   market.NewFeatureBuilder(deps.Provider),
		cache:     market.NewSnapshotCache(cfg.Engine.SnapshotMaxAge),
		ctxSource: deps.ContextSource,
		regime:    regime.NewManager(cfg.Engine.RegimeRefresh),
		cooldown:  cooldown.NewManager(cfg.Cooldown),
		risk:      risk.NewManager(cfg.Risk),
		generator: signal.NewGenerator(3),
		mtf:       signal.NewMultiTimeframeFilter(cfg.Signal),
		advisor:   advisor.NewFailOpen(deps.Advisor, cfg.AdvisorTimeout, deps.Logger),
		executor:  executor,
		positions: positions,
		journal:   journal.New(),
		store:     deps.Store,
		health:    monitoring.NewHealthChecker(),
		notifier:  deps.Notifier,
		enabled:   true,
	}

	positions.SetCloseHandler(e.onTradeClosed)
	return e, nil
}

// Health exposes the health checker for the HTTP surface
func (e *TradingEngine) Health() *monitoring.HealthChecker { return e.health }

// Journal exposes the session journal for the shutdown report
func (e *TradingEngine) Journal() *journal.Journal { return e.journal }

// SetEnabled pauses or resumes new-entry evaluation. Open positions keep
// being managed either way.
func (e *TradingEngine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

func (e *TradingEngine) isEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Run starts the engine and blocks until the context is cancelled
func (e *TradingEngine) Run(ctx context.Context) error {
	if err := e.broker.Connect(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorCategoryNetwork, "engine", "connect")
	}
	e.health.SetBrokerUp(true)

	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCategoryNetwork, "engine", "get_account")
	}
	e.risk.StartSession(account.Equity, time.Now())
	e.log.Status("session started: equity $%.2f, %d symbols, broker %s (paper=%v)",
		account.Equity, len(e.config.Symbols), e.broker.GetName(), e.broker.IsPaper())

	// Warm the caches once so the first evaluation has data
	e.refreshFeatures(ctx)

	if err := e.reconcilePositions(ctx); err != nil {
		e.log.LogError("startup position reconciliation failed", err)
	}

	e.wg.Add(3)
	go e.loop(ctx, "features", e.config.Engine.FeatureInterval, e.refreshFeatures)
	go e.loop(ctx, "evaluation", e.config.Engine.EvaluationInterval, e.evaluateSignals)
	go e.loop(ctx, "monitor", e.config.Engine.MonitorInterval, e.monitorPositions)
	e.wg.Wait()

	e.shutdown()
	return nil
}

// loop runs fn on a fixed cadence until the context is cancelled
func (e *TradingEngine) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			fn(ctx)
			monitoring.ObserveLoopDuration(name, time.Since(start).Seconds())
		}
	}
}

// refreshFeatures rebuilds feature snapshots for every symbol and refreshes
// the market context, the regime parameters and the account gauges
func (e *TradingEngine) refreshFeatures(ctx context.Context) {
	now := time.Now()

	if e.ctxSource != nil {
		if mc, err := e.ctxSource.GetMarketContext(ctx); err != nil {
			// Fail open: stale context degrades to neutral behavior
			e.log.LogWarning("Engine", "market context unavailable: %v", err)
		} else if mc != nil {
			e.cache.PutContext(mc)
			e.regime.Update(mc.SentimentScore, now)
		}
	}

	for _, symbol := range e.config.Symbols {
		bundle, err := e.builder.BuildBundle(ctx, symbol)
		if err != nil {
			e.log.LogWarning("Engine", "feature refresh failed for %s: %v", symbol, err)
			monitoring.RecordError("feature_refresh")
			continue
		}
		e.cache.PutBundle(bundle)
		if bundle.M1 != nil {
			e.cache.Put(bundle.M1)
		}
	}

	if account, err := e.broker.GetAccount(ctx); err == nil {
		// Equity drift from the session start counts unrealized losses on
		// open positions against the daily limit, not just closed trades
		e.risk.MarkToMarket(account.Equity)
		monitoring.UpdateAccount(account.Equity, e.risk.DailyPnL())
		e.health.SetBrokerUp(true)
	} else {
		e.health.SetBrokerUp(false)
	}
	e.health.SetBreakerTripped(e.risk.IsDailyLossLimitReached())
	e.health.MarkFeatureUpdate()
}

// evaluateSignals runs the full entry pipeline for every symbol without an
// open position: generation, cooldown, multi-timeframe confirmation,
// regime-aware sizing, risk approval, advisory review and execution
func (e *TradingEngine) evaluateSignals(ctx context.Context) {
	defer e.health.MarkEvaluation()

	if !e.isEnabled() {
		return
	}
	if e.risk.IsDailyLossLimitReached() {
		e.log.LogDebugOnly("evaluation skipped: daily loss breaker tripped")
		return
	}

	for _, symbol := range e.config.Symbols {
		if _, open := e.positions.Get(symbol); open {
			continue
		}
		if err := e.evaluateSymbol(ctx, symbol); err != nil {
			e.log.LogError("evaluation failed for "+symbol, err)
			monitoring.RecordError(string(errors.Categorize(err, "engine", "evaluate").Category))
		}
	}
}

// evaluateSymbol runs the entry pipeline for one symbol
func (e *TradingEngine) evaluateSymbol(ctx context.Context, symbol string) error {
	now := time.Now()

	bundle, err := e.cache.GetBundle(symbol)
	if err != nil {
		// No usable features is a skip, not an error
		return nil
	}
	snap := bundle.M5
	if snap == nil {
		return nil
	}

	sig := e.generator.Generate(snap, now)
	if sig == nil {
		return nil
	}

	// Loss cooldown gate
	verdict := e.cooldown.Check(symbol, now)
	if !verdict.Allowed {
		e.reject(sig, "cooldown", verdict.Reason)
		return nil
	}
	floor := math.Min(baseConfidenceFloor+verdict.ConfidenceBoostRequired, 100)
	if sig.Confidence < floor {
		e.reject(sig, "confidence_floor", fmt.Sprintf("confidence %.0f below floor %.0f after cooldown", sig.Confidence, floor))
		return nil
	}

	// Multi-timeframe confirmation
	res := e.mtf.Evaluate(sig, bundle)
	if !res.Approved {
		e.reject(sig, "mtf_filter", res.Reason)
		return nil
	}

	// Regime and momentum sizing
	params := e.regime.Params()
	trendStrength := market.TrendStrength(snap.Price, snap.DailyEMA200)
	momentum := regime.MomentumStrength(snap.ADX, snap.VolumeRatio, trendStrength)

	vix := -1.0
	if mc := e.cache.GetContext(); mc != nil {
		vix = mc.VolatilityIndex
	}
	regimeMult := regime.ConfirmedSizeMultiplier(params, momentum, vix)

	// Risk approval
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCategoryNetwork, "engine", "get_account")
	}
	marketOpen, err := e.broker.IsMarketOpen(ctx)
	if err != nil {
		marketOpen = false
	}

	decision := e.risk.CheckOrder(risk.OrderCheck{
		Symbol:            symbol,
		Side:              sig.Side,
		EntryPrice:        snap.Price,
		ATR:               snap.ATR,
		Equity:            account.Equity,
		OpenPositions:     e.positions.Count(),
		MarketOpen:        marketOpen,
		ConsecutiveLosses: e.cooldown.ConsecutiveLosses(symbol),
		TrendReference:    snap.DailyEMA200,
		VolatilityIndex:   vix,
	})
	if !decision.Approved {
		e.reject(sig, "risk", decision.Reason)
		return nil
	}

	quantity := int(math.Floor(float64(decision.MaxShares) * res.SizeMultiplier * regimeMult * verdict.SizeMultiplier))
	if maxAffordable := int(math.Floor(account.BuyingPower / snap.Price)); quantity > maxAffordable {
		quantity = maxAffordable
	}
	if quantity < 1 {
		e.reject(sig, "size", "combined multipliers reduced size below one share")
		return nil
	}

	// Advisory review, fail-open
	advice, err := e.advisor.Review(ctx, sig)
	if err == nil && advice != nil {
		if advice.Veto {
			e.reject(sig, "advisor", advice.Reason)
			return nil
		}
		if advice.Unavailable {
			e.store.SaveRecord("advisory", advice)
		}
	}

	// Bracket geometry: the ATR stop from the risk check, tightened to the
	// structure anchor when that improves it; the target from the
	// regime-adjusted R with the execution minimum as the floor, capped at
	// the opposing structure level
	stopPrice := decision.StopPrice
	if a := res.StopAnchor; a > 0 {
		if (sig.Side == broker.SideBuy && a > stopPrice && a < snap.Price) ||
			(sig.Side == broker.SideSell && a < stopPrice && a > snap.Price) {
			stopPrice = a
		}
	}
	riskPerShare := math.Abs(snap.Price - stopPrice)
	targetR := regime.AdjustedProfitTargetR(params, momentum)
	if targetR < e.config.Execution.MinRiskReward {
		targetR = e.config.Execution.MinRiskReward
	}
	if a := res.TargetAnchor; a > 0 && riskPerShare > 0 {
		anchorR := (a - snap.Price) / riskPerShare
		if sig.Side == broker.SideSell {
			anchorR = (snap.Price - a) / riskPerShare
		}
		if anchorR > 0 && anchorR < targetR {
			if anchorR < e.config.Execution.MinRiskReward {
				e.reject(sig, "structure", fmt.Sprintf("opposing level at $%.2f caps reward at %.2fR, below the %.2f minimum",
					a, anchorR, e.config.Execution.MinRiskReward))
				return nil
			}
			targetR = anchorR
		}
	}

	e.log.LogSignalDecision(symbol, string(sig.Side), res.Confidence, true,
		fmt.Sprintf("qty %d, stop $%.2f, target %.1fR, regime %s", quantity, stopPrice, targetR, params.Regime))

	result, err := e.executor.Execute(ctx, execution.Request{
		Symbol:      symbol,
		Side:        sig.Side,
		Quantity:    quantity,
		SignalPrice: snap.Price,
		RiskAmount:  riskPerShare,
		RiskReward:  targetR,
	})
	e.store.SaveRecord("decision", map[string]interface{}{
		"signal":   sig,
		"filter":   res,
		"decision": decision,
		"quantity": quantity,
	})
	if err != nil {
		e.reject(sig, "execution", err.Error())
		return err
	}
	if !result.Filled && !result.DryRun {
		e.reject(sig, "unfilled", "order not filled before timeout")
		return nil
	}

	e.store.SaveRecord("execution", result)
	monitoring.RecordTrade(symbol, string(sig.Side), result.SlippagePct)

	pos := &position.Position{
		Symbol:              symbol,
		Side:                sig.Side,
		EntryPrice:          result.FillPrice,
		OriginalQuantity:    result.FilledQty,
		RemainingQuantity:   result.FilledQty,
		StopPrice:           result.StopPrice,
		TargetPrice:         result.TargetPrice,
		InitialRiskPerShare: math.Abs(result.FillPrice - result.StopPrice),
		OpenedAt:            now,
	}
	if result.DryRun {
		pos.EntryPrice = snap.Price
		pos.OriginalQuantity = quantity
		pos.RemainingQuantity = quantity
		pos.InitialRiskPerShare = riskPerShare
	}
	if err := e.positions.Open(ctx, pos); err != nil {
		return errors.Wrap(err, errors.ErrorCategoryExecution, "engine", "register_position")
	}
	monitoring.UpdateOpenPositions(e.positions.Count())
	return nil
}

// monitorPositions advances every open position's lifecycle against fresh
// prices
func (e *TradingEngine) monitorPositions(ctx context.Context) {
	now := time.Now()
	params := e.regime.Params()

	for _, symbol := range e.positions.Symbols() {
		snap, err := e.cache.Get(symbol)
		if err != nil {
			continue
		}

		trendStrength := market.TrendStrength(snap.Price, snap.DailyEMA200)
		momentum := regime.MomentumStrength(snap.ADX, snap.VolumeRatio, trendStrength)

		events, err := e.positions.Evaluate(ctx, symbol, snap, params, momentum, now)
		if err != nil {
			e.log.LogError("lifecycle evaluation failed for "+symbol, err)
			monitoring.RecordError("lifecycle")
		}
		for _, ev := range events {
			e.log.Info("%s", ev.String())
			monitoring.RecordLifecycleEvent(string(ev.Kind))
			e.store.SaveRecord("lifecycle_event", ev)
		}
	}
	monitoring.UpdateOpenPositions(e.positions.Count())
}

// reconcilePositions adopts broker positions that exist at startup so they
// are never left without protection
func (e *TradingEngine) reconcilePositions(ctx context.Context) error {
	brokerPositions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list broker positions: %w", err)
	}

	for _, bp := range brokerPositions {
		if bp.Quantity <= 0 {
			continue
		}
		if _, open := e.positions.Get(bp.Symbol); open {
			continue
		}

		entry := bp.AvgEntryPrice
		atr := 0.0
		if snap, err := e.cache.Get(bp.Symbol); err == nil {
			atr = snap.ATR
		}
		stop := e.risk.CalculateStopPrice(entry, bp.Side, atr)

		pos := &position.Position{
			Symbol:              bp.Symbol,
			Side:                bp.Side,
			EntryPrice:          entry,
			OriginalQuantity:    bp.Quantity,
			RemainingQuantity:   bp.Quantity,
			StopPrice:           stop,
			InitialRiskPerShare: math.Abs(entry - stop),
			OpenedAt:            time.Now(),
		}
		if err := e.positions.Adopt(ctx, pos); err != nil {
			e.log.LogError("failed to adopt position for "+bp.Symbol, err)
			continue
		}
		e.log.LogWarning("Engine", "adopted unprotected %s position %s x%d, stop armed @ $%.2f",
			bp.Side, bp.Symbol, bp.Quantity, stop)
	}
	return nil
}

// onTradeClosed feeds closed trades into the cooldown bookkeeping, the
// journal, persistence and notifications
func (e *TradingEngine) onTradeClosed(trade position.ClosedTrade) {
	// Only stop-family exits feed the loss streak: a losing EOD flatten or
	// divergence exit is not a stopped-out thesis
	switch {
	case trade.PnL >= 0:
		e.cooldown.RecordWin(trade.Symbol)
	case trade.Reason == position.ReasonStopLoss || trade.Reason == position.ReasonTrailingStop:
		e.cooldown.RecordLoss(trade.Symbol, trade.ClosedAt)
	}

	e.journal.Append(trade)
	e.risk.UpdateDailyPnL(e.journal.Stats().TotalPnL)
	e.store.SaveRecord("closed_trade", trade)

	if err := notifications.NotifyTradeClosed(e.notifier, trade); err != nil {
		e.log.LogWarning("Engine", "trade notification failed: %v", err)
	}
}

// reject logs, counts and persists one rejected signal
func (e *TradingEngine) reject(sig *signal.Signal, gate, reason string) {
	e.log.LogSignalDecision(sig.Symbol, string(sig.Side), sig.Confidence, false, reason)
	monitoring.RecordRejection(gate)
	e.store.SaveRecord("decision", map[string]interface{}{
		"signal": sig,
		"gate":   gate,
		"reason": reason,
	})
}

// shutdown flushes the session artifacts
func (e *TradingEngine) shutdown() {
	e.journal.PrintSummary()

	if path := e.config.JournalXLSX; path != "" {
		if err := e.journal.ExportXLSX(path); err != nil {
			e.log.LogError("failed to export journal workbook", err)
		} else {
			e.log.Status("journal exported to %s", path)
		}
	}
	if err := e.store.Close(); err != nil {
		e.log.LogError("failed to close store", err)
	}
	if err := e.broker.Disconnect(); err != nil && !strings.Contains(err.Error(), "not connected") {
		e.log.LogWarning("Engine", "broker disconnect: %v", err)
	}
	e.log.Status("engine stopped")
}
