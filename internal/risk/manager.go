package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
)

// Manager computes stop distances and position sizes under the configured
// risk limits and owns the daily-loss circuit breaker. All sizing methods
// are pure functions over their inputs; only the daily P/L state is mutable
// and it is updated exclusively by the orchestrator's refresh loop.
type Manager struct {
	config Config

	mu             sync.RWMutex
	sessionEquity  float64
	dailyPnL       float64
	breakerTripped bool
	sessionDate    string
}

// NewManager creates a risk manager
func NewManager(config Config) *Manager {
	if config.MinStopDistancePct <= 0 {
		config = DefaultConfig()
	}
	return &Manager{config: config}
}

// Config returns the configured limits
func (m *Manager) Config() Config {
	return m.config
}

// CalculateStopPrice derives an ATR-based stop with a hard floor of
// MinStopDistancePct of the entry price. The floor only ever widens the
// stop, never narrows it.
func (m *Manager) CalculateStopPrice(entry float64, side broker.OrderSide, atr float64) float64 {
	distance := atr * m.config.ATRStopMultiplier
	floor := entry * m.config.MinStopDistancePct
	if distance < floor {
		distance = floor
	}

	if side == broker.SideBuy {
		return entry - distance
	}
	return entry + distance
}

// MaxPositionSize returns the share count such that shares x |entry - stop|
// stays within MaxRiskPerTradePct of equity, halved after the configured
// loss streak and scaled by the trend and volatility multipliers.
func (m *Manager) MaxPositionSize(entry, stop, equity float64, check OrderCheck) int {
	riskPerShare := math.Abs(entry - stop)
	if riskPerShare <= 0 || equity <= 0 {
		return 0
	}

	shares := equity * m.config.MaxRiskPerTradePct / riskPerShare

	if check.ConsecutiveLosses >= m.config.LossReductionStreak {
		shares *= 0.5
	}

	shares *= m.trendMultiplier(entry, check.TrendReference, check.Side)
	shares *= volatilitySizeMultiplier(check.VolatilityIndex)

	// A cash account cannot carry more notional than its equity
	if maxAffordable := equity / entry; shares > maxAffordable {
		shares = maxAffordable
	}

	return int(math.Floor(shares))
}

// trendMultiplier scales size by 0.8-1.2x based on the entry's distance from
// a longer-period trend reference. Trading with the prevailing trend earns
// the premium symmetrically for longs and shorts. Missing reference data
// degrades to a neutral 1.0.
func (m *Manager) trendMultiplier(entry, reference float64, side broker.OrderSide) float64 {
	if reference <= 0 || entry <= 0 {
		return 1.0
	}

	// 2% beyond the reference saturates the multiplier
	distancePct := (entry - reference) / reference
	aligned := distancePct * 10.0
	if side == broker.SideSell {
		aligned = -aligned
	}

	mult := 1.0 + aligned
	if mult < 0.8 {
		return 0.8
	}
	if mult > 1.2 {
		return 1.2
	}
	return mult
}

// volatilitySizeMultiplier caps size by the volatility index level.
// Negative means unavailable and degrades to neutral.
func volatilitySizeMultiplier(volatilityIndex float64) float64 {
	switch {
	case volatilityIndex < 0:
		return 1.0
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

// StartSession resets the daily-loss breaker for a new trading day
func (m *Manager) StartSession(equity float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessionEquity = equity
	m.dailyPnL = 0
	m.breakerTripped = false
	m.sessionDate = now.Format("2006-01-02")
}

// UpdateDailyPnL records the given daily P/L reading and trips the circuit
// breaker on breach. The breaker stays tripped for the rest of the session;
// existing positions are untouched.
func (m *Manager) UpdateDailyPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dailyPnL = pnl
	if m.sessionEquity > 0 && pnl <= -m.sessionEquity*m.config.DailyLossLimitPct {
		m.breakerTripped = true
	}
}

// MarkToMarket records daily P/L as the drift of current account equity from
// the session's starting equity, so unrealized losses on open positions count
// against the daily limit. It is a no-op before StartSession.
func (m *Manager) MarkToMarket(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionEquity <= 0 || equity <= 0 {
		return
	}
	m.dailyPnL = equity - m.sessionEquity
	if m.dailyPnL <= -m.sessionEquity*m.config.DailyLossLimitPct {
		m.breakerTripped = true
	}
}

// IsDailyLossLimitReached reports whether the daily-loss circuit breaker has
// tripped this session
func (m *Manager) IsDailyLossLimitReached() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakerTripped
}

// DailyPnL returns the last recorded daily P/L
func (m *Manager) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// CheckOrder is the composite entry gate: validation, market session, daily
// loss breaker, concurrency limit, then stop and size computation. Missing
// upstream context degrades to neutral multipliers; breached numeric limits
// always reject.
func (m *Manager) CheckOrder(check OrderCheck) Decision {
	now := time.Now()
	reject := func(reason string) Decision {
		return Decision{Approved: false, Reason: reason, CheckedAt: now}
	}

	if check.EntryPrice <= 0 {
		return reject("invalid entry price")
	}
	if check.Side != broker.SideBuy && check.Side != broker.SideSell {
		return reject(fmt.Sprintf("invalid side %q", check.Side))
	}
	if check.Equity <= 0 {
		return reject("account equity unavailable")
	}
	if !check.MarketOpen {
		return reject("market is closed")
	}
	if m.IsDailyLossLimitReached() {
		return reject("daily loss limit reached")
	}
	if m.config.MaxConcurrentPos > 0 && check.OpenPositions >= m.config.MaxConcurrentPos {
		return reject(fmt.Sprintf("max concurrent positions reached (%d)", check.OpenPositions))
	}

	stop := m.CalculateStopPrice(check.EntryPrice, check.Side, check.ATR)
	shares := m.MaxPositionSize(check.EntryPrice, stop, check.Equity, check)
	if shares <= 0 {
		return reject("risk budget does not allow a single share")
	}

	return Decision{
		Approved:  true,
		MaxShares: shares,
		StopPrice: stop,
		CheckedAt: now,
	}
}
