package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
)

// TestCalculateStopPrice_FloorWidens tests that a tight ATR stop is widened
// to the minimum stop distance
func TestCalculateStopPrice_FloorWidens(t *testing.T) {
	m := NewManager(DefaultConfig())

	// ATR stop would be 2 x 0.5 = 1.00, floor is 1.5% of 100 = 1.50
	stop := m.CalculateStopPrice(100.0, broker.SideBuy, 0.5)
	assert.InDelta(t, 98.5, stop, 1e-9)
}

// TestCalculateStopPrice_ATRWins tests that a wide ATR stop is kept
func TestCalculateStopPrice_ATRWins(t *testing.T) {
	m := NewManager(DefaultConfig())

	stop := m.CalculateStopPrice(100.0, broker.SideBuy, 1.0)
	assert.InDelta(t, 98.0, stop, 1e-9)
}

// TestCalculateStopPrice_Short tests stop placement above entry for shorts
func TestCalculateStopPrice_Short(t *testing.T) {
	m := NewManager(DefaultConfig())

	stop := m.CalculateStopPrice(100.0, broker.SideSell, 1.0)
	assert.InDelta(t, 102.0, stop, 1e-9)
}

// TestMaxPositionSize_RiskBudget tests the 1% risk budget sizing
func TestMaxPositionSize_RiskBudget(t *testing.T) {
	m := NewManager(DefaultConfig())

	check := OrderCheck{Side: broker.SideBuy, VolatilityIndex: -1}
	// 1% of 100k = $1000 budget, $2 risk per share
	shares := m.MaxPositionSize(100.0, 98.0, 100000.0, check)
	assert.Equal(t, 500, shares)
}

// TestMaxPositionSize_LossStreakHalves tests size halving after the loss streak
func TestMaxPositionSize_LossStreakHalves(t *testing.T) {
	m := NewManager(DefaultConfig())

	check := OrderCheck{Side: broker.SideBuy, ConsecutiveLosses: 3, VolatilityIndex: -1}
	shares := m.MaxPositionSize(100.0, 98.0, 100000.0, check)
	assert.Equal(t, 250, shares)
}

// TestMaxPositionSize_TrendMultiplier tests the 0.8-1.2x trend scaling
func TestMaxPositionSize_TrendMultiplier(t *testing.T) {
	m := NewManager(DefaultConfig())

	// Entry far above the reference saturates at 1.2x for longs
	long := OrderCheck{Side: broker.SideBuy, TrendReference: 90.0, VolatilityIndex: -1}
	assert.Equal(t, 600, m.MaxPositionSize(100.0, 98.0, 100000.0, long))

	// The same distance works against a short and floors at 0.8x
	short := OrderCheck{Side: broker.SideSell, TrendReference: 90.0, VolatilityIndex: -1}
	assert.Equal(t, 400, m.MaxPositionSize(100.0, 102.0, 100000.0, short))
}

// TestMaxPositionSize_NotionalCap tests the buying-power cap on tight stops
func TestMaxPositionSize_NotionalCap(t *testing.T) {
	m := NewManager(DefaultConfig())

	// A $0.10 stop would budget 10000 shares, but $100k only buys 1000 at $100
	check := OrderCheck{Side: broker.SideBuy, VolatilityIndex: -1}
	shares := m.MaxPositionSize(100.0, 99.90, 100000.0, check)
	assert.Equal(t, 1000, shares)
}

// TestMaxPositionSize_VolatilityCaps tests the volatility index size caps
func TestMaxPositionSize_VolatilityCaps(t *testing.T) {
	m := NewManager(DefaultConfig())

	cases := []struct {
		vix    float64
		shares int
	}{
		{vix: -1, shares: 500}, // unavailable, neutral
		{vix: 10, shares: 600}, // calm tape, 1.2x
		{vix: 20, shares: 500}, // normal, 1.0x
		{vix: 30, shares: 450}, // elevated, 0.9x
		{vix: 40, shares: 350}, // stressed, 0.7x
	}
	for _, tc := range cases {
		check := OrderCheck{Side: broker.SideBuy, VolatilityIndex: tc.vix}
		assert.Equal(t, tc.shares, m.MaxPositionSize(100.0, 98.0, 100000.0, check), "vix %.0f", tc.vix)
	}
}

// TestDailyLossBreaker tests that the circuit breaker trips at the limit and
// stays tripped
func TestDailyLossBreaker(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.StartSession(100000.0, time.Now())

	m.UpdateDailyPnL(-2000.0)
	assert.False(t, m.IsDailyLossLimitReached())

	m.UpdateDailyPnL(-3000.0)
	assert.True(t, m.IsDailyLossLimitReached())

	// Recovery does not reset the breaker within the session
	m.UpdateDailyPnL(-1000.0)
	assert.True(t, m.IsDailyLossLimitReached())

	m.StartSession(100000.0, time.Now())
	assert.False(t, m.IsDailyLossLimitReached())
}

// TestMarkToMarket_TripsOnEquityDrawdown tests that equity drift from the
// session start trips the breaker even with nothing realized
func TestMarkToMarket_TripsOnEquityDrawdown(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.StartSession(100000.0, time.Now())

	m.MarkToMarket(99000.0)
	assert.False(t, m.IsDailyLossLimitReached())
	assert.InDelta(t, -1000.0, m.DailyPnL(), 1e-9)

	m.MarkToMarket(90000.0)
	assert.True(t, m.IsDailyLossLimitReached())
	assert.InDelta(t, -10000.0, m.DailyPnL(), 1e-9)

	// Recovery does not reset the breaker within the session
	m.MarkToMarket(100000.0)
	assert.True(t, m.IsDailyLossLimitReached())

	// Before a session there is no baseline to drift from
	fresh := NewManager(DefaultConfig())
	fresh.MarkToMarket(50000.0)
	assert.False(t, fresh.IsDailyLossLimitReached())
	assert.Equal(t, 0.0, fresh.DailyPnL())
}

// TestCheckOrder_Approves tests the happy path through the composite gate
func TestCheckOrder_Approves(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.StartSession(100000.0, time.Now())

	decision := m.CheckOrder(OrderCheck{
		Symbol:          "AAPL",
		Side:            broker.SideBuy,
		EntryPrice:      100.0,
		ATR:             1.0,
		Equity:          100000.0,
		MarketOpen:      true,
		VolatilityIndex: -1,
	})

	assert.True(t, decision.Approved)
	assert.InDelta(t, 98.0, decision.StopPrice, 1e-9)
	assert.Equal(t, 500, decision.MaxShares)
}

// TestCheckOrder_Rejections tests each rejecting gate
func TestCheckOrder_Rejections(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.StartSession(100000.0, time.Now())

	base := OrderCheck{
		Symbol:          "AAPL",
		Side:            broker.SideBuy,
		EntryPrice:      100.0,
		ATR:             1.0,
		Equity:          100000.0,
		MarketOpen:      true,
		VolatilityIndex: -1,
	}

	closed := base
	closed.MarketOpen = false
	assert.False(t, m.CheckOrder(closed).Approved)

	noEquity := base
	noEquity.Equity = 0
	assert.False(t, m.CheckOrder(noEquity).Approved)

	crowded := base
	crowded.OpenPositions = DefaultConfig().MaxConcurrentPos
	assert.False(t, m.CheckOrder(crowded).Approved)

	m.UpdateDailyPnL(-4000.0)
	assert.False(t, m.CheckOrder(base).Approved)
}
