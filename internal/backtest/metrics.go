package backtest

import (
	"math"
)

// CalculateWinRate returns the percentage of closed trades with positive P/L
func (r *Results) CalculateWinRate() float64 {
	if len(r.Trades) == 0 {
		return 0
	}
	wins := 0
	for _, trade := range r.Trades {
		if trade.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(r.Trades)) * 100
}

// CalculateProfitFactor returns gross profit over gross loss. All wins and
// no losses returns +Inf; no trades returns 0.
func (r *Results) CalculateProfitFactor() float64 {
	totalProfit := 0.0
	totalLoss := 0.0
	for _, trade := range r.Trades {
		if trade.PnL > 0 {
			totalProfit += trade.PnL
		} else {
			totalLoss += math.Abs(trade.PnL)
		}
	}

	if totalLoss == 0 {
		if totalProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return totalProfit / totalLoss
}

// CalculateSharpeRatio returns the mean over the standard deviation of the
// per-trade R multiples. Risk-free rate is taken as zero; fewer than two
// trades or zero variance returns 0.
func (r *Results) CalculateSharpeRatio() float64 {
	if len(r.Trades) < 2 {
		return 0
	}

	mean := 0.0
	for _, trade := range r.Trades {
		mean += trade.RMultiple
	}
	mean /= float64(len(r.Trades))

	variance := 0.0
	for _, trade := range r.Trades {
		variance += (trade.RMultiple - mean) * (trade.RMultiple - mean)
	}
	variance /= float64(len(r.Trades))

	stdDev := math.Sqrt(variance)
	if stdDev < 1e-10 {
		return 0
	}
	return mean / stdDev
}

// CalculateExpectancy returns the average R multiple per trade
func (r *Results) CalculateExpectancy() float64 {
	if len(r.Trades) == 0 {
		return 0
	}
	sum := 0.0
	for _, trade := range r.Trades {
		sum += trade.RMultiple
	}
	return sum / float64(len(r.Trades))
}
