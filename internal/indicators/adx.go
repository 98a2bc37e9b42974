package indicators

import (
	"errors"
	"math"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// ADX measures trend strength regardless of direction on a 0-100 scale.
// Values above 20 indicate a trending market, above 40 a strong trend.
type ADX struct {
	period int
}

// NewADX creates a new ADX indicator
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

// Calculate computes the latest ADX value using Wilder's smoothing
func (a *ADX) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < a.period*3 {
		return 0, errors.New("insufficient data for ADX calculation")
	}

	n := float64(a.period)

	// Seed TR and directional movement sums over the first period
	var trSum, plusDMSum, minusDMSum float64
	for i := 1; i <= a.period; i++ {
		tr, plusDM, minusDM := directionalMovement(data[i], data[i-1])
		trSum += tr
		plusDMSum += plusDM
		minusDMSum += minusDM
	}

	dxValues := make([]float64, 0, len(data)-a.period)
	dxValues = append(dxValues, dx(plusDMSum, minusDMSum, trSum))

	// Wilder-smooth the sums and collect DX values
	for i := a.period + 1; i < len(data); i++ {
		tr, plusDM, minusDM := directionalMovement(data[i], data[i-1])
		trSum = trSum - trSum/n + tr
		plusDMSum = plusDMSum - plusDMSum/n + plusDM
		minusDMSum = minusDMSum - minusDMSum/n + minusDM
		dxValues = append(dxValues, dx(plusDMSum, minusDMSum, trSum))
	}

	if len(dxValues) < a.period {
		return 0, errors.New("insufficient data for ADX smoothing")
	}

	// ADX seeds as the simple average of the first period of DX values,
	// then Wilder-smooths across the rest
	var adx float64
	for i := 0; i < a.period; i++ {
		adx += dxValues[i]
	}
	adx /= n
	for i := a.period; i < len(dxValues); i++ {
		adx = (adx*(n-1) + dxValues[i]) / n
	}
	return adx, nil
}

// IsTrending reports whether the given ADX value indicates a trending market
func IsTrending(adx float64) bool {
	return adx > 20.0
}

// GetRequiredPeriods returns minimum periods needed for calculation
func (a *ADX) GetRequiredPeriods() int {
	return a.period * 3
}

// directionalMovement returns the true range and the +DM/-DM contributions
// for one candle transition
func directionalMovement(current, previous types.OHLCV) (tr, plusDM, minusDM float64) {
	tr = math.Max(current.High-current.Low,
		math.Max(math.Abs(current.High-previous.Close),
			math.Abs(current.Low-previous.Close)))

	highDiff := current.High - previous.High
	lowDiff := previous.Low - current.Low

	if highDiff > lowDiff && highDiff > 0 {
		plusDM = highDiff
	}
	if lowDiff > highDiff && lowDiff > 0 {
		minusDM = lowDiff
	}
	return tr, plusDM, minusDM
}

// dx computes the directional index from smoothed sums
func dx(plusDMSum, minusDMSum, trSum float64) float64 {
	if trSum == 0 {
		return 0
	}
	plusDI := (plusDMSum / trSum) * 100
	minusDI := (minusDMSum / trSum) * 100
	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0
	}
	return (math.Abs(plusDI-minusDI) / diSum) * 100
}

// ATR calculates the Average True Range
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Calculate computes the latest ATR value using Wilder's smoothing
func (a *ATR) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < a.period+1 {
		return 0, errors.New("insufficient data for ATR calculation")
	}

	n := float64(a.period)

	var atr float64
	for i := 1; i <= a.period; i++ {
		tr, _, _ := directionalMovement(data[i], data[i-1])
		atr += tr
	}
	atr /= n

	for i := a.period + 1; i < len(data); i++ {
		tr, _, _ := directionalMovement(data[i], data[i-1])
		atr = (atr*(n-1) + tr) / n
	}
	return atr, nil
}

// GetRequiredPeriods returns minimum periods needed for calculation
func (a *ATR) GetRequiredPeriods() int {
	return a.period + 1
}
