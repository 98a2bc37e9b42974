package indicators

import (
	"errors"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// MACD calculates the Moving Average Convergence Divergence indicator
type MACD struct {
	fast   int
	slow   int
	signal int
}

// NewMACD creates a new MACD indicator with the given periods
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: fast, slow: slow, signal: signal}
}

// Calculate returns the MACD line, signal line and histogram for the latest
// candle
func (m *MACD) Calculate(data []types.OHLCV) (macdLine, signalLine, histogram float64, err error) {
	if len(data) < m.slow+m.signal {
		return 0, 0, 0, errors.New("insufficient data for MACD calculation")
	}

	fastSeries, err := NewEMA(m.fast).Series(data)
	if err != nil {
		return 0, 0, 0, err
	}
	slowSeries, err := NewEMA(m.slow).Series(data)
	if err != nil {
		return 0, 0, 0, err
	}

	// MACD line series, valid from the slow seed onward
	macdSeries := make([]float64, 0, len(data)-m.slow+1)
	for i := m.slow - 1; i < len(data); i++ {
		macdSeries = append(macdSeries, fastSeries[i]-slowSeries[i])
	}
	if len(macdSeries) < m.signal {
		return 0, 0, 0, errors.New("insufficient data for MACD signal line")
	}

	// Signal line is the EMA of the MACD line
	alpha := 2.0 / float64(m.signal+1)
	sum := 0.0
	for i := 0; i < m.signal; i++ {
		sum += macdSeries[i]
	}
	sig := sum / float64(m.signal)
	for i := m.signal; i < len(macdSeries); i++ {
		sig = macdSeries[i]*alpha + sig*(1-alpha)
	}

	macdLine = macdSeries[len(macdSeries)-1]
	return macdLine, sig, macdLine - sig, nil
}

// GetRequiredPeriods returns minimum periods needed for calculation
func (m *MACD) GetRequiredPeriods() int {
	return m.slow + m.signal
}
