package indicators

import (
	"errors"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// EMA represents the Exponential Moving Average technical indicator
type EMA struct {
	period int
	alpha  float64
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// Calculate returns the EMA of the close series, seeded with the SMA of the
// first period
func (e *EMA) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < e.period {
		return 0, errors.New("insufficient data for EMA calculation")
	}

	sum := 0.0
	for i := 0; i < e.period; i++ {
		sum += data[i].Close
	}
	ema := sum / float64(e.period)

	for i := e.period; i < len(data); i++ {
		ema = data[i].Close*e.alpha + ema*(1-e.alpha)
	}
	return ema, nil
}

// Series returns the full EMA series aligned to the input; positions before
// the seed period are zero
func (e *EMA) Series(data []types.OHLCV) ([]float64, error) {
	if len(data) < e.period {
		return nil, errors.New("insufficient data for EMA calculation")
	}

	out := make([]float64, len(data))
	sum := 0.0
	for i := 0; i < e.period; i++ {
		sum += data[i].Close
	}
	out[e.period-1] = sum / float64(e.period)

	for i := e.period; i < len(data); i++ {
		out[i] = data[i].Close*e.alpha + out[i-1]*(1-e.alpha)
	}
	return out, nil
}

// GetRequiredPeriods returns minimum periods needed for calculation
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}
