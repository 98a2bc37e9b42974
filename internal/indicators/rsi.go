package indicators

import (
	"errors"
	"math"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing
type RSI struct {
	period int
}

// NewRSI creates a new RSI instance with the given period
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Calculate computes the RSI of the close series (0-100)
func (r *RSI) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < r.period+1 {
		return 0, errors.New("insufficient data for RSI calculation")
	}

	// Seed with the simple average of the first period of changes
	var avgGain, avgLoss float64
	for i := 1; i <= r.period; i++ {
		change := data[i].Close - data[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += math.Abs(change)
		}
	}
	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)

	// Wilder's smoothing over the remainder
	for i := r.period + 1; i < len(data); i++ {
		change := data[i].Close - data[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(r.period-1) + gain) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// GetRequiredPeriods returns minimum periods needed for calculation
func (r *RSI) GetRequiredPeriods() int {
	return r.period + 1
}
