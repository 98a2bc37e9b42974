package indicators

import (
	"errors"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// VolumeRatio compares the latest candle's volume to its recent average.
// A value above 1.0 means above-average participation.
func VolumeRatio(data []types.OHLCV, lookback int) (float64, error) {
	if len(data) < lookback+1 {
		return 0, errors.New("insufficient data for volume ratio")
	}

	var sum float64
	for i := len(data) - lookback - 1; i < len(data)-1; i++ {
		sum += data[i].Volume
	}
	avg := sum / float64(lookback)
	if avg == 0 {
		return 0, errors.New("zero average volume")
	}
	return data[len(data)-1].Volume / avg, nil
}

// SwingLevels finds the nearest support and resistance from recent swing
// points: a swing low is a low with a higher low on both sides, a swing
// high the mirror. Returns zero for a side with no swing in the window.
func SwingLevels(data []types.OHLCV, lookback int) (support, resistance float64) {
	if len(data) < 3 {
		return 0, 0
	}
	start := len(data) - lookback
	if start < 1 {
		start = 1
	}

	price := data[len(data)-1].Close
	for i := start; i < len(data)-1; i++ {
		if data[i].Low < data[i-1].Low && data[i].Low < data[i+1].Low {
			if data[i].Low < price && data[i].Low > support {
				support = data[i].Low
			}
		}
		if data[i].High > data[i-1].High && data[i].High > data[i+1].High {
			if data[i].High > price && (resistance == 0 || data[i].High < resistance) {
				resistance = data[i].High
			}
		}
	}
	return support, resistance
}
