package signal

// Confidence bands for the confidence-to-size mapping
const (
	MinTradableConfidence = 60.0
	fullSizeConfidence    = 70.0
	overweightConfidence  = 80.0
)

// ConfidenceSizeMultiplier maps an adjusted confidence to a position size
// multiplier. Below the tradable floor the signal is rejected (0).
//
//	< 60        reject
//	[60, 70)    0.7x
//	[70, 80]    1.0x
//	(80, 100]   1.5x
func ConfidenceSizeMultiplier(confidence float64) float64 {
	switch {
	case confidence < MinTradableConfidence:
		return 0
	case confidence < fullSizeConfidence:
		return 0.7
	case confidence <= overweightConfidence:
		return 1.0
	default:
		return 1.5
	}
}
