package pipeline

import (
	"math"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/station"
)

const (
	estimateBasePerStation = 30000.0 // ms
	estimatePerUnit        = 0.5     // ms per character
	estimateOverhead       = 42000.0 // ms
)

// estimateCoefficients weight the per-character cost of each station.
var estimateCoefficients = []float64{0.8, 0.6, 1.2, 0.4, 1.0, 0.7, 0.5}

// Estimate is the expected duration of a full run.
type Estimate struct {
	Total     time.Duration                 `json:"total"`
	Breakdown map[station.Key]time.Duration `json:"breakdown"`
}

// EstimateAnalysisTime predicts the duration of a full run over a text of
// textLength characters. It issues no calls.
func EstimateAnalysisTime(textLength int) Estimate {
	if textLength < 0 {
		textLength = 0
	}

	est := Estimate{Breakdown: make(map[station.Key]time.Duration, len(estimateCoefficients))}
	total := estimateOverhead
	for i, coef := range estimateCoefficients {
		ms := estimateBasePerStation + float64(textLength)*estimatePerUnit*coef
		total += ms
		est.Breakdown[station.KeyFor(i+1)] = millis(ms)
	}
	est.Total = millis(total)
	return est
}

func millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms)) * time.Millisecond
}
