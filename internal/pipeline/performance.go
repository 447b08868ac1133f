package pipeline

import (
	"math"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

// NotAvailable names the slowest and fastest station when nothing completed.
const NotAvailable = "N/A"

// StationTiming identifies one station attempt and its duration.
type StationTiming struct {
	Number   int           `json:"number"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// PerformanceMetrics summarizes the progress log of one run.
type PerformanceMetrics struct {
	AverageStationTime time.Duration `json:"average_station_time"`
	SlowestStation     StationTiming `json:"slowest_station"`
	FastestStation     StationTiming `json:"fastest_station"`
	TotalRetries       int           `json:"total_retries"`
	// SuccessRate is a percentage rounded to two decimals
	SuccessRate float64 `json:"success_rate"`
}

// ComputePerformance derives PerformanceMetrics from a run result. Only
// completed attempts contribute timings; retries count every attempt after
// the first for each station.
func ComputePerformance(res *orchestrator.Result) PerformanceMetrics {
	empty := PerformanceMetrics{
		SlowestStation: StationTiming{Name: NotAvailable},
		FastestStation: StationTiming{Name: NotAvailable},
	}
	if res == nil {
		return empty
	}

	var completed []orchestrator.ProgressEntry
	for _, e := range res.ProgressLog {
		if e.Status == orchestrator.ProgressCompleted {
			completed = append(completed, e)
		}
	}
	if len(completed) == 0 {
		return empty
	}

	var total time.Duration
	slowest, fastest := completed[0], completed[0]
	for _, e := range completed {
		total += e.Duration
		if e.Duration > slowest.Duration {
			slowest = e
		}
		if e.Duration < fastest.Duration {
			fastest = e
		}
	}

	finalAttempt := make(map[station.Key]int)
	for _, e := range res.ProgressLog {
		if e.Attempt > finalAttempt[e.StationKey] {
			finalAttempt[e.StationKey] = e.Attempt
		}
	}
	retries := 0
	for _, attempt := range finalAttempt {
		retries += attempt - 1
	}

	var rate float64
	if n := res.Metadata.StationsCompleted + res.Metadata.StationsFailed; n > 0 {
		rate = round2(float64(res.Metadata.StationsCompleted) / float64(n) * 100)
	}

	return PerformanceMetrics{
		AverageStationTime: total / time.Duration(len(completed)),
		SlowestStation:     timingOf(slowest),
		FastestStation:     timingOf(fastest),
		TotalRetries:       retries,
		SuccessRate:        rate,
	}
}

func timingOf(e orchestrator.ProgressEntry) StationTiming {
	return StationTiming{Number: e.StationNumber, Name: e.StationName, Duration: e.Duration}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
