package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for dramascope.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// Pipeline run metrics
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Station execution metrics
	StationAttempts *prometheus.CounterVec
	StationDuration *prometheus.HistogramVec
	StationRetries  *prometheus.CounterVec

	// Sub-task fan-out metrics
	SubTasks *prometheus.CounterVec

	// Task client metrics
	TaskCalls      *prometheus.CounterVec
	TaskLatency    *prometheus.HistogramVec
	TaskRetries    *prometheus.CounterVec
	TaskFallbacks  *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	RateLimitWaits prometheus.Histogram

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"kind", "success"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dramascope_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"kind"},
		),

		StationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_station_attempts_total",
				Help: "Total number of station execution attempts",
			},
			[]string{"station", "status"},
		),
		StationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dramascope_station_duration_seconds",
				Help:    "Station attempt duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"station"},
		),
		StationRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_station_retries_total",
				Help: "Total number of station retries",
			},
			[]string{"station"},
		),

		SubTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_subtasks_total",
				Help: "Total number of sub-task calls issued by stations",
			},
			[]string{"station", "subtask", "outcome"},
		),

		TaskCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_task_calls_total",
				Help: "Total number of generative service calls",
			},
			[]string{"model", "success"},
		),
		TaskLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dramascope_task_latency_seconds",
				Help:    "Generative service call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"model"},
		),
		TaskRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_task_retries_total",
				Help: "Total number of generative service call retries",
			},
			[]string{"model"},
		),
		TaskFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_task_fallbacks_total",
				Help: "Total number of calls rerouted to the fallback model",
			},
			[]string{"from", "to"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_cache_lookups_total",
				Help: "Total number of response cache lookups",
			},
			[]string{"result"},
		),
		RateLimitWaits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dramascope_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the request rate limiter",
				Buckets: []float64{0, 0.1, 0.5, 1, 5, 30, 60},
			},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dramascope_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// RecordRun records a finished pipeline run
func (m *Metrics) RecordRun(kind string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordStationAttempt records one station attempt and, for attempts after the first, a retry
func (m *Metrics) RecordStationAttempt(station, status string, attempt int, d time.Duration) {
	if m == nil {
		return
	}
	m.StationAttempts.WithLabelValues(station, status).Inc()
	m.StationDuration.WithLabelValues(station).Observe(d.Seconds())
	if attempt > 1 {
		m.StationRetries.WithLabelValues(station).Inc()
	}
}

// RecordSubTask records the outcome of one sub-task inside a station
func (m *Metrics) RecordSubTask(station, subtask, outcome string) {
	if m == nil {
		return
	}
	m.SubTasks.WithLabelValues(station, subtask, outcome).Inc()
}

// RecordTaskCall records a single generative service call
func (m *Metrics) RecordTaskCall(model string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskCalls.WithLabelValues(model, strconv.FormatBool(success)).Inc()
	m.TaskLatency.WithLabelValues(model).Observe(d.Seconds())
}

// RecordTaskRetry records a retried generative service call
func (m *Metrics) RecordTaskRetry(model string) {
	if m == nil {
		return
	}
	m.TaskRetries.WithLabelValues(model).Inc()
}

// RecordFallback records a call rerouted from one model to another
func (m *Metrics) RecordFallback(from, to string) {
	if m == nil {
		return
	}
	m.TaskFallbacks.WithLabelValues(from, to).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordRateLimitWait records time spent blocked on the rate limiter
func (m *Metrics) RecordRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWaits.Observe(d.Seconds())
}

// RecordError records a coded error
func (m *Metrics) RecordError(code, component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
