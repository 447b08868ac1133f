// Package health checks the two resources a run depends on: the generative
// task client and the output directory.
//
//	manager := health.NewManager()
//	manager.AddChecker(health.NewTaskClientChecker(client))
//	manager.AddChecker(health.NewOutputDirChecker(dir))
//
//	report := manager.Run(ctx)
//	if !report.Healthy() {
//	    logger.Warn("health check failed", "details", report.Details())
//	}
package health

import (
	"context"
	"time"
)

// Checker is one named health check. Check must honor the context deadline.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "task-client".
	Name() string
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of a and b. Unknown statuses count as unhealthy.
func Worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Result is what a Checker reports.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// Usable reports whether a run can rely on the checked resource; degraded
// resources are usable.
func (r *Result) Usable() bool {
	return r != nil && r.Status.severity() < StatusUnhealthy.severity()
}

// NewResult creates a result with an empty details map.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

func Healthy(message string) *Result   { return NewResult(StatusHealthy, message) }
func Degraded(message string) *Result  { return NewResult(StatusDegraded, message) }
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }
