package health

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds every individual check.
const DefaultTimeout = 15 * time.Second

// Manager coordinates health checks and aggregates results.
// It runs checks in parallel, each under its own timeout.
type Manager struct {
	checkers []Checker
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager creates a new health check manager.
func NewManager() *Manager {
	return &Manager{timeout: DefaultTimeout}
}

// WithTimeout sets a custom timeout for health checks.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a new health checker. Reports list checkers in
// registration order.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// CheckNames returns the names of all registered checkers.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.checkers))
	for i, checker := range m.checkers {
		names[i] = checker.Name()
	}
	return names
}

// Entry is the result of one named check.
type Entry struct {
	Name   string
	Result *Result
}

// Report holds the results of one Run, in registration order.
type Report struct {
	Entries []Entry
}

// Run executes all registered checks in parallel.
func (m *Manager) Run(ctx context.Context) Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.RUnlock()

	entries := make([]Entry, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result == nil {
				result = Unhealthy("check returned no result")
			}
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}
			entries[i] = Entry{Name: c.Name(), Result: result}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Entries: entries}
}

// Result returns the result of the named check.
func (r Report) Result(name string) (*Result, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e.Result, true
		}
	}
	return nil, false
}

// Healthy reports whether no check is unhealthy.
func (r Report) Healthy() bool {
	return r.Status() != StatusUnhealthy
}

// Status is the worst status of all entries; an empty report is healthy.
func (r Report) Status() Status {
	status := StatusHealthy
	for _, e := range r.Entries {
		status = Worse(status, e.Result.Status)
	}
	return status
}

// Details joins the messages of every check that is not healthy with "; ".
func (r Report) Details() string {
	var msgs []string
	for _, e := range r.Entries {
		if e.Result.Status != StatusHealthy {
			msgs = append(msgs, e.Result.Message)
		}
	}
	return strings.Join(msgs, "; ")
}
