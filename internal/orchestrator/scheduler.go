package orchestrator

import (
	"context"
	"time"
)

// Scheduler suspends the run between attempts and between stations.
type Scheduler interface {
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealScheduler sleeps on the wall clock.
type RealScheduler struct{}

// Sleep implements Scheduler.
func (RealScheduler) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
