package orchestrator

import "time"

// Backoff selects how the retry delay grows with the attempt number.
type Backoff string

const (
	// BackoffLinear waits RetryDelay × attempt before the next attempt.
	BackoffLinear Backoff = "linear"
	// BackoffConstant waits RetryDelay before every retry.
	BackoffConstant Backoff = "constant"
)

// Outcome is the result of one station attempt as seen by the retry policy.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
)

// Decision tells the orchestrator what to do after an attempt.
type Decision struct {
	Retry bool
	// Delay is the pause before the next attempt; zero when Retry is false.
	Delay time.Duration
}

// RetryPolicy is the station retry state machine expressed as data.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     Backoff
}

// PolicyFor derives the retry policy of cfg. With retry disabled a station
// gets exactly one attempt.
func PolicyFor(cfg Config) RetryPolicy {
	attempts := 1
	if cfg.EnableRetry && cfg.MaxRetries > 1 {
		attempts = cfg.MaxRetries
	}
	return RetryPolicy{
		MaxAttempts: attempts,
		Delay:       cfg.RetryDelay,
		Backoff:     cfg.Backoff,
	}
}

// Next decides what follows attempt (1-based) given its outcome.
func (p RetryPolicy) Next(attempt int, outcome Outcome) Decision {
	if outcome == OutcomeSucceeded || attempt >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.delayAfter(attempt)}
}

func (p RetryPolicy) delayAfter(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	if p.Backoff == BackoffConstant {
		return p.Delay
	}
	return p.Delay * time.Duration(attempt)
}
