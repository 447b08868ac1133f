package profiles

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/station"
)

// Profile is a named preset of pipeline settings.
type Profile struct {
	// Name is the profile identifier (e.g., "default", "quick", "robust")
	Name string `yaml:"name,omitempty" json:"name"`

	// Description provides human-readable profile information
	Description string `yaml:"description" json:"description"`

	// Models selects the primary and fallback generative models
	Models ModelConfig `yaml:"models" json:"models"`

	// Retry configures station retries
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Pacing configures delays and timeouts
	Pacing PacingConfig `yaml:"pacing" json:"pacing"`

	// Execution configures caching, logging, checkpoints and failure handling
	Execution ExecutionConfig `yaml:"execution" json:"execution"`

	// Stations overrides the per-station template options
	Stations station.Overrides `yaml:"stations,omitempty" json:"stations,omitempty"`
}

// ModelConfig selects the generative models.
type ModelConfig struct {
	Primary  string `yaml:"primary" json:"primary"`
	Fallback string `yaml:"fallback" json:"fallback"`
}

// RetryConfig defines station retry behavior.
type RetryConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	Delay      time.Duration `yaml:"delay" json:"delay"`

	// Backoff is "linear" (delay × attempt) or "constant"
	Backoff string `yaml:"backoff" json:"backoff"`
}

// PacingConfig defines delays between stations and the per-call timeout.
type PacingConfig struct {
	DelayBetweenStations time.Duration `yaml:"delay_between_stations" json:"delay_between_stations"`
	CallTimeout          time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// ExecutionConfig defines execution behavior.
type ExecutionConfig struct {
	Caching          bool `yaml:"caching" json:"caching"`
	ProgressTracking bool `yaml:"progress_tracking" json:"progress_tracking"`
	DetailedLogging  bool `yaml:"detailed_logging" json:"detailed_logging"`

	// FailurePolicy is "continue" or "abort"
	FailurePolicy string `yaml:"failure_policy" json:"failure_policy"`

	// Checkpoints saves run state after every station so it can be resumed
	Checkpoints bool `yaml:"checkpoints" json:"checkpoints"`
}

// Validate validates the profile configuration.
func (p *Profile) Validate() error {
	if err := p.Models.Validate(); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	if err := p.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := p.Pacing.Validate(); err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	if err := p.Execution.Validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	if t := p.Stations.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("stations: temperature must be between 0.0 and 2.0, got %.2f", *t)
	}
	return nil
}

// Validate validates model configuration.
func (m *ModelConfig) Validate() error {
	if m.Primary == "" {
		return fmt.Errorf("primary is required")
	}
	if m.Fallback == "" {
		return fmt.Errorf("fallback is required")
	}
	return nil
}

// Validate validates retry configuration.
func (r *RetryConfig) Validate() error {
	if r.Enabled && (r.MaxRetries < 1 || r.MaxRetries > 10) {
		return fmt.Errorf("max_retries must be between 1 and 10, got %d", r.MaxRetries)
	}
	if r.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", r.Delay)
	}
	switch r.Backoff {
	case "linear", "constant":
	default:
		return fmt.Errorf("invalid backoff: %q (must be linear or constant)", r.Backoff)
	}
	return nil
}

// Validate validates pacing configuration.
func (p *PacingConfig) Validate() error {
	if p.DelayBetweenStations < 0 {
		return fmt.Errorf("delay_between_stations must not be negative, got %s", p.DelayBetweenStations)
	}
	if p.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", p.CallTimeout)
	}
	return nil
}

// Validate validates execution configuration.
func (e *ExecutionConfig) Validate() error {
	switch e.FailurePolicy {
	case "continue", "abort":
	default:
		return fmt.Errorf("invalid failure_policy: %q (must be continue or abort)", e.FailurePolicy)
	}
	return nil
}

// Flags carries CLI overrides; nil fields keep the profile value.
type Flags struct {
	PrimaryModel         *string
	FallbackModel        *string
	EnableRetry          *bool
	MaxRetries           *int
	RetryDelay           *time.Duration
	DelayBetweenStations *time.Duration
	CallTimeout          *time.Duration
	Caching              *bool
	DetailedLogging      *bool
	FailurePolicy        *string
	Checkpoints          *bool
}

// ApplyFlags returns a copy of profile with the flag overrides applied.
// CLI flags take precedence over profile settings.
func ApplyFlags(profile *Profile, flags Flags) *Profile {
	merged := *profile

	if flags.PrimaryModel != nil {
		merged.Models.Primary = *flags.PrimaryModel
	}
	if flags.FallbackModel != nil {
		merged.Models.Fallback = *flags.FallbackModel
	}
	if flags.EnableRetry != nil {
		merged.Retry.Enabled = *flags.EnableRetry
	}
	if flags.MaxRetries != nil {
		merged.Retry.MaxRetries = *flags.MaxRetries
	}
	if flags.RetryDelay != nil {
		merged.Retry.Delay = *flags.RetryDelay
	}
	if flags.DelayBetweenStations != nil {
		merged.Pacing.DelayBetweenStations = *flags.DelayBetweenStations
	}
	if flags.CallTimeout != nil {
		merged.Pacing.CallTimeout = *flags.CallTimeout
	}
	if flags.Caching != nil {
		merged.Execution.Caching = *flags.Caching
	}
	if flags.DetailedLogging != nil {
		merged.Execution.DetailedLogging = *flags.DetailedLogging
	}
	if flags.FailurePolicy != nil {
		merged.Execution.FailurePolicy = *flags.FailurePolicy
	}
	if flags.Checkpoints != nil {
		merged.Execution.Checkpoints = *flags.Checkpoints
	}

	return &merged
}
