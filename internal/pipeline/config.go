package pipeline

import (
	"time"

	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/profiles"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

// DefaultOutputDir is used when Config.OutputDir is empty.
const DefaultOutputDir = "analysis_output"

// Config holds the constructor-time settings of a Pipeline.
type Config struct {
	// APIKey authenticates against the generative service. Without it every
	// task call fails and stations report Failed.
	APIKey string

	// OutputDir receives reports and checkpoints; created if absent.
	OutputDir string

	EnableCaching          bool
	EnableRetry            bool
	MaxRetries             int
	RetryDelay             time.Duration
	EnableProgressTracking bool
	EnableDetailedLogging  bool
	DelayBetweenStations   time.Duration

	PrimaryModel  string
	FallbackModel string

	// Timeout bounds every task call
	Timeout time.Duration

	FailurePolicy orchestrator.FailurePolicy
	Backoff       orchestrator.Backoff

	// EnableCheckpoints saves run state after every station
	EnableCheckpoints bool

	// Stations overrides the station template options for every run
	Stations *station.Overrides
}

// DefaultConfig returns the standard settings: 3 attempts, 5s retry delay,
// 6s between stations, gemini-2.5-pro with gemini-2.5-flash fallback, 120s
// per call.
func DefaultConfig() Config {
	return Config{
		OutputDir:              DefaultOutputDir,
		EnableCaching:          false,
		EnableRetry:            true,
		MaxRetries:             3,
		RetryDelay:             5 * time.Second,
		EnableProgressTracking: true,
		EnableDetailedLogging:  true,
		DelayBetweenStations:   6 * time.Second,
		PrimaryModel:           taskclient.ModelPro,
		FallbackModel:          taskclient.ModelFlash,
		Timeout:                120 * time.Second,
		FailurePolicy:          orchestrator.FailureContinue,
		Backoff:                orchestrator.BackoffLinear,
		EnableCheckpoints:      true,
	}
}

// ConfigFromProfile builds a Config from a profile. APIKey and OutputDir
// are left for the caller.
func ConfigFromProfile(p *profiles.Profile) Config {
	cfg := Config{
		OutputDir:              DefaultOutputDir,
		EnableCaching:          p.Execution.Caching,
		EnableRetry:            p.Retry.Enabled,
		MaxRetries:             p.Retry.MaxRetries,
		RetryDelay:             p.Retry.Delay,
		EnableProgressTracking: p.Execution.ProgressTracking,
		EnableDetailedLogging:  p.Execution.DetailedLogging,
		DelayBetweenStations:   p.Pacing.DelayBetweenStations,
		PrimaryModel:           p.Models.Primary,
		FallbackModel:          p.Models.Fallback,
		Timeout:                p.Pacing.CallTimeout,
		FailurePolicy:          orchestrator.FailurePolicy(p.Execution.FailurePolicy),
		Backoff:                orchestrator.Backoff(p.Retry.Backoff),
		EnableCheckpoints:      p.Execution.Checkpoints,
	}
	if p.Stations != (station.Overrides{}) {
		ov := p.Stations
		cfg.Stations = &ov
	}
	return cfg
}

// withDefaults fills zero values. Booleans are taken as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.DelayBetweenStations < 0 {
		c.DelayBetweenStations = 0
	}
	if c.PrimaryModel == "" {
		c.PrimaryModel = def.PrimaryModel
	}
	if c.FallbackModel == "" {
		c.FallbackModel = def.FallbackModel
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = def.FailurePolicy
	}
	if c.Backoff == "" {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		EnableRetry:          c.EnableRetry,
		MaxRetries:           c.MaxRetries,
		RetryDelay:           c.RetryDelay,
		DelayBetweenStations: c.DelayBetweenStations,
		FailurePolicy:        c.FailurePolicy,
		Backoff:              c.Backoff,
		DetailedLogging:      c.EnableDetailedLogging,
	}
}

func (c Config) resilientConfig() taskclient.ResilientConfig {
	rc := taskclient.DefaultResilientConfig()
	rc.Timeout = c.Timeout
	rc.FallbackModel = c.FallbackModel
	rc.EnableCaching = c.EnableCaching
	rc.MaxRetries = 1
	if c.EnableRetry {
		rc.MaxRetries = c.MaxRetries
	}
	return rc
}
