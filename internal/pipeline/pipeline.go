// Package pipeline is the entry point of a screenplay analysis. It validates
// the input, drives the orchestrator over the seven stations, derives
// performance metrics, writes the run report and exposes the health check
// and duration estimator.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/dramascope/internal/checkpoint"
	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/health"
	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/profiles"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/stations"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
	"github.com/felixgeelhaar/dramascope/internal/telemetry"
)

// CheckpointDir is the checkpoint directory inside the output directory.
const CheckpointDir = "checkpoints"

// Run kinds reported to metrics and traces.
const (
	RunKindFull    = "full"
	RunKindPartial = "partial"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTaskClient injects the task client instead of building the Gemini backend.
func WithTaskClient(c taskclient.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer sets the tracer
func WithTracer(t *telemetry.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithScheduler replaces the scheduler used for retry and inter-station delays.
func WithScheduler(s orchestrator.Scheduler) Option {
	return func(p *Pipeline) { p.scheduler = s }
}

// WithProgress registers a callback invoked for every station attempt.
func WithProgress(fn func(orchestrator.ProgressEntry)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// RunMetadata summarizes one pipeline run.
type RunMetadata struct {
	RunID             string        `json:"run_id"`
	StationsCompleted int           `json:"stations_completed"`
	StationsFailed    int           `json:"stations_failed"`
	TotalDuration     time.Duration `json:"total_duration"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	// ReportPath is empty when the report could not be written
	ReportPath string `json:"report_path,omitempty"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	Outputs       map[station.Key]*station.Output `json:"outputs"`
	Metadata      RunMetadata                     `json:"metadata"`
	Orchestration *orchestrator.Result            `json:"orchestration"`
	Performance   PerformanceMetrics              `json:"performance"`
}

// HealthStatus is the outcome of HealthCheck.
type HealthStatus struct {
	Healthy                bool   `json:"healthy"`
	TaskClientHealthy      bool   `json:"task_client_healthy"`
	OutputDirectoryHealthy bool   `json:"output_directory_healthy"`
	Details                string `json:"details"`
}

// Pipeline owns the task client and the orchestrator for its lifetime.
type Pipeline struct {
	cfg         Config
	client      taskclient.Client
	orch        *orchestrator.Orchestrator
	health      *health.Manager
	checkpoints *checkpoint.Manager
	scheduler   orchestrator.Scheduler
	progress    func(orchestrator.ProgressEntry)
	logger      *log.Logger
	metrics     *metrics.Metrics
	tracer      *telemetry.Tracer
	now         func() time.Time
}

// New creates a pipeline. It fails with an infrastructure error when the
// output directory cannot be created or the task client cannot be built.
func New(ctx context.Context, cfg Config, opts ...Option) (*Pipeline, error) {
	cfg = cfg.withDefaults()

	p := &Pipeline{
		cfg:    cfg,
		logger: log.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.NewOutputDirError(cfg.OutputDir, err)
	}

	if p.client == nil {
		client, err := p.buildClient(ctx)
		if err != nil {
			p.metrics.RecordError(string(errors.ErrCodeTaskClientInit), "pipeline")
			return nil, err
		}
		p.client = client
	}

	deps := stations.Deps{
		Client:       p.client,
		Logger:       p.logger,
		Metrics:      p.metrics,
		PrimaryModel: cfg.PrimaryModel,
		FastModel:    cfg.FallbackModel,
	}
	templates := stations.Registry(deps,
		station.WithComplianceChecker(station.NewModelComplianceChecker(p.client, cfg.FallbackModel)),
		station.WithUncertaintyScorer(station.NewModelUncertaintyScorer(p.client, cfg.FallbackModel)),
		station.WithLogger(p.logger),
	)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(p.logger),
		orchestrator.WithMetrics(p.metrics),
		orchestrator.WithTracer(p.tracer),
		orchestrator.WithDependencies(dependencyMap()),
		orchestrator.WithDecoder(stations.DecodeResult),
		orchestrator.WithObserver(p.observe),
		orchestrator.WithClock(p.now),
	}
	if p.scheduler != nil {
		orchOpts = append(orchOpts, orchestrator.WithScheduler(p.scheduler))
	}
	if cfg.EnableCheckpoints {
		p.checkpoints = checkpoint.NewManager(filepath.Join(cfg.OutputDir, CheckpointDir))
		orchOpts = append(orchOpts, orchestrator.WithCheckpoints(p.checkpoints))
	}

	orch, err := orchestrator.New(templates, cfg.orchestratorConfig(), orchOpts...)
	if err != nil {
		return nil, err
	}
	p.orch = orch

	p.health = health.NewManager()
	p.health.AddChecker(health.NewTaskClientChecker(p.client))
	p.health.AddChecker(health.NewOutputDirChecker(cfg.OutputDir))

	p.logger.Info("pipeline initialized",
		"output_dir", cfg.OutputDir,
		"primary_model", cfg.PrimaryModel,
		"fallback_model", cfg.FallbackModel,
		"max_retries", cfg.MaxRetries,
		"checkpoints", cfg.EnableCheckpoints,
	)
	return p, nil
}

// Create builds a pipeline and logs the result of an initial health check.
func Create(ctx context.Context, cfg Config, opts ...Option) (*Pipeline, error) {
	p, err := New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	status := p.HealthCheck(ctx)
	if status.Healthy {
		p.logger.Info("pipeline health check passed")
	} else {
		p.logger.Warn("pipeline health check failed", "details", status.Details)
	}
	return p, nil
}

// NewQuick creates a pipeline with the built-in quick profile.
func NewQuick(ctx context.Context, apiKey, outputDir string, opts ...Option) (*Pipeline, error) {
	return newFromBuiltin(ctx, "quick", apiKey, outputDir, opts...)
}

// NewRobust creates a pipeline with the built-in robust profile.
func NewRobust(ctx context.Context, apiKey, outputDir string, opts ...Option) (*Pipeline, error) {
	return newFromBuiltin(ctx, "robust", apiKey, outputDir, opts...)
}

func newFromBuiltin(ctx context.Context, name, apiKey, outputDir string, opts ...Option) (*Pipeline, error) {
	profile, err := profiles.Builtin(name)
	if err != nil {
		return nil, err
	}
	cfg := ConfigFromProfile(profile)
	cfg.APIKey = apiKey
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	return New(ctx, cfg, opts...)
}

func (p *Pipeline) buildClient(ctx context.Context) (taskclient.Client, error) {
	if p.cfg.APIKey == "" {
		p.logger.Warn("GEMINI_API_KEY not set; analysis calls will fail")
		return taskclient.Unavailable{}, nil
	}

	gemini, err := taskclient.NewGemini(ctx, taskclient.GeminiConfig{
		APIKey:       p.cfg.APIKey,
		DefaultModel: p.cfg.PrimaryModel,
	})
	if err != nil {
		return nil, err
	}

	return taskclient.NewResilient(gemini, p.cfg.resilientConfig(),
		taskclient.WithLogger(p.logger),
		taskclient.WithMetrics(p.metrics),
		taskclient.WithTracer(p.tracer),
	), nil
}

func dependencyMap() map[station.Key][]station.Key {
	deps := make(map[station.Key][]station.Key)
	for _, d := range stations.Definitions() {
		deps[d.Key] = d.DependsOn
	}
	return deps
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Checkpoints returns the checkpoint manager, or nil when checkpoints are disabled.
func (p *Pipeline) Checkpoints() *checkpoint.Manager {
	return p.checkpoints
}

// RunFullAnalysis runs all seven stations.
func (p *Pipeline) RunFullAnalysis(ctx context.Context, in Input) (*Result, error) {
	return p.run(ctx, RunKindFull, in, orchestrator.RunOptions{})
}

// RunPartialAnalysis runs the stations selected by opts.
func (p *Pipeline) RunPartialAnalysis(ctx context.Context, in Input, opts orchestrator.RunOptions) (*Result, error) {
	return p.run(ctx, RunKindPartial, in, opts)
}

// ResumeAnalysis continues the checkpointed run runID over the same text.
func (p *Pipeline) ResumeAnalysis(ctx context.Context, in Input, runID string) (*Result, error) {
	if p.checkpoints == nil {
		return nil, errors.New(errors.ErrCodeCheckpointInvalid, "checkpoints are disabled for this pipeline").
			WithSuggestion("Enable checkpoints in the profile to resume runs")
	}
	state, err := p.checkpoints.Load(runID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, RunKindFull, in, orchestrator.RunOptions{Resume: state, RunID: runID})
}

func (p *Pipeline) run(ctx context.Context, kind string, in Input, opts orchestrator.RunOptions) (*Result, error) {
	if err := in.Validate(); err != nil {
		p.metrics.RecordError(string(errors.ErrCodeInputInvalid), "pipeline")
		p.logger.WithError(err).Warn("analysis input rejected")
		return nil, err
	}
	in = in.Normalize()

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Overrides == nil {
		opts.Overrides = p.cfg.Stations
	}

	ctx, span := p.tracer.StartRunSpan(ctx, opts.RunID, kind)
	defer span.End()

	logger := p.logger.With("run_id", opts.RunID, "kind", kind)
	logger.Info("starting analysis",
		"text_length", utf8.RuneCountInString(in.ScreenplayText),
		"language", in.Language,
		"title", in.ProjectName(),
		"start_from", opts.StartFromStation,
		"end_at", opts.EndAtStation,
		"skip", opts.SkipStations,
	)

	res, err := p.orch.Execute(ctx, in.ScreenplayText, in.ProjectName(), opts)
	if res == nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Error("analysis failed")
		return nil, err
	}

	out := &Result{
		Outputs: res.Outputs,
		Metadata: RunMetadata{
			RunID:             res.Metadata.RunID,
			StationsCompleted: res.Metadata.StationsCompleted,
			StationsFailed:    res.Metadata.StationsFailed,
			TotalDuration:     res.Metadata.TotalDuration,
			StartedAt:         res.Metadata.StartedAt,
			FinishedAt:        res.Metadata.FinishedAt,
		},
		Orchestration: res,
		Performance:   ComputePerformance(res),
	}
	out.Metadata.ReportPath = p.saveReport(res)

	p.metrics.RecordRun(kind, res.Success, res.Metadata.TotalDuration)
	telemetry.RecordDuration(span, "run_duration", res.Metadata.TotalDuration)

	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Warn("analysis interrupted",
			"stations_completed", res.Metadata.StationsCompleted,
		)
		return out, err
	}

	telemetry.RecordSuccess(span,
		attribute.Int("stations_completed", res.Metadata.StationsCompleted),
		attribute.Int("stations_failed", res.Metadata.StationsFailed),
	)
	logger.Info("analysis completed",
		"success", res.Success,
		"stations_completed", res.Metadata.StationsCompleted,
		"stations_failed", res.Metadata.StationsFailed,
		"average_station_time", out.Performance.AverageStationTime,
		"success_rate", out.Performance.SuccessRate,
	)
	return out, nil
}

func (p *Pipeline) observe(entry orchestrator.ProgressEntry) {
	if p.cfg.EnableProgressTracking {
		p.logger.Info("station progress",
			"station", entry.StationKey,
			"status", entry.Status,
			"attempt", entry.Attempt,
			"duration", entry.Duration,
		)
	}
	if p.progress != nil {
		p.progress(entry)
	}
}

// StationStatus returns the status of every station, keyed station1..station7.
func (p *Pipeline) StationStatus() map[station.Key]orchestrator.ProgressStatus {
	return p.orch.StationStatus()
}

// ProgressLog returns every attempt recorded since the last ClearProgress.
func (p *Pipeline) ProgressLog() []orchestrator.ProgressEntry {
	return p.orch.ProgressLog()
}

// Errors returns every failed attempt recorded since the last ClearProgress.
func (p *Pipeline) Errors() []orchestrator.ErrorEntry {
	return p.orch.Errors()
}

// ClearProgress clears the progress log and error list.
func (p *Pipeline) ClearProgress() {
	p.orch.Reset()
}

// HealthCheck issues one trivial task call and one write/delete cycle in the
// output directory. It never fails; problems are reported in the status.
func (p *Pipeline) HealthCheck(ctx context.Context) HealthStatus {
	report := p.health.Run(ctx)

	status := HealthStatus{
		Healthy: report.Healthy(),
		Details: report.Details(),
	}
	if r, ok := report.Result(health.TaskClientCheckName); ok {
		status.TaskClientHealthy = r.Usable()
	}
	if r, ok := report.Result(health.OutputDirCheckName); ok {
		status.OutputDirectoryHealthy = r.Usable()
	}
	return status
}

// EstimateAnalysisTime predicts the duration of a full run.
func (p *Pipeline) EstimateAnalysisTime(textLength int) Estimate {
	return EstimateAnalysisTime(textLength)
}
