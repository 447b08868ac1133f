package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
	"github.com/felixgeelhaar/dramascope/internal/pipeline"
	"github.com/felixgeelhaar/dramascope/internal/profiles"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/telemetry"
	"github.com/felixgeelhaar/dramascope/internal/version"
)

// runtime holds the ambient services built once per command invocation.
type runtime struct {
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracer   *telemetry.Tracer

	shutdownTracer func(context.Context) error
	metricsServer  *http.Server
}

var current *runtime

func newRuntime(ctx context.Context) (*runtime, error) {
	info := version.GetInfo()

	logCfg := log.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	logCfg.Output = os.Stderr
	logCfg.ServiceVersion = info.Version
	logger := log.New(logCfg)

	reg, m := metrics.NewRegistry()

	traceCfg := telemetry.DefaultConfig()
	traceCfg.ServiceVersion = info.Version
	traceCfg, err := traceCfg.WithEndpoint(otlpEndpoint)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to set up tracing", err).
			WithSuggestion("Pass --otlp-endpoint as host:port or an http(s) URL")
	}
	tp, shutdown, err := telemetry.NewProvider(ctx, traceCfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to set up tracing", err).
			WithSuggestion("Check --otlp-endpoint or unset OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	rt := &runtime{
		logger:         logger,
		registry:       reg,
		metrics:        m,
		tracer:         telemetry.NewTracer(tp),
		shutdownTracer: shutdown,
	}

	if metricsAddr != "" {
		rt.serveMetrics(metricsAddr)
	}
	return rt, nil
}

func (r *runtime) serveMetrics(addr string) {
	r.metricsServer = metrics.NewServer(addr, r.registry)

	go func() {
		if err := r.metricsServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			r.logger.WithError(err).Error("metrics server stopped", "addr", addr)
		}
	}()
	r.logger.Info("serving metrics", "addr", addr, "path", metrics.Path)
}

// closeRuntime flushes traces and logs. It is safe to call more than once.
func closeRuntime(ctx context.Context) error {
	rt := current
	if rt == nil {
		return nil
	}
	current = nil

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if rt.metricsServer != nil {
		errs = append(errs, rt.metricsServer.Shutdown(ctx))
	}
	if rt.shutdownTracer != nil {
		errs = append(errs, rt.shutdownTracer(ctx))
	}
	// Syncing stderr fails on some terminals; it carries no data loss
	_ = rt.logger.Sync()

	return stderrors.Join(errs...)
}

// overrideFlags are the per-run profile and station overrides shared by the
// commands that build a pipeline.
type overrideFlags struct {
	primaryModel    string
	fallbackModel   string
	noRetry         bool
	maxRetries      int
	retryDelay      time.Duration
	stationDelay    time.Duration
	callTimeout     time.Duration
	caching         bool
	detailedLogging bool
	failurePolicy   string
	noCheckpoints   bool

	temperature  float64
	maxTokens    int
	noCompliance bool
	noUncertain  bool
}

func (o *overrideFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.primaryModel, "model", "", "primary model (overrides the profile)")
	f.StringVar(&o.fallbackModel, "fallback-model", "", "fallback model used when the primary fails")
	f.BoolVar(&o.noRetry, "no-retry", false, "run every station exactly once")
	f.IntVar(&o.maxRetries, "max-retries", 0, "attempts per station")
	f.DurationVar(&o.retryDelay, "retry-delay", 0, "base delay between attempts")
	f.DurationVar(&o.stationDelay, "station-delay", 0, "delay between stations")
	f.DurationVar(&o.callTimeout, "timeout", 0, "timeout of one model call")
	f.BoolVar(&o.caching, "cache", false, "cache identical model calls")
	f.BoolVar(&o.detailedLogging, "detailed-logging", false, "log every station attempt")
	f.StringVar(&o.failurePolicy, "failure-policy", "", "continue or abort after a failed station")
	f.BoolVar(&o.noCheckpoints, "no-checkpoints", false, "do not persist station results")
	f.Float64Var(&o.temperature, "temperature", 0, "sampling temperature of every station (0-2)")
	f.IntVar(&o.maxTokens, "max-tokens", 0, "output token limit of every model call")
	f.BoolVar(&o.noCompliance, "no-compliance", false, "skip the constitutional compliance check")
	f.BoolVar(&o.noUncertain, "no-uncertainty", false, "skip the uncertainty pass")
}

// profileFlags returns the overrides for the flags the user actually set.
func (o *overrideFlags) profileFlags(cmd *cobra.Command) profiles.Flags {
	f := cmd.Flags()
	var flags profiles.Flags

	if f.Changed("model") {
		flags.PrimaryModel = &o.primaryModel
	}
	if f.Changed("fallback-model") {
		flags.FallbackModel = &o.fallbackModel
	}
	if f.Changed("no-retry") {
		enabled := !o.noRetry
		flags.EnableRetry = &enabled
	}
	if f.Changed("max-retries") {
		flags.MaxRetries = &o.maxRetries
	}
	if f.Changed("retry-delay") {
		flags.RetryDelay = &o.retryDelay
	}
	if f.Changed("station-delay") {
		flags.DelayBetweenStations = &o.stationDelay
	}
	if f.Changed("timeout") {
		flags.CallTimeout = &o.callTimeout
	}
	if f.Changed("cache") {
		flags.Caching = &o.caching
	}
	if f.Changed("detailed-logging") {
		flags.DetailedLogging = &o.detailedLogging
	}
	if f.Changed("failure-policy") {
		flags.FailurePolicy = &o.failurePolicy
	}
	if f.Changed("no-checkpoints") {
		enabled := !o.noCheckpoints
		flags.Checkpoints = &enabled
	}
	return flags
}

// applyStations sets the station overrides the user asked for on ov.
func (o *overrideFlags) applyStations(cmd *cobra.Command, ov *station.Overrides) {
	f := cmd.Flags()
	if f.Changed("temperature") {
		t := o.temperature
		ov.Temperature = &t
	}
	if f.Changed("max-tokens") {
		n := o.maxTokens
		ov.MaxTokens = &n
	}
	if f.Changed("no-compliance") {
		on := !o.noCompliance
		ov.ComplianceCheck = &on
	}
	if f.Changed("no-uncertainty") {
		on := !o.noUncertain
		ov.UncertaintyPass = &on
	}
}

// resolveProfile loads the selected profile and applies the flag overrides.
func resolveProfile(cmd *cobra.Command, o *overrideFlags) (*profiles.Profile, error) {
	base, err := profileLoader().Load(profileName)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return base, nil
	}

	merged := profiles.ApplyFlags(base, o.profileFlags(cmd))
	o.applyStations(cmd, &merged.Stations)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// buildPipeline creates a pipeline for the resolved profile wired to the
// runtime logger, metrics and tracer.
func buildPipeline(cmd *cobra.Command, o *overrideFlags, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	profile, err := resolveProfile(cmd, o)
	if err != nil {
		return nil, err
	}

	cfg := pipeline.ConfigFromProfile(profile)
	cfg.APIKey = apiKey
	cfg.OutputDir = outputDir

	rt := current
	if rt == nil {
		return nil, fmt.Errorf("runtime not initialized")
	}
	rt.logger.Debug("resolved profile",
		"profile", profile.Name,
		"primary_model", cfg.PrimaryModel,
		"fallback_model", cfg.FallbackModel,
		"max_retries", cfg.MaxRetries,
	)

	base := []pipeline.Option{
		pipeline.WithLogger(rt.logger),
		pipeline.WithMetrics(rt.metrics),
		pipeline.WithTracer(rt.tracer),
	}
	return pipeline.New(cmd.Context(), cfg, append(base, opts...)...)
}
