package taskclient

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
	"github.com/felixgeelhaar/dramascope/internal/telemetry"
)

// ResilientConfig configures the Resilient decorator.
type ResilientConfig struct {
	// Timeout bounds each individual call
	Timeout time.Duration

	// MaxRetries is the number of tries against the requested model
	MaxRetries int

	// BaseDelay and MaxDelay shape the exponential backoff between tries
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// FallbackModel receives one extra try after the requested model is exhausted
	FallbackModel string

	// RequestsPerMinute caps call throughput; 0 disables limiting
	RequestsPerMinute int

	// EnableCaching turns on the response cache
	EnableCaching bool
	CacheSize     int
	CacheTTL      time.Duration
}

// DefaultResilientConfig mirrors the service defaults: 120s timeout,
// 3 tries, 1s..30s backoff, 60 requests per minute, 1h cache.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:           120 * time.Second,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		FallbackModel:     ModelFlash,
		RequestsPerMinute: 60,
		EnableCaching:     true,
		CacheSize:         512,
		CacheTTL:          time.Hour,
	}
}

// ResilientOption configures optional collaborators.
type ResilientOption func(*Resilient)

// WithLogger sets the logger
func WithLogger(l *log.Logger) ResilientOption {
	return func(r *Resilient) { r.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) ResilientOption {
	return func(r *Resilient) { r.metrics = m }
}

// WithTracer sets the tracer
func WithTracer(t *telemetry.Tracer) ResilientOption {
	return func(r *Resilient) { r.tracer = t }
}

// Resilient decorates a Client with a timeout race, retries with
// exponential backoff, a fallback model, rate limiting and caching.
type Resilient struct {
	inner   Client
	config  ResilientConfig
	limiter *rate.Limiter
	cache   *responseCache
	logger  *log.Logger
	metrics *metrics.Metrics
	tracer  *telemetry.Tracer
}

// NewResilient wraps inner.
func NewResilient(inner Client, cfg ResilientConfig, opts ...ResilientOption) *Resilient {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	r := &Resilient{
		inner:  inner,
		config: cfg,
		logger: log.Nop(),
	}
	if cfg.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	if cfg.EnableCaching {
		size := cfg.CacheSize
		if size <= 0 {
			size = 512
		}
		r.cache = newResponseCache(size, cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate implements Client
func (r *Resilient) Generate(ctx context.Context, req Request) (Response, error) {
	cache := r.cache
	if req.NoCache {
		cache = nil
	}
	if cache != nil {
		if resp, ok := cache.get(req); ok {
			r.metrics.RecordCacheLookup(true)
			resp.Cached = true
			return resp, nil
		}
		r.metrics.RecordCacheLookup(false)
	}

	resp, err := r.generateWithRetry(ctx, req)
	if err != nil && r.shouldFallback(ctx, req, err) {
		r.logger.Warn("primary model exhausted, trying fallback",
			"model", req.Model, "fallback", r.config.FallbackModel, "error", err.Error())
		r.metrics.RecordFallback(req.Model, r.config.FallbackModel)

		fallback := req
		fallback.Model = r.config.FallbackModel
		var ferr error
		resp, ferr = r.attempt(ctx, fallback)
		if ferr != nil {
			return Response{}, stderrors.Join(err, ferr)
		}
		err = nil
	}
	if err != nil {
		return Response{}, err
	}

	if cache != nil {
		cache.put(req, resp)
	}
	return resp, nil
}

// Forget drops the cached response to req, if any.
func (r *Resilient) Forget(req Request) {
	if r.cache != nil {
		r.cache.remove(req)
	}
}

func (r *Resilient) shouldFallback(ctx context.Context, req Request, err error) bool {
	if ctx.Err() != nil || r.config.FallbackModel == "" || r.config.FallbackModel == req.Model {
		return false
	}
	code, _ := errors.CodeOf(err)
	return code != errors.ErrCodeTaskClientMissing
}

func (r *Resilient) generateWithRetry(ctx context.Context, req Request) (Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.BaseDelay
	b.MaxInterval = r.config.MaxDelay
	b.Multiplier = 2

	tries := 0
	op := func() (Response, error) {
		tries++
		if tries > 1 {
			r.metrics.RecordTaskRetry(req.Model)
		}
		resp, err := r.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, backoff.Permanent(ctx.Err())
		}
		if code, _ := errors.CodeOf(err); code == errors.ErrCodeTaskClientMissing {
			return Response{}, backoff.Permanent(err)
		}
		r.logger.Debug("task call failed", "model", req.Model, "try", tries, "error", err.Error())
		return Response{}, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.config.MaxRetries)),
	)
}

// attempt runs a single rate-limited, time-bounded call.
func (r *Resilient) attempt(ctx context.Context, req Request) (Response, error) {
	if r.limiter != nil {
		waitStart := time.Now()
		if err := r.limiter.Wait(ctx); err != nil {
			return Response{}, errors.Wrap(errors.ErrCodeTaskRateLimit, "rate limiter wait aborted", err)
		}
		r.metrics.RecordRateLimitWait(time.Since(waitStart))
	}

	ctx, span := r.tracer.StartTaskSpan(ctx, req.Model)
	defer span.End()

	start := time.Now()
	resp, err := r.race(ctx, req)
	elapsed := time.Since(start)
	r.metrics.RecordTaskCall(req.Model, err == nil, elapsed)

	if err != nil {
		telemetry.RecordError(span, err)
		return Response{}, err
	}
	if resp.Latency == 0 {
		resp.Latency = elapsed
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	telemetry.RecordSuccess(span, attribute.Int("tokens_used", resp.TokensUsed))
	return resp, nil
}

type outcome struct {
	resp Response
	err  error
}

// race starts the call and a timer together; whichever settles first wins.
// The call is not cancelled when the timer wins; its result is dropped.
func (r *Resilient) race(ctx context.Context, req Request) (Response, error) {
	if r.config.Timeout <= 0 {
		return r.inner.Generate(ctx, req)
	}

	done := make(chan outcome, 1)
	go func() {
		resp, err := r.inner.Generate(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.resp, o.err
	case <-timer.C:
		return Response{}, errors.NewTaskTimeoutError(req.Model, r.config.Timeout.String())
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
