package taskclient

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
)

// scriptedClient returns the next scripted outcome per call and records requests.
type scriptedClient struct {
	mu       sync.Mutex
	outcomes []outcome
	requests []Request
}

func (s *scriptedClient) Generate(_ context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.outcomes) == 0 {
		return Response{}, stderrors.New("no scripted outcome")
	}
	o := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return o.resp, o.err
}

func (s *scriptedClient) models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Model
	}
	return out
}

func fastConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:    time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	}
}

func ok(text string) outcome {
	return outcome{resp: Response{Content: PlainContent(text)}}
}

func fail(msg string) outcome {
	return outcome{err: stderrors.New(msg)}
}

func TestResilientRetriesThenSucceeds(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{fail("503"), fail("503"), ok("done")}}
	_, m := metrics.NewRegistry()
	r := NewResilient(inner, fastConfig(), WithMetrics(m))

	resp, err := r.Generate(context.Background(), Request{Model: ModelPro, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "done", ExtractText(resp.Content))
	assert.Equal(t, ModelPro, resp.Model)
	assert.Len(t, inner.requests, 3)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TaskRetries.WithLabelValues(ModelPro)))
}

func TestResilientFallsBackAfterExhaustion(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{fail("a"), fail("b"), ok("from fallback")}}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	cfg.FallbackModel = ModelFlash
	r := NewResilient(inner, cfg)

	resp, err := r.Generate(context.Background(), Request{Model: ModelPro})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", ExtractText(resp.Content))
	assert.Equal(t, []string{ModelPro, ModelPro, ModelFlash}, inner.models())
}

func TestResilientNoFallbackWhenSameModel(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{fail("a"), fail("b")}}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	cfg.FallbackModel = ModelFlash
	r := NewResilient(inner, cfg)

	_, err := r.Generate(context.Background(), Request{Model: ModelFlash})
	require.Error(t, err)
	assert.Equal(t, []string{ModelFlash, ModelFlash}, inner.models())
}

func TestResilientFallbackFailureJoinsErrors(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{fail("primary down"), fail("fallback down")}}
	cfg := fastConfig()
	cfg.MaxRetries = 1
	cfg.FallbackModel = ModelFlashLite
	r := NewResilient(inner, cfg)

	_, err := r.Generate(context.Background(), Request{Model: ModelFlash})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "fallback down")
}

func TestResilientDoesNotRetryMissingCredential(t *testing.T) {
	cfg := fastConfig()
	cfg.FallbackModel = ModelFlash
	r := NewResilient(Unavailable{}, cfg)

	_, err := r.Generate(context.Background(), Request{Model: ModelPro})
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeTaskClientMissing, code)
}

func TestResilientTimeoutRace(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var calls atomic.Int32
	slow := ClientFunc(func(ctx context.Context, req Request) (Response, error) {
		calls.Add(1)
		<-release
		return Response{Content: PlainContent("too late")}, nil
	})

	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	r := NewResilient(slow, cfg)

	start := time.Now()
	_, err := r.Generate(context.Background(), Request{Model: ModelPro})
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeTaskTimeout, code)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilientCache(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{ok("first"), ok("second")}}
	cfg := fastConfig()
	cfg.EnableCaching = true
	cfg.CacheTTL = time.Hour
	_, m := metrics.NewRegistry()
	r := NewResilient(inner, cfg, WithMetrics(m))

	req := Request{Model: ModelPro, Prompt: "same", Temperature: 0.4}
	first, err := r.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "first", ExtractText(second.Content))
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Len(t, inner.requests, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))

	other := req
	other.Temperature = 0.5
	third, err := r.Generate(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, "second", ExtractText(third.Content))
}

func TestResilientCancelledContext(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{fail("x"), fail("y"), fail("z")}}
	r := NewResilient(inner, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, Request{Model: ModelPro})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheKeyDistinguishesFields(t *testing.T) {
	base := Request{Model: "m", Prompt: "ab", SystemInstruction: "c"}
	shifted := Request{Model: "m", Prompt: "b", SystemInstruction: "ca"}

	assert.NotEqual(t, cacheKey(base), cacheKey(shifted))
	assert.Equal(t, cacheKey(base), cacheKey(base))
	assert.Len(t, cacheKey(base), 64)
}

func cachedConfig() ResilientConfig {
	cfg := fastConfig()
	cfg.EnableCaching = true
	cfg.CacheTTL = time.Hour
	return cfg
}

func TestResilientNoCacheAlwaysCallsService(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{ok("up"), fail("service down"), fail("service down"), fail("service down")}}
	r := NewResilient(inner, cachedConfig())

	req := Request{Model: ModelFlash, Prompt: "test", NoCache: true}
	_, err := r.Generate(context.Background(), req)
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service down")
	assert.Zero(t, r.cache.len(), "live calls are not stored")
}

func TestGenerateJSONRetriesPastUnparseableCachedResponse(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{ok("Salma and Omar"), ok(`{"score": 7, "issues": []}`)}}
	r := NewResilient(inner, cachedConfig())
	req := Request{Model: ModelPro, Prompt: "score this"}

	_, err := GenerateJSON[scoreCard](context.Background(), r, req)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	card, err := GenerateJSON[scoreCard](context.Background(), r, req)
	require.NoError(t, err)
	assert.Equal(t, 7.0, card.Score)
	assert.Len(t, inner.requests, 2)

	// the good response is cached
	_, err = GenerateJSON[scoreCard](context.Background(), r, req)
	require.NoError(t, err)
	assert.Len(t, inner.requests, 2)
}

func TestGenerateTextRetriesPastEmptyCachedResponse(t *testing.T) {
	inner := &scriptedClient{outcomes: []outcome{ok("   "), ok("a logline")}}
	r := NewResilient(inner, cachedConfig())
	req := Request{Model: ModelFlash, Prompt: "logline"}

	_, err := GenerateText(context.Background(), r, req)
	require.Error(t, err)

	text, err := GenerateText(context.Background(), r, req)
	require.NoError(t, err)
	assert.Equal(t, "a logline", text)
}

func TestRejectIgnoresClientsWithoutCache(t *testing.T) {
	assert.NotPanics(t, func() {
		Reject(Unavailable{}, Request{})
		Reject(NewResilient(Unavailable{}, fastConfig()), Request{})
	})
}
