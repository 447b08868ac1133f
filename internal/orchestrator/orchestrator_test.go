package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/felixgeelhaar/dramascope/internal/checkpoint"
	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResult struct {
	Key     station.Key `json:"key"`
	Summary string      `json:"summary"`
}

func (r *fakeResult) StationKey() station.Key   { return r.Key }
func (r *fakeResult) NarrativeFields() []string { return []string{r.Summary} }

type scoredResult struct {
	fakeResult
	Score  float64 `json:"score"`
	Rating string  `json:"rating"`
}

func (r *scoredResult) Overall() (float64, string) { return r.Score, r.Rating }

func decodeFake(key station.Key, raw []byte) (station.Result, error) {
	var r fakeResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type fakeStation struct {
	n          int
	failFirst  int
	alwaysFail bool
	result     func() station.Result

	mu    sync.Mutex
	calls int
	prior [][]station.Key
}

func (f *fakeStation) Number() int      { return f.n }
func (f *fakeStation) Name() string     { return fmt.Sprintf("Fake %d", f.n) }
func (f *fakeStation) Agents() []string { return []string{"fake"} }

func (f *fakeStation) Execute(_ context.Context, in station.Input, _ station.Options) (station.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	var keys []station.Key
	for k := range in.Prior {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	f.prior = append(f.prior, keys)

	if f.alwaysFail || f.calls <= f.failFirst {
		return nil, fmt.Errorf("station %d exploded", f.n)
	}
	if f.result != nil {
		return f.result(), nil
	}
	return &fakeResult{Key: station.KeyFor(f.n), Summary: fmt.Sprintf("result %d", f.n)}, nil
}

func (f *fakeStation) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingScheduler struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingScheduler) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingScheduler) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sleeps)
}

func newFakes(n int) []*fakeStation {
	fakes := make([]*fakeStation, n)
	for i := range fakes {
		fakes[i] = &fakeStation{n: i + 1}
	}
	return fakes
}

func templates(fakes []*fakeStation) []*station.Template {
	out := make([]*station.Template, len(fakes))
	for i, f := range fakes {
		out[i] = station.New(f)
	}
	return out
}

func testConfig() Config {
	return Config{
		EnableRetry:          true,
		MaxRetries:           3,
		RetryDelay:           5 * time.Second,
		DelayBetweenStations: 6 * time.Second,
	}
}

func newTestOrchestrator(t *testing.T, fakes []*fakeStation, cfg Config, opts ...Option) (*Orchestrator, *recordingScheduler) {
	t.Helper()
	sched := &recordingScheduler{}
	opts = append([]Option{WithScheduler(sched)}, opts...)
	o, err := New(templates(fakes), cfg, opts...)
	require.NoError(t, err)
	return o, sched
}

func TestRetryAccounting(t *testing.T) {
	fakes := []*fakeStation{{n: 1, alwaysFail: true}}
	cfg := testConfig()
	cfg.MaxRetries = 2
	o, sched := newTestOrchestrator(t, fakes, cfg)

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	require.Len(t, res.ProgressLog, 2)
	assert.Equal(t, 1, res.ProgressLog[0].Attempt)
	assert.Equal(t, 2, res.ProgressLog[1].Attempt)
	for _, e := range res.ProgressLog {
		assert.Equal(t, ProgressFailed, e.Status)
		assert.Contains(t, e.Error, "station 1 exploded")
	}

	assert.Equal(t, station.StatusFailed, res.Outputs["station1"].Metadata.Status)
	assert.Equal(t, ProgressFailed, o.StationStatus()["station1"])
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Station)
	assert.Equal(t, 1, res.Metadata.StationsFailed)
	assert.False(t, res.Success)

	// one retry, after attempt 1, linear delay
	assert.Equal(t, []time.Duration{5 * time.Second}, sched.recorded())
	assert.Equal(t, 2, fakes[0].callCount())
}

func TestRetryThenSucceed(t *testing.T) {
	fakes := []*fakeStation{{n: 1, failFirst: 2}}
	o, sched := newTestOrchestrator(t, fakes, testConfig())

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	statuses := make([]ProgressStatus, len(res.ProgressLog))
	for i, e := range res.ProgressLog {
		statuses[i] = e.Status
	}
	assert.Equal(t, []ProgressStatus{ProgressFailed, ProgressFailed, ProgressCompleted}, statuses)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, sched.recorded())
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Metadata.StationsCompleted)
	assert.Zero(t, res.Metadata.StationsFailed)
	assert.Len(t, res.Errors, 2)
}

func TestRetryDisabled(t *testing.T) {
	fakes := []*fakeStation{{n: 1, alwaysFail: true}}
	cfg := testConfig()
	cfg.EnableRetry = false
	o, sched := newTestOrchestrator(t, fakes, cfg)

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	assert.Len(t, res.ProgressLog, 1)
	assert.Empty(t, sched.recorded())
}

func TestRetryPolicyNext(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		outcome Outcome
		want    Decision
	}{
		{"success stops", RetryPolicy{MaxAttempts: 3, Delay: time.Second}, 1, OutcomeSucceeded, Decision{}},
		{"linear first retry", RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: BackoffLinear}, 1, OutcomeFailed, Decision{Retry: true, Delay: time.Second}},
		{"linear second retry", RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: BackoffLinear}, 2, OutcomeFailed, Decision{Retry: true, Delay: 2 * time.Second}},
		{"constant", RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: BackoffConstant}, 2, OutcomeFailed, Decision{Retry: true, Delay: time.Second}},
		{"exhausted", RetryPolicy{MaxAttempts: 3, Delay: time.Second}, 3, OutcomeFailed, Decision{}},
		{"no delay", RetryPolicy{MaxAttempts: 2}, 1, OutcomeFailed, Decision{Retry: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Next(tt.attempt, tt.outcome))
		})
	}
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, 3, PolicyFor(Config{EnableRetry: true, MaxRetries: 3}).MaxAttempts)
	assert.Equal(t, 1, PolicyFor(Config{EnableRetry: false, MaxRetries: 3}).MaxAttempts)
	assert.Equal(t, 1, PolicyFor(Config{EnableRetry: true, MaxRetries: 0}).MaxAttempts)
}

func TestPartialRunScoping(t *testing.T) {
	fakes := newFakes(7)
	o, sched := newTestOrchestrator(t, fakes, testConfig())

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{StartFromStation: 3, EndAtStation: 5})
	require.NoError(t, err)

	keys := make([]station.Key, 0, len(res.Outputs))
	for k := range res.Outputs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	assert.Equal(t, []station.Key{"station3", "station4", "station5"}, keys)
	assert.Equal(t, 3, res.Metadata.StationsCompleted)

	// delays between stations only, none after the last one
	assert.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second}, sched.recorded())
	assert.Zero(t, fakes[0].callCount())
	assert.Zero(t, fakes[6].callCount())
}

func TestSkipStations(t *testing.T) {
	fakes := newFakes(4)
	o, _ := newTestOrchestrator(t, fakes, testConfig())

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{SkipStations: []int{2, 4}})
	require.NoError(t, err)

	assert.Len(t, res.Outputs, 2)
	assert.Contains(t, res.Outputs, station.Key("station1"))
	assert.Contains(t, res.Outputs, station.Key("station3"))
	assert.Zero(t, fakes[1].callCount())
}

func TestInvalidRunOptions(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakes(7), testConfig())

	tests := []struct {
		name string
		opts RunOptions
		code errors.ErrorCode
	}{
		{"start after end", RunOptions{StartFromStation: 5, EndAtStation: 3}, errors.ErrCodeStationRange},
		{"end out of range", RunOptions{EndAtStation: 8}, errors.ErrCodeStationRange},
		{"negative start", RunOptions{StartFromStation: -1}, errors.ErrCodeStationRange},
		{"unknown skip", RunOptions{SkipStations: []int{9}}, errors.ErrCodeStationUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Execute(context.Background(), "text", "Project", tt.opts)
			require.Error(t, err)
			assert.Nil(t, res)
			code, ok := errors.CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}
	assert.Empty(t, o.ProgressLog())
}

func TestPriorResultsAccumulate(t *testing.T) {
	fakes := newFakes(3)
	fakes[1].alwaysFail = true
	cfg := testConfig()
	cfg.MaxRetries = 1
	o, _ := newTestOrchestrator(t, fakes, cfg)

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, [][]station.Key{nil}, fakes[0].prior)
	assert.Equal(t, [][]station.Key{{"station1"}}, fakes[1].prior)
	assert.Equal(t, [][]station.Key{{"station1", "station2"}}, fakes[2].prior)

	assert.Equal(t, 2, res.Metadata.StationsCompleted)
	assert.Equal(t, 1, res.Metadata.StationsFailed)
	assert.Equal(t, len(res.Outputs), res.Metadata.StationsCompleted+res.Metadata.StationsFailed)
	assert.False(t, res.Success)
	assert.False(t, res.Metadata.Aborted)
}

func TestFailurePolicyAbort(t *testing.T) {
	fakes := newFakes(4)
	fakes[1].alwaysFail = true
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.FailurePolicy = FailureAbort
	o, _ := newTestOrchestrator(t, fakes, cfg)

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	assert.True(t, res.Metadata.Aborted)
	assert.False(t, res.Success)
	assert.Len(t, res.Outputs, 2)
	assert.Zero(t, fakes[2].callCount())
	assert.Equal(t, ProgressPending, o.StationStatus()["station3"])
}

func TestOverallScoreFromFinalStation(t *testing.T) {
	fakes := newFakes(2)
	fakes[1].result = func() station.Result {
		return &scoredResult{fakeResult: fakeResult{Key: "station2", Summary: "final"}, Score: 72.5, Rating: "Good"}
	}
	o, _ := newTestOrchestrator(t, fakes, testConfig())

	res, err := o.Execute(context.Background(), "text", "", RunOptions{})
	require.NoError(t, err)

	require.NotNil(t, res.Metadata.OverallScore)
	assert.Equal(t, 72.5, *res.Metadata.OverallScore)
	assert.Equal(t, "Good", res.Metadata.OverallRating)
}

func TestOverallScoreAbsentWithoutFinalStation(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakes(2), testConfig())

	res, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	assert.Nil(t, res.Metadata.OverallScore)
	assert.Empty(t, res.Metadata.OverallRating)
}

func TestDependencyValidation(t *testing.T) {
	tests := []struct {
		name string
		deps map[station.Key][]station.Key
		ok   bool
	}{
		{"valid", map[station.Key][]station.Key{"station2": {"station1"}, "station3": {"station1", "station2"}}, true},
		{"depends on later station", map[station.Key][]station.Key{"station1": {"station2"}}, false},
		{"unknown predecessor", map[station.Key][]station.Key{"station2": {"station9"}}, false},
		{"unknown station", map[station.Key][]station.Key{"station9": {"station1"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(templates(newFakes(3)), testConfig(), WithDependencies(tt.deps))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			code, _ := errors.CodeOf(err)
			assert.Equal(t, errors.ErrCodeStationGraph, code)
		})
	}
}

func TestNewRequiresStations(t *testing.T) {
	_, err := New(nil, testConfig())
	require.Error(t, err)
}

func TestWarnsAboutExcludedDependencies(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	deps := map[station.Key][]station.Key{
		"station2": {"station1"},
		"station3": {"station2"},
	}
	o, _ := newTestOrchestrator(t, newFakes(3), testConfig(),
		WithDependencies(deps),
		WithLogger(log.FromZap(zap.New(core))),
	)

	_, err := o.Execute(context.Background(), "text", "Project", RunOptions{StartFromStation: 2})
	require.NoError(t, err)

	warnings := logs.FilterMessage("station dependencies excluded from run; defaults will be used").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "station2", fmt.Sprint(warnings[0].ContextMap()["station"]))
}

func TestCancelledContextStopsRun(t *testing.T) {
	fakes := newFakes(3)
	o, _ := newTestOrchestrator(t, fakes, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Execute(ctx, "text", "Project", RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Outputs)
	assert.False(t, res.Success)
	assert.Zero(t, fakes[0].callCount())
}

func TestCheckpointResume(t *testing.T) {
	dir := t.TempDir()
	mgr := checkpoint.NewManager(dir)

	first := newFakes(3)
	first[2].alwaysFail = true
	cfg := testConfig()
	cfg.MaxRetries = 1
	o, _ := newTestOrchestrator(t, first, cfg, WithCheckpoints(mgr), WithDecoder(decodeFake))

	res, err := o.Execute(context.Background(), "screenplay", "Project", RunOptions{RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Metadata.StationsFailed)

	state, err := mgr.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.RunFailed, state.Status)
	assert.Equal(t, []station.Key{"station1", "station2"}, state.Completed())
	assert.Equal(t, []station.Key{"station3"}, state.Failed())

	second := newFakes(3)
	o2, _ := newTestOrchestrator(t, second, cfg, WithCheckpoints(mgr), WithDecoder(decodeFake))

	res, err = o2.Execute(context.Background(), "screenplay", "Project", RunOptions{Resume: state})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.Metadata.RunID)
	assert.Equal(t, 2, res.Metadata.StationsRestored)
	assert.Equal(t, 1, res.Metadata.StationsCompleted)
	assert.True(t, res.Success)
	assert.Zero(t, second[0].callCount())
	assert.Zero(t, second[1].callCount())
	assert.Equal(t, [][]station.Key{{"station1", "station2"}}, second[2].prior)
	assert.Equal(t, "result 1", res.Outputs["station1"].Result.(*fakeResult).Summary)

	state, err = mgr.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.RunCompleted, state.Status)
}

func TestResumeRejectsDifferentText(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakes(1), testConfig(), WithDecoder(decodeFake))
	state := checkpoint.NewState("run-x", "Project", "original text")

	_, err := o.Execute(context.Background(), "changed text", "Project", RunOptions{Resume: state})
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeCheckpointInvalid, code)
}

func TestMetricsAndObserver(t *testing.T) {
	_, m := metrics.NewRegistry()
	fakes := []*fakeStation{{n: 1, failFirst: 1}}

	var mu sync.Mutex
	var observed []ProgressStatus
	o, _ := newTestOrchestrator(t, fakes, testConfig(),
		WithMetrics(m),
		WithObserver(func(e ProgressEntry) {
			mu.Lock()
			observed = append(observed, e.Status)
			mu.Unlock()
		}),
	)

	_, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationAttempts.WithLabelValues("station1", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationAttempts.WithLabelValues("station1", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationRetries.WithLabelValues("station1")))
	assert.Equal(t, []ProgressStatus{ProgressFailed, ProgressCompleted}, observed)
}

func TestProgressAccumulatesUntilReset(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakes(2), testConfig())

	res1, err := o.Execute(context.Background(), "text", "Project", RunOptions{})
	require.NoError(t, err)
	res2, err := o.Execute(context.Background(), "text", "Project", RunOptions{EndAtStation: 1})
	require.NoError(t, err)

	assert.Len(t, res1.ProgressLog, 2)
	assert.Len(t, res2.ProgressLog, 1)
	assert.Len(t, o.ProgressLog(), 3)

	o.Reset()
	assert.Empty(t, o.ProgressLog())
	assert.Empty(t, o.Errors())
	assert.Empty(t, o.StationStatus())
	assert.Equal(t, 3, o.Config().MaxRetries)
}

func TestRealSchedulerSleep(t *testing.T) {
	var s RealScheduler

	assert.NoError(t, s.Sleep(context.Background(), 0))
	assert.NoError(t, s.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, s.Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

// gatedStation blocks its first call until release is closed.
type gatedStation struct {
	started chan int
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedStation) Number() int      { return 1 }
func (g *gatedStation) Name() string     { return "Gated" }
func (g *gatedStation) Agents() []string { return nil }

func (g *gatedStation) Execute(ctx context.Context, _ station.Input, _ station.Options) (station.Result, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	g.started <- call
	if call == 1 {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &fakeResult{Key: "station1", Summary: fmt.Sprintf("call %d", call)}, nil
}

func TestConcurrentExecuteIsSerialized(t *testing.T) {
	gate := &gatedStation{started: make(chan int, 2), release: make(chan struct{})}
	o, err := New([]*station.Template{station.New(gate)}, testConfig(), WithScheduler(&recordingScheduler{}))
	require.NoError(t, err)

	results := make(chan *Result, 2)
	run := func(id string) {
		res, err := o.Execute(context.Background(), "text", "Project", RunOptions{RunID: id})
		assert.NoError(t, err)
		results <- res
	}

	go run("run-a")
	require.Equal(t, 1, <-gate.started)

	go run("run-b")
	select {
	case call := <-gate.started:
		t.Fatalf("second run started station call %d while the first was running", call)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	require.Equal(t, 2, <-gate.started)

	for range 2 {
		res := <-results
		require.Len(t, res.ProgressLog, 1, "run %s", res.Metadata.RunID)
		assert.Equal(t, ProgressCompleted, res.ProgressLog[0].Status)
	}
}
