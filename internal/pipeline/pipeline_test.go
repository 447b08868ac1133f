package pipeline

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/stations/stationstest"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
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

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

func arabicScreenplay() string {
	return strings.Repeat("ب", 500)
}

func newTestPipeline(t *testing.T, client taskclient.Client, opts ...Option) (*Pipeline, *recordingScheduler) {
	t.Helper()
	sched := &recordingScheduler{}
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()

	opts = append([]Option{WithTaskClient(client), WithScheduler(sched)}, opts...)
	p, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return p, sched
}

func TestRunFullAnalysisEndToEnd(t *testing.T) {
	client := &stationstest.Client{}
	var seen []orchestrator.ProgressEntry
	p, sched := newTestPipeline(t, client, WithProgress(func(e orchestrator.ProgressEntry) {
		seen = append(seen, e)
	}))

	res, err := p.RunFullAnalysis(context.Background(), Input{
		ScreenplayText: arabicScreenplay(),
		Language:       LanguageArabic,
		Context:        &Context{Title: "المخبز"},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, res.Metadata.StationsCompleted)
	assert.Equal(t, 0, res.Metadata.StationsFailed)
	assert.Len(t, res.Outputs, 7)
	assert.True(t, res.Orchestration.Success)
	assert.NotNil(t, res.Orchestration.Metadata.OverallScore)
	assert.NotEmpty(t, res.Orchestration.Metadata.OverallRating)
	assert.Equal(t, 100.0, res.Performance.SuccessRate)
	assert.Equal(t, 0, res.Performance.TotalRetries)
	assert.Len(t, seen, 7)
	assert.Equal(t, 6, sched.count(), "one delay between each pair of stations")

	require.NotEmpty(t, res.Metadata.ReportPath)
	report, err := os.ReadFile(res.Metadata.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), ReportHeader)
	assert.True(t, strings.HasPrefix(filepath.Base(res.Metadata.ReportPath), "orchestration-result-"))

	assert.True(t, p.Checkpoints().Exists(res.Metadata.RunID))

	status := p.StationStatus()
	for n := 1; n <= 7; n++ {
		assert.Equal(t, orchestrator.ProgressCompleted, status[station.KeyFor(n)])
	}
}

func TestRunPartialAnalysisScoping(t *testing.T) {
	p, _ := newTestPipeline(t, &stationstest.Client{})

	res, err := p.RunPartialAnalysis(context.Background(), Input{ScreenplayText: arabicScreenplay()},
		orchestrator.RunOptions{StartFromStation: 3, EndAtStation: 5})
	require.NoError(t, err)

	keys := make([]station.Key, 0, len(res.Outputs))
	for k := range res.Outputs {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []station.Key{"station3", "station4", "station5"}, keys)
	assert.Equal(t, 3, res.Metadata.StationsCompleted)
}

func TestRunPartialAnalysisInvalidRange(t *testing.T) {
	client := &stationstest.Client{}
	p, _ := newTestPipeline(t, client)

	res, err := p.RunPartialAnalysis(context.Background(), Input{ScreenplayText: arabicScreenplay()},
		orchestrator.RunOptions{StartFromStation: 6, EndAtStation: 2})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, client.Calls())
}

func TestRunRejectsInvalidInput(t *testing.T) {
	client := &stationstest.Client{}
	p, _ := newTestPipeline(t, client)

	res, err := p.RunFullAnalysis(context.Background(), Input{
		ScreenplayText: "   قصير   ",
		Language:       "fr",
	})
	require.Error(t, err)
	assert.Nil(t, res)

	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInputInvalid, code)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "at least 100 characters")
	assert.Contains(t, err.Error(), `unsupported language "fr"`)
	assert.Zero(t, client.Calls(), "no station may run on invalid input")
	assert.Empty(t, p.ProgressLog())
}

func TestResumeAnalysis(t *testing.T) {
	p, _ := newTestPipeline(t, &stationstest.Client{})
	in := Input{ScreenplayText: arabicScreenplay()}

	first, err := p.RunPartialAnalysis(context.Background(), in,
		orchestrator.RunOptions{RunID: "resume-me", EndAtStation: 2})
	require.NoError(t, err)
	require.Equal(t, 2, first.Metadata.StationsCompleted)

	res, err := p.ResumeAnalysis(context.Background(), in, "resume-me")
	require.NoError(t, err)

	assert.Len(t, res.Outputs, 7)
	assert.Equal(t, 2, res.Orchestration.Metadata.StationsRestored)
	assert.Equal(t, 5, res.Metadata.StationsCompleted)
	assert.Equal(t, "resume-me", res.Metadata.RunID)
}

func TestResumeAnalysisUnknownRun(t *testing.T) {
	p, _ := newTestPipeline(t, &stationstest.Client{})

	_, err := p.ResumeAnalysis(context.Background(), Input{ScreenplayText: arabicScreenplay()}, "missing")
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeCheckpointInvalid, code)
}

func TestClearProgress(t *testing.T) {
	p, _ := newTestPipeline(t, &stationstest.Client{})

	_, err := p.RunPartialAnalysis(context.Background(), Input{ScreenplayText: arabicScreenplay()},
		orchestrator.RunOptions{StartFromStation: 1, EndAtStation: 1})
	require.NoError(t, err)
	require.Len(t, p.ProgressLog(), 1)

	p.ClearProgress()
	assert.Empty(t, p.ProgressLog())
	assert.Empty(t, p.Errors())
}

func TestHealthCheckPropagatesClientError(t *testing.T) {
	client := taskclient.ClientFunc(func(context.Context, taskclient.Request) (taskclient.Response, error) {
		return taskclient.Response{}, stderrors.New("quota exhausted for project")
	})
	p, _ := newTestPipeline(t, client)

	status := p.HealthCheck(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, status.TaskClientHealthy)
	assert.True(t, status.OutputDirectoryHealthy)
	assert.Contains(t, status.Details, "quota exhausted for project")
}

func TestHealthCheckHealthy(t *testing.T) {
	p, _ := newTestPipeline(t, &stationstest.Client{})

	status := p.HealthCheck(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.TaskClientHealthy)
	assert.True(t, status.OutputDirectoryHealthy)
	assert.Empty(t, status.Details)
}

func TestNewFailsOnUnusableOutputDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(file, "reports")

	_, err := New(context.Background(), cfg, WithTaskClient(&stationstest.Client{}))
	require.Error(t, err)
	assert.True(t, errors.IsInfrastructure(err))
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeOutputDir, code)
}

func TestNewWithoutAPIKeyUsesUnavailableClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()

	p, err := New(context.Background(), cfg, WithScheduler(&recordingScheduler{}))
	require.NoError(t, err)

	status := p.HealthCheck(context.Background())
	assert.False(t, status.TaskClientHealthy)
	assert.True(t, status.OutputDirectoryHealthy)
}

func TestPresets(t *testing.T) {
	quick, err := NewQuick(context.Background(), "", t.TempDir(), WithTaskClient(&stationstest.Client{}))
	require.NoError(t, err)
	assert.Equal(t, taskclient.ModelFlash, quick.Config().PrimaryModel)
	assert.Equal(t, 2, quick.Config().MaxRetries)
	assert.Equal(t, 4*time.Second, quick.Config().DelayBetweenStations)
	assert.Equal(t, 60*time.Second, quick.Config().Timeout)

	robust, err := NewRobust(context.Background(), "", t.TempDir(), WithTaskClient(&stationstest.Client{}))
	require.NoError(t, err)
	assert.Equal(t, taskclient.ModelPro, robust.Config().PrimaryModel)
	assert.Equal(t, taskclient.ModelFlash, robust.Config().FallbackModel)
	assert.Equal(t, 5, robust.Config().MaxRetries)
	assert.Equal(t, 180*time.Second, robust.Config().Timeout)
	assert.True(t, robust.Config().EnableCaching)
}

func TestEstimateAnalysisTime(t *testing.T) {
	est := EstimateAnalysisTime(1000)

	assert.Equal(t, 254600*time.Millisecond, est.Total)
	assert.Len(t, est.Breakdown, 7)
	assert.Equal(t, 30400*time.Millisecond, est.Breakdown["station1"])
	assert.Equal(t, 30600*time.Millisecond, est.Breakdown["station3"])
	assert.Equal(t, 30200*time.Millisecond, est.Breakdown["station4"])

	zero := EstimateAnalysisTime(0)
	assert.Equal(t, 252*time.Second, zero.Total)
}
