// Package orchestrator runs the analysis stations of one screenplay in their
// fixed order, retrying failed stations and recording a progress log entry
// for every attempt.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/dramascope/internal/checkpoint"
	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/telemetry"
)

// DefaultProjectName labels runs started without a project name.
const DefaultProjectName = "untitled-project"

// FailurePolicy decides what happens after a station exhausts its retries.
type FailurePolicy string

const (
	// FailureContinue records the failure and moves on to the next station.
	FailureContinue FailurePolicy = "continue"
	// FailureAbort stops the run after the first failed station.
	FailureAbort FailurePolicy = "abort"
)

// Config holds the orchestration settings.
type Config struct {
	EnableRetry          bool
	MaxRetries           int
	RetryDelay           time.Duration
	DelayBetweenStations time.Duration
	FailurePolicy        FailurePolicy
	Backoff              Backoff
	DetailedLogging      bool
}

// DefaultConfig returns 3 attempts, a 5s linear retry delay and 6s between stations.
func DefaultConfig() Config {
	return Config{
		EnableRetry:          true,
		MaxRetries:           3,
		RetryDelay:           5 * time.Second,
		DelayBetweenStations: 6 * time.Second,
		FailurePolicy:        FailureContinue,
		Backoff:              BackoffLinear,
		DetailedLogging:      true,
	}
}

// ProgressStatus is the status of a station in the progress log.
type ProgressStatus string

const (
	ProgressPending   ProgressStatus = "pending"
	ProgressRunning   ProgressStatus = "running"
	ProgressRetrying  ProgressStatus = "retrying"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressEntry records one station attempt.
type ProgressEntry struct {
	StationNumber int            `json:"station_number"`
	StationKey    station.Key    `json:"station_key"`
	StationName   string         `json:"station_name"`
	Status        ProgressStatus `json:"status"`
	Attempt       int            `json:"attempt"`
	Duration      time.Duration  `json:"duration"`
	Timestamp     time.Time      `json:"timestamp"`
	Error         string         `json:"error,omitempty"`
}

// ErrorEntry records one failed station attempt.
type ErrorEntry struct {
	Station    int         `json:"station"`
	StationKey station.Key `json:"station_key"`
	Error      string      `json:"error"`
	Timestamp  time.Time   `json:"timestamp"`
}

// RunOptions restricts a run to a subset of the stations.
type RunOptions struct {
	// StartFromStation and EndAtStation bound the run (1-based, inclusive);
	// zero means the first and the last station.
	StartFromStation int
	EndAtStation     int
	SkipStations     []int
	// Resume continues a checkpointed run over the same text.
	Resume *checkpoint.State
	// RunID names the run; a random UUID is used when empty.
	RunID string
	// Overrides is passed to every station.
	Overrides *station.Overrides
}

// Metadata summarizes one run.
type Metadata struct {
	RunID             string        `json:"run_id"`
	TotalDuration     time.Duration `json:"total_duration"`
	StationsCompleted int           `json:"stations_completed"`
	StationsFailed    int           `json:"stations_failed"`
	StationsRestored  int           `json:"stations_restored"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	OverallScore      *float64      `json:"overall_score,omitempty"`
	OverallRating     string        `json:"overall_rating,omitempty"`
	Aborted           bool          `json:"aborted,omitempty"`
}

// Result is the outcome of Execute.
type Result struct {
	Success     bool                            `json:"success"`
	Outputs     map[station.Key]*station.Output `json:"outputs"`
	Metadata    Metadata                        `json:"metadata"`
	ProgressLog []ProgressEntry                 `json:"progress_log"`
	Errors      []ErrorEntry                    `json:"errors"`
}

// overallScorer is implemented by the result of the finalization station.
type overallScorer interface {
	Overall() (float64, string)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) { o.scheduler = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer enables a span per station attempt.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithCheckpoints saves the run state after every station.
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(o *Orchestrator) { o.checkpoints = m }
}

// WithDependencies declares which stations read the results of which.
func WithDependencies(deps map[station.Key][]station.Key) Option {
	return func(o *Orchestrator) { o.deps = deps }
}

// WithDecoder sets how checkpointed results are decoded on resume.
func WithDecoder(d checkpoint.Decoder) Option {
	return func(o *Orchestrator) { o.decode = d }
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(fn func(ProgressEntry)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator executes stations strictly one after another. The progress
// log and error list are owned by the orchestrator; stations never see them.
type Orchestrator struct {
	stations     []*station.Template
	cfg          Config
	policy       RetryPolicy
	deps         map[station.Key][]station.Key
	predecessors map[string]map[string]graph.Edge[string]

	scheduler   Scheduler
	logger      *log.Logger
	metrics     *metrics.Metrics
	tracer      *telemetry.Tracer
	checkpoints *checkpoint.Manager
	decode      checkpoint.Decoder
	observer    func(ProgressEntry)
	now         func() time.Time

	// runMu serializes Execute; the progress log is shared by all runs.
	runMu sync.Mutex

	mu       sync.Mutex
	progress []ProgressEntry
	errs     []ErrorEntry
	status   map[station.Key]ProgressStatus
}

// New creates an orchestrator over stations, which must be given in
// execution order. It fails when the declared dependencies contradict that
// order or reference unknown stations.
func New(stations []*station.Template, cfg Config, opts ...Option) (*Orchestrator, error) {
	if len(stations) == 0 {
		return nil, errors.New(errors.ErrCodeStationGraph, "no stations to orchestrate")
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailureContinue
	}
	if cfg.Backoff == "" {
		cfg.Backoff = BackoffLinear
	}

	o := &Orchestrator{
		stations:  stations,
		cfg:       cfg,
		policy:    PolicyFor(cfg),
		scheduler: RealScheduler{},
		logger:    log.Nop(),
		now:       time.Now,
		status:    make(map[station.Key]ProgressStatus),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")

	preds, err := buildGraph(stations, o.deps)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStationGraph, "invalid station dependencies", err)
	}
	o.predecessors = preds
	return o, nil
}

// buildGraph checks that the fixed sequence is a topological order of the
// declared dependencies and returns the predecessor map.
func buildGraph(stations []*station.Template, deps map[station.Key][]station.Key) (map[string]map[string]graph.Edge[string], error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	position := make(map[station.Key]int, len(stations))

	for i, st := range stations {
		if err := g.AddVertex(string(st.Key())); err != nil {
			return nil, fmt.Errorf("station %s: %w", st.Key(), err)
		}
		position[st.Key()] = i
	}
	for key := range deps {
		if _, ok := position[key]; !ok {
			return nil, fmt.Errorf("dependencies declared for unknown station %s", key)
		}
	}
	for _, st := range stations {
		for _, pred := range deps[st.Key()] {
			if err := g.AddEdge(string(pred), string(st.Key())); err != nil {
				return nil, fmt.Errorf("%s -> %s: %w", pred, st.Key(), err)
			}
			if position[pred] >= position[st.Key()] {
				return nil, fmt.Errorf("%s depends on %s, which runs after it", st.Key(), pred)
			}
		}
	}
	return g.PredecessorMap()
}

// Config returns the orchestration settings.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Stations returns the stations in execution order.
func (o *Orchestrator) Stations() []*station.Template {
	return slices.Clone(o.stations)
}

// Execute runs the selected stations over text. Station failures are
// recorded in the result, never returned; an error means the options were
// invalid or ctx was cancelled, in which case the partial result is
// returned alongside it.
//
// Concurrent calls run one after the other so that each result carries
// only its own progress entries.
func (o *Orchestrator) Execute(ctx context.Context, text, projectName string, opts RunOptions) (*Result, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	selected, err := o.selectStations(opts)
	if err != nil {
		return nil, err
	}
	if projectName == "" {
		projectName = DefaultProjectName
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	state, restored, err := o.prepareState(runID, projectName, text, opts.Resume)
	if err != nil {
		return nil, err
	}
	runID = state.RunID

	logger := o.logger.With("run_id", runID, "project", projectName)
	logger.Info("starting analysis pipeline",
		"text_length", utf8.RuneCountInString(text),
		"stations", stationKeys(selected),
		"restored", len(restored),
	)
	o.warnExcludedDependencies(logger, selected, restored)

	start := o.now()
	firstEntry := o.beginRun(selected, restored)

	res := &Result{
		Outputs:  make(map[station.Key]*station.Output, len(selected)),
		Metadata: Metadata{RunID: runID, StartedAt: start},
	}
	prior := make(map[station.Key]*station.Output, len(o.stations))
	for key, out := range restored {
		prior[key] = out
	}

	var runErr error
	for i, st := range selected {
		key := st.Key()
		if out, ok := restored[key]; ok {
			res.Outputs[key] = out
			res.Metadata.StationsRestored++
			logger.Info("station restored from checkpoint", "station", key)
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		in := station.Input{
			Text:        text,
			ProjectName: projectName,
			Options:     opts.Overrides,
			Prior:       copyPrior(prior),
		}
		out, attempts, err := o.runStation(ctx, logger, st, in)
		res.Outputs[key] = out
		prior[key] = out
		if out.Failed() {
			res.Metadata.StationsFailed++
		} else {
			res.Metadata.StationsCompleted++
		}
		o.saveCheckpoint(logger, state, out, attempts)

		if err != nil {
			runErr = err
			break
		}
		if out.Failed() && o.cfg.FailurePolicy == FailureAbort {
			res.Metadata.Aborted = true
			logger.Warn("aborting run after station failure", "station", key)
			break
		}
		if o.hasPendingAfter(selected[i+1:], restored) {
			if err := o.scheduler.Sleep(ctx, o.cfg.DelayBetweenStations); err != nil {
				runErr = err
				break
			}
		}
	}

	finished := o.now()
	res.Metadata.FinishedAt = finished
	res.Metadata.TotalDuration = finished.Sub(start)
	res.Success = res.Metadata.StationsFailed == 0 && !res.Metadata.Aborted && runErr == nil
	o.applyOverall(res)
	res.ProgressLog, res.Errors = o.runLog(firstEntry)

	o.finishCheckpoint(logger, state, res, runErr)

	logger.Info("analysis pipeline finished",
		"success", res.Success,
		"stations_completed", res.Metadata.StationsCompleted,
		"stations_failed", res.Metadata.StationsFailed,
		"duration", res.Metadata.TotalDuration,
		"overall_rating", res.Metadata.OverallRating,
	)

	if runErr != nil {
		return res, errors.Wrap(errors.ErrCodeStationCancelled, "analysis run interrupted", runErr)
	}
	return res, nil
}

// runStation drives the retry state machine for one station. The returned
// error is non-nil only when ctx ended while waiting to retry.
func (o *Orchestrator) runStation(ctx context.Context, logger *log.Logger, st *station.Template, in station.Input) (*station.Output, int, error) {
	key := st.Key()
	logger = logger.With("station", key, "station_number", st.Number())

	for attempt := 1; ; attempt++ {
		if attempt == 1 {
			o.setStatus(key, ProgressRunning)
		} else {
			o.setStatus(key, ProgressRetrying)
		}
		if o.cfg.DetailedLogging {
			logger.Info("executing station", "name", st.Name(), "attempt", attempt, "max_attempts", o.policy.MaxAttempts)
		}

		actx, span := o.tracer.StartStationSpan(ctx, string(key), st.Number(), attempt)
		out := st.Run(actx, in)

		entry := ProgressEntry{
			StationNumber: st.Number(),
			StationKey:    key,
			StationName:   st.Name(),
			Status:        ProgressCompleted,
			Attempt:       attempt,
			Duration:      out.Metadata.Duration,
			Timestamp:     o.now(),
		}
		outcome := OutcomeSucceeded
		if out.Failed() {
			outcome = OutcomeFailed
			entry.Status = ProgressFailed
			entry.Error = out.Metadata.Error
			if entry.Error == "" {
				entry.Error = "station produced no result"
			}
			telemetry.RecordError(span, stderrors.New(entry.Error))
		} else {
			telemetry.RecordSuccess(span, attribute.String("station_status", string(out.Metadata.Status)))
		}
		telemetry.RecordDuration(span, "station_duration", entry.Duration)
		span.End()

		o.metrics.RecordStationAttempt(string(key), string(entry.Status), attempt, entry.Duration)
		o.record(entry)

		decision := o.policy.Next(attempt, outcome)
		if outcome == OutcomeFailed {
			logger.Error("station attempt failed",
				"attempt", attempt,
				"max_attempts", o.policy.MaxAttempts,
				"error", entry.Error,
				"will_retry", decision.Retry,
			)
		} else if o.cfg.DetailedLogging {
			logger.Info("station completed", "status", out.Metadata.Status, "duration", entry.Duration)
		}

		if !decision.Retry {
			if outcome == OutcomeFailed {
				o.metrics.RecordError(string(errors.ErrCodeStationFailed), "orchestrator")
				logger.Error("station failed after all attempts", "attempts", attempt)
			}
			return out, attempt, nil
		}
		if err := o.scheduler.Sleep(ctx, decision.Delay); err != nil {
			return out, attempt, err
		}
	}
}

func (o *Orchestrator) selectStations(opts RunOptions) ([]*station.Template, error) {
	total := len(o.stations)
	start, end := opts.StartFromStation, opts.EndAtStation
	if start == 0 {
		start = 1
	}
	if end == 0 {
		end = total
	}
	if start < 1 || end > total || start > end {
		return nil, errors.NewStationRangeError(start, end, total)
	}

	skip := make(map[int]bool, len(opts.SkipStations))
	for _, n := range opts.SkipStations {
		if n < 1 || n > total {
			return nil, errors.New(errors.ErrCodeStationUnknown, fmt.Sprintf("cannot skip station %d (stations are 1..%d)", n, total))
		}
		skip[n] = true
	}

	var selected []*station.Template
	for i, st := range o.stations {
		n := i + 1
		if n < start || n > end || skip[n] {
			continue
		}
		selected = append(selected, st)
	}
	return selected, nil
}

func (o *Orchestrator) prepareState(runID, projectName, text string, resume *checkpoint.State) (*checkpoint.State, map[station.Key]*station.Output, error) {
	if resume == nil {
		return checkpoint.NewState(runID, projectName, text), nil, nil
	}
	if !resume.Matches(text) {
		return nil, nil, errors.New(errors.ErrCodeCheckpointInvalid,
			fmt.Sprintf("checkpoint %s was created for a different screenplay", resume.RunID)).
			WithSuggestion("Start a new run without --resume")
	}
	if o.decode == nil {
		return nil, nil, errors.New(errors.ErrCodeCheckpointInvalid, "resuming requires a result decoder")
	}
	restored, err := resume.Outputs(o.decode)
	if err != nil {
		return nil, nil, err
	}
	resume.Status = checkpoint.RunRunning
	return resume, restored, nil
}

// warnExcludedDependencies logs every dependency of a selected station that
// is neither selected nor restored; that station falls back to its defaults.
func (o *Orchestrator) warnExcludedDependencies(logger *log.Logger, selected []*station.Template, restored map[station.Key]*station.Output) {
	included := make(map[string]bool, len(selected)+len(restored))
	for _, st := range selected {
		included[string(st.Key())] = true
	}
	for key := range restored {
		included[string(key)] = true
	}
	for _, st := range selected {
		var missing []string
		for pred := range o.predecessors[string(st.Key())] {
			if !included[pred] {
				missing = append(missing, pred)
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			logger.Warn("station dependencies excluded from run; defaults will be used",
				"station", st.Key(), "missing", missing)
		}
	}
}

func (o *Orchestrator) hasPendingAfter(rest []*station.Template, restored map[station.Key]*station.Output) bool {
	for _, st := range rest {
		if _, ok := restored[st.Key()]; !ok {
			return true
		}
	}
	return false
}

func (o *Orchestrator) applyOverall(res *Result) {
	for i := len(o.stations) - 1; i >= 0; i-- {
		out, ok := res.Outputs[o.stations[i].Key()]
		if !ok || out.Failed() {
			continue
		}
		if scorer, ok := out.Result.(overallScorer); ok {
			score, rating := scorer.Overall()
			res.Metadata.OverallScore = &score
			res.Metadata.OverallRating = rating
			return
		}
	}
}

func (o *Orchestrator) saveCheckpoint(logger *log.Logger, state *checkpoint.State, out *station.Output, attempts int) {
	if err := state.Record(out, attempts); err != nil {
		logger.Warn("failed to record station in checkpoint", "error", err)
		return
	}
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.Save(state); err != nil {
		logger.Warn("failed to save checkpoint", "error", err)
	}
}

func (o *Orchestrator) finishCheckpoint(logger *log.Logger, state *checkpoint.State, res *Result, runErr error) {
	switch {
	case runErr != nil:
		state.Status = checkpoint.RunFailed
	case res.Metadata.Aborted:
		state.Status = checkpoint.RunAborted
	case res.Success:
		state.Status = checkpoint.RunCompleted
	default:
		state.Status = checkpoint.RunFailed
	}
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.Save(state); err != nil {
		logger.Warn("failed to save checkpoint", "error", err)
	}
}

func (o *Orchestrator) beginRun(selected []*station.Template, restored map[station.Key]*station.Output) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range selected {
		if _, ok := restored[st.Key()]; ok {
			o.status[st.Key()] = ProgressCompleted
			continue
		}
		o.status[st.Key()] = ProgressPending
	}
	return len(o.progress)
}

func (o *Orchestrator) setStatus(key station.Key, s ProgressStatus) {
	o.mu.Lock()
	o.status[key] = s
	o.mu.Unlock()
}

func (o *Orchestrator) record(entry ProgressEntry) {
	o.mu.Lock()
	o.progress = append(o.progress, entry)
	o.status[entry.StationKey] = entry.Status
	if entry.Status == ProgressFailed {
		o.errs = append(o.errs, ErrorEntry{
			Station:    entry.StationNumber,
			StationKey: entry.StationKey,
			Error:      entry.Error,
			Timestamp:  entry.Timestamp,
		})
	}
	observer := o.observer
	o.mu.Unlock()

	if observer != nil {
		observer(entry)
	}
}

// runLog returns the progress entries and errors recorded since index first.
func (o *Orchestrator) runLog(first int) ([]ProgressEntry, []ErrorEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if first > len(o.progress) {
		first = len(o.progress)
	}
	entries := slices.Clone(o.progress[first:])
	var errs []ErrorEntry
	for _, e := range entries {
		if e.Status == ProgressFailed {
			errs = append(errs, ErrorEntry{
				Station:    e.StationNumber,
				StationKey: e.StationKey,
				Error:      e.Error,
				Timestamp:  e.Timestamp,
			})
		}
	}
	if entries == nil {
		entries = []ProgressEntry{}
	}
	if errs == nil {
		errs = []ErrorEntry{}
	}
	return entries, errs
}

// StationStatus returns the latest status of every station seen since the last Reset.
func (o *Orchestrator) StationStatus() map[station.Key]ProgressStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[station.Key]ProgressStatus, len(o.status))
	for k, v := range o.status {
		out[k] = v
	}
	return out
}

// ProgressLog returns a copy of the progress log.
func (o *Orchestrator) ProgressLog() []ProgressEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.progress)
}

// Errors returns a copy of the accumulated error list.
func (o *Orchestrator) Errors() []ErrorEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.errs)
}

// Reset clears the progress log, the error list and the status map.
// Configuration is untouched.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = nil
	o.errs = nil
	o.status = make(map[station.Key]ProgressStatus)
}

func copyPrior(prior map[station.Key]*station.Output) map[station.Key]*station.Output {
	out := make(map[station.Key]*station.Output, len(prior))
	for k, v := range prior {
		out[k] = v
	}
	return out
}

func stationKeys(stations []*station.Template) []string {
	keys := make([]string, len(stations))
	for i, st := range stations {
		keys[i] = string(st.Key())
	}
	return keys
}
