package stations

import (
	"context"
	stderrors "errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/metrics"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

// MaxParallelCalls caps in-flight generative calls inside one station.
const MaxParallelCalls = 3

// Sub-task outcomes reported to metrics.
const (
	outcomeOK         = "ok"
	outcomeParseError = "parse_error"
	outcomeError      = "error"
	outcomeDefault    = "default"
)

// Deps are the collaborators shared by every station.
type Deps struct {
	Client  taskclient.Client
	Logger  *log.Logger
	Metrics *metrics.Metrics
	// PrimaryModel handles deep analysis; defaults to taskclient.ModelPro.
	PrimaryModel string
	// FastModel handles cheap extraction calls; defaults to taskclient.ModelFlash.
	FastModel string
}

func (d Deps) withDefaults() Deps {
	if d.Client == nil {
		d.Client = taskclient.Unavailable{}
	}
	if d.Logger == nil {
		d.Logger = log.Nop()
	}
	if d.PrimaryModel == "" {
		d.PrimaryModel = taskclient.ModelPro
	}
	if d.FastModel == "" {
		d.FastModel = taskclient.ModelFlash
	}
	return d
}

// caller issues the sub-task calls of one station and records their outcome.
type caller struct {
	deps    Deps
	station station.Key
	logger  *log.Logger
}

func newCaller(deps Deps, key station.Key) caller {
	deps = deps.withDefaults()
	return caller{deps: deps, station: key, logger: deps.Logger.With("station", string(key))}
}

func (c caller) record(subtask, outcome string) {
	c.deps.Metrics.RecordSubTask(string(c.station), subtask, outcome)
}

func (c caller) outcomeOf(err error) string {
	var pe *taskclient.ParseError
	if stderrors.As(err, &pe) {
		return outcomeParseError
	}
	return outcomeError
}

// text issues req and returns the trimmed text of the response.
func (c caller) text(ctx context.Context, subtask string, req taskclient.Request) (string, error) {
	out, err := taskclient.GenerateText(ctx, c.deps.Client, req)
	if err != nil {
		c.record(subtask, c.outcomeOf(err))
		return "", err
	}
	c.record(subtask, outcomeOK)
	return out, nil
}

// callJSON issues req and strictly decodes the response into T.
func callJSON[T any](ctx context.Context, c caller, subtask string, req taskclient.Request) (T, error) {
	out, err := taskclient.GenerateJSON[T](ctx, c.deps.Client, req)
	if err != nil {
		c.record(subtask, c.outcomeOf(err))
		return out, err
	}
	c.record(subtask, outcomeOK)
	return out, nil
}

// degrade logs a secondary sub-task failure that will be replaced by a default.
func (c caller) degrade(subtask string, err error) {
	c.record(subtask, outcomeDefault)
	c.logger.Warn("sub-task degraded to default", "subtask", subtask, "error", err.Error())
}

// fanOut runs tasks with at most MaxParallelCalls in flight. The first
// error cancels the context passed to the others and is returned.
func fanOut(ctx context.Context, tasks ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallelCalls)
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}
	return g.Wait()
}

// splitBatches partitions items into consecutive batches of at most size.
func splitBatches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

// inBatches applies fn to items in sequential batches of size, running the
// calls inside a batch concurrently. Items for which fn reports false are
// dropped; the order of the remaining results follows items.
func inBatches[T, R any](ctx context.Context, items []T, size int, fn func(context.Context, T) (R, bool)) []R {
	results := make([]R, 0, len(items))
	for _, batch := range splitBatches(items, size) {
		if ctx.Err() != nil {
			break
		}
		got := make([]R, len(batch))
		ok := make([]bool, len(batch))
		var g errgroup.Group
		g.SetLimit(size)
		for i, item := range batch {
			g.Go(func() error {
				got[i], ok[i] = fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
		for i := range batch {
			if ok[i] {
				results = append(results, got[i])
			}
		}
	}
	return results
}

// withOptions applies the run's sampling options to a sub-task request
// that leaves temperature or token limit unset.
func withOptions(req taskclient.Request, opts station.Options) taskclient.Request {
	if req.Temperature == 0 {
		req.Temperature = opts.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
