package station

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/dramascope/internal/log"
)

// passConcurrency bounds the calls issued by the compliance and uncertainty passes.
const passConcurrency = 3

// Template runs an Executor with the cross-cutting passes.
type Template struct {
	exec        Executor
	compliance  ComplianceChecker
	uncertainty UncertaintyScorer
	logger      *log.Logger
	now         func() time.Time
}

// Option configures a Template.
type Option func(*Template)

// WithComplianceChecker sets the checker used by the compliance pass
func WithComplianceChecker(c ComplianceChecker) Option {
	return func(t *Template) { t.compliance = c }
}

// WithUncertaintyScorer sets the scorer used by the uncertainty pass
func WithUncertaintyScorer(s UncertaintyScorer) Option {
	return func(t *Template) { t.uncertainty = s }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(t *Template) { t.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Template) { t.now = now }
}

// New wraps exec. Without options the passes use PassthroughChecker and StaticScorer.
func New(exec Executor, opts ...Option) *Template {
	t := &Template{
		exec:        exec,
		compliance:  PassthroughChecker{},
		uncertainty: NewStaticScorer(),
		logger:      log.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("station", exec.Number(), "station_name", exec.Name())
	return t
}

// Number returns the station's position in the sequence
func (t *Template) Number() int { return t.exec.Number() }

// Name returns the station's display name
func (t *Template) Name() string { return t.exec.Name() }

// Key returns the station key
func (t *Template) Key() Key { return KeyFor(t.exec.Number()) }

// Run executes the station. It never panics and never returns an error:
// any failure inside Execute yields a Failed output.
func (t *Template) Run(ctx context.Context, in Input) (out *Output) {
	start := t.now()
	opts := DefaultOptions().Merge(in.Options)

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("station panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			out = t.failed(fmt.Errorf("panic: %v", r), opts, start)
		}
	}()

	result, err := t.exec.Execute(ctx, in, opts)
	if err == nil && result == nil {
		err = fmt.Errorf("station returned no result")
	}
	if err != nil {
		t.logger.Warn("station execution failed", "error", err.Error())
		return t.failed(err, opts, start)
	}

	status := StatusSuccess
	meta := Metadata{
		StationKey:     t.Key(),
		StationNumber:  t.exec.Number(),
		StationName:    t.exec.Name(),
		AgentsUsed:     append([]string(nil), t.exec.Agents()...),
		TokensEstimate: EstimateTokens(in.Text),
		Options:        opts,
	}

	if opts.ComplianceCheck {
		meta.Compliance = t.compliancePass(ctx, result)
		if !meta.Compliance.Checked {
			status = StatusPartial
		}
	}

	if opts.UncertaintyPass {
		meta.Uncertainty = t.uncertaintyPass(ctx, result)
		if !meta.Uncertainty.Quantified {
			status = StatusPartial
		}
	}

	meta.Status = status
	meta.Duration = t.now().Sub(start)
	return &Output{Result: result, Metadata: meta}
}

func (t *Template) failed(err error, opts Options, start time.Time) *Output {
	return &Output{
		Metadata: Metadata{
			StationKey:    t.Key(),
			StationNumber: t.exec.Number(),
			StationName:   t.exec.Name(),
			Status:        StatusFailed,
			Duration:      t.now().Sub(start),
			Error:         err.Error(),
			AgentsUsed:    []string{},
			Options:       opts,
		},
	}
}

// EstimateTokens approximates token cost as one token per four characters.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

// narrativeFields returns the distinct non-blank narrative fields of r.
func narrativeFields(r Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.NarrativeFields() {
		if strings.TrimSpace(f) == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func (t *Template) compliancePass(ctx context.Context, result Result) (record *ComplianceRecord) {
	defer func() {
		if r := recover(); r != nil {
			record = failedComplianceRecord(fmt.Errorf("panic: %v", r))
		}
	}()

	fields := narrativeFields(result)
	verdicts := make([]ComplianceVerdict, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(passConcurrency)
	for i, text := range fields {
		g.Go(func() error {
			v, err := t.compliance.Check(gctx, text)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.logger.Warn("compliance pass failed", "error", err.Error())
		return failedComplianceRecord(err)
	}

	record = &ComplianceRecord{Checked: true, Compliant: true, Violations: []string{}, ImprovementScore: 1.0}
	for i, v := range verdicts {
		record.ImprovementScore = math.Min(record.ImprovementScore, v.ImprovementScore)
		if v.Compliant {
			continue
		}
		record.Compliant = false
		for _, viol := range v.Violations {
			record.Violations = append(record.Violations, viol.Principle+": "+viol.Description)
		}
		if v.CorrectedText != "" && v.CorrectedText != fields[i] {
			n := ReplaceText(result, fields[i], v.CorrectedText)
			t.logger.Debug("replaced non-compliant text", "occurrences", n)
		}
	}
	return record
}

func (t *Template) uncertaintyPass(ctx context.Context, result Result) (record *UncertaintyRecord) {
	defer func() {
		if r := recover(); r != nil {
			record = failedUncertaintyRecord(fmt.Errorf("panic: %v", r))
		}
	}()

	fields := narrativeFields(result)
	if len(fields) == 0 {
		return &UncertaintyRecord{Quantified: true, OverallConfidence: 0, Type: Epistemic, Sources: []UncertaintySource{}}
	}

	verdicts := make([]UncertaintyVerdict, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(passConcurrency)
	for i, text := range fields {
		g.Go(func() error {
			v, err := t.uncertainty.Score(gctx, text)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.logger.Warn("uncertainty pass failed", "error", err.Error())
		return failedUncertaintyRecord(err)
	}

	sum := 0.0
	for _, v := range verdicts {
		sum += v.Confidence
	}

	// least confident fields contribute their sources first
	ranked := append([]UncertaintyVerdict(nil), verdicts...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence < ranked[j].Confidence })

	sources := []UncertaintySource{}
	for _, v := range ranked {
		for _, s := range v.Sources {
			if len(sources) == maxUncertaintySources {
				break
			}
			sources = append(sources, s)
		}
	}

	typ := ranked[0].Type
	if typ == "" {
		typ = Epistemic
	}

	return &UncertaintyRecord{
		Quantified:        true,
		OverallConfidence: sum / float64(len(verdicts)),
		Type:              typ,
		Sources:           sources,
	}
}
