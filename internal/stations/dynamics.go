package stations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

const (
	instrTension  = "You are a structural analyst charting dramatic tension. Provide structured JSON output."
	instrSymbols  = "You are a semiotician analysing symbols and motifs. Provide structured JSON output."
	instrStylistic = "You are a stylistics expert assessing consistency of voice. Provide structured JSON output."
)

// TensionPoint is one sample of the tension curve.
type TensionPoint struct {
	// Position is the location in the text as a percentage.
	Position    float64 `json:"position"`
	Level       float64 `json:"level"`
	Description string  `json:"description"`
}

// TensionAnalysis is the tension curve across the text.
type TensionAnalysis struct {
	Points  []TensionPoint `json:"points"`
	Peak    float64        `json:"peak"`
	Average float64        `json:"average"`
}

// Symbol is a recurring symbolic element.
type Symbol struct {
	Symbol         string `json:"symbol"`
	Interpretation string `json:"interpretation"`
	Frequency      int    `json:"frequency"`
}

// SymbolicAnalysis lists symbols and grades their depth.
type SymbolicAnalysis struct {
	Symbols     []Symbol `json:"keySymbols"`
	DepthScore  float64  `json:"depthScore"`
	Consistency float64  `json:"consistencyScore"`
}

// StylisticAnalysis grades the consistency of voice and tone.
type StylisticAnalysis struct {
	ToneConsistency float64  `json:"toneConsistency"`
	Voice           string   `json:"voice"`
	Observations    []string `json:"observations"`
}

// DynamicsResult is the result of station 5.
type DynamicsResult struct {
	Tension   TensionAnalysis   `json:"tensionAnalysis"`
	Symbolic  SymbolicAnalysis  `json:"symbolicAnalysis"`
	Stylistic StylisticAnalysis `json:"stylisticAnalysis"`
}

// StationKey implements station.Result
func (r *DynamicsResult) StationKey() station.Key { return KeyDynamics }

// NarrativeFields implements station.Result
func (r *DynamicsResult) NarrativeFields() []string {
	fields := []string{r.Stylistic.Voice}
	for _, s := range r.Symbolic.Symbols {
		fields = append(fields, s.Interpretation)
	}
	return fields
}

type tensionResponse struct {
	Points []struct {
		Position    float64 `json:"position"`
		Level       float64 `json:"level"`
		Description string  `json:"description"`
	} `json:"points"`
}

type symbolsResponse struct {
	Symbols []struct {
		Symbol         string `json:"symbol"`
		Interpretation string `json:"interpretation"`
		Frequency      int    `json:"frequency"`
	} `json:"symbols"`
	DepthScore       *float64 `json:"depth_score"`
	ConsistencyScore *float64 `json:"consistency_score"`
}

type stylisticResponse struct {
	ToneConsistency *float64 `json:"tone_consistency"`
	Voice           string   `json:"voice"`
	Observations    []string `json:"observations"`
}

// Dynamics is station 5: tension curve, symbols and stylistic consistency.
type Dynamics struct {
	call caller
}

// NewDynamics creates station 5.
func NewDynamics(deps Deps) *Dynamics {
	return &Dynamics{call: newCaller(deps, KeyDynamics)}
}

// Number implements station.Executor
func (s *Dynamics) Number() int { return 5 }

// Name implements station.Executor
func (s *Dynamics) Name() string { return NameDynamics }

// Agents implements station.Executor
func (s *Dynamics) Agents() []string {
	return []string{"Tension Tracker", "Symbol Interpreter", "Stylistic Auditor"}
}

// Execute implements station.Executor. The tension curve is required; the
// symbolic and stylistic analyses degrade to neutral defaults.
func (s *Dynamics) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	tone := undetermined
	if r, ok := in.PriorResult(KeyTextAnalysis); ok {
		if ta, ok := r.(*TextAnalysisResult); ok && ta.Style.OverallTone != "" {
			tone = ta.Style.OverallTone
		}
	}
	excerpt := prefix(in.Text, extractionPrefix)

	var (
		tension   TensionAnalysis
		symbolic  SymbolicAnalysis
		stylistic StylisticAnalysis
	)
	err := fanOut(ctx,
		func(ctx context.Context) (err error) {
			tension, err = s.tension(ctx, excerpt, opts)
			return err
		},
		func(ctx context.Context) error {
			symbolic = s.symbols(ctx, excerpt, opts)
			return nil
		},
		func(ctx context.Context) error {
			stylistic = s.stylistic(ctx, excerpt, tone, opts)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("station 5 execution failed: %w", err)
	}
	return &DynamicsResult{Tension: tension, Symbolic: symbolic, Stylistic: stylistic}, nil
}

func (s *Dynamics) tension(ctx context.Context, excerpt string, opts station.Options) (TensionAnalysis, error) {
	resp, err := callJSON[tensionResponse](ctx, s.call, "tension", withOptions(taskclient.Request{
		Prompt: `Chart the dramatic tension of this text as 5-12 points. Position is the
location as a percentage of the text (0-100); level is tension 0-10. Provide JSON:
{"points": [{"position": 10, "level": 3, "description": "..."}]}

Text excerpt:
` + excerpt,
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrTension,
	}, opts))
	if err != nil {
		return TensionAnalysis{}, fmt.Errorf("chart tension: %w", err)
	}
	if len(resp.Points) == 0 {
		return TensionAnalysis{}, fmt.Errorf("chart tension: response has no points")
	}

	out := TensionAnalysis{Points: make([]TensionPoint, 0, len(resp.Points))}
	sum := 0.0
	for _, p := range resp.Points {
		pt := TensionPoint{Position: percent(p.Position), Level: score10(p.Level), Description: p.Description}
		out.Points = append(out.Points, pt)
		out.Peak = max(out.Peak, pt.Level)
		sum += pt.Level
	}
	sort.SliceStable(out.Points, func(i, j int) bool { return out.Points[i].Position < out.Points[j].Position })
	out.Average = round(sum/float64(len(out.Points)), 2)
	return out, nil
}

func (s *Dynamics) symbols(ctx context.Context, excerpt string, opts station.Options) SymbolicAnalysis {
	resp, err := callJSON[symbolsResponse](ctx, s.call, "symbols", withOptions(taskclient.Request{
		Prompt: `Identify the key symbols and motifs of this text with their interpretation and
how often they recur. Score symbolic depth and consistency 0-10. Provide JSON:
{"symbols": [{"symbol": "...", "interpretation": "...", "frequency": 3}], "depth_score": 6, "consistency_score": 6}

Text excerpt:
` + excerpt,
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrSymbols,
	}, opts))
	if err != nil {
		s.call.degrade("symbols", err)
		return SymbolicAnalysis{Symbols: []Symbol{}, DepthScore: 5, Consistency: 5}
	}

	out := SymbolicAnalysis{
		Symbols:     make([]Symbol, 0, len(resp.Symbols)),
		DepthScore:  score10(orDefault(resp.DepthScore, 5)),
		Consistency: score10(orDefault(resp.ConsistencyScore, 5)),
	}
	for _, sym := range resp.Symbols {
		if strings.TrimSpace(sym.Symbol) == "" {
			continue
		}
		out.Symbols = append(out.Symbols, Symbol{
			Symbol:         sym.Symbol,
			Interpretation: sym.Interpretation,
			Frequency:      max(sym.Frequency, 0),
		})
	}
	return out
}

func (s *Dynamics) stylistic(ctx context.Context, excerpt, tone string, opts station.Options) StylisticAnalysis {
	resp, err := callJSON[stylisticResponse](ctx, s.call, "stylistic", withOptions(taskclient.Request{
		Prompt: `The overall tone of this text was described as: ` + tone + `
Assess how consistently that tone and the authorial voice are sustained. Score tone consistency
0-10, describe the voice in one sentence and list observations. Provide JSON:
{"tone_consistency": 7, "voice": "...", "observations": []}

Text excerpt:
` + excerpt,
		Model:             s.call.deps.FastModel,
		SystemInstruction: instrStylistic,
	}, opts))
	if err != nil {
		s.call.degrade("stylistic", err)
		return StylisticAnalysis{ToneConsistency: 5, Voice: undetermined, Observations: []string{}}
	}

	out := StylisticAnalysis{
		ToneConsistency: score10(orDefault(resp.ToneConsistency, 5)),
		Voice:           resp.Voice,
		Observations:    nonNil(resp.Observations),
	}
	if out.Voice == "" {
		out.Voice = undetermined
	}
	return out
}
