package stations

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

const (
	instrSummary    = "You are the lead analyst writing the final report on a dramatic script. Provide structured JSON output."
	instrAssessment = "You are a senior script reader grading a dramatic script. Provide structured JSON output."

	// neutralScore stands in for a station that did not succeed.
	neutralScore = 50
)

// Rating grades the overall score.
type Rating string

const (
	RatingMasterpiece Rating = "Masterpiece"
	RatingExcellent   Rating = "Excellent"
	RatingGood        Rating = "Good"
	RatingFair        Rating = "Fair"
	RatingNeedsWork   Rating = "Needs Work"
)

// RatingFor maps a 0-100 score to a rating.
func RatingFor(score float64) Rating {
	switch {
	case score >= 90:
		return RatingMasterpiece
	case score >= 80:
		return RatingExcellent
	case score >= 65:
		return RatingGood
	case score >= 50:
		return RatingFair
	}
	return RatingNeedsWork
}

// ScoreMatrix holds one 0-100 score per earlier station and their weighted overall.
type ScoreMatrix struct {
	Foundation  float64 `json:"foundation"`
	Conceptual  float64 `json:"conceptual"`
	Network     float64 `json:"conflictNetwork"`
	Efficiency  float64 `json:"efficiency"`
	Dynamics    float64 `json:"dynamicSymbolic"`
	Diagnostics float64 `json:"diagnostics"`
	Overall     float64 `json:"overall"`
}

// OverallAssessment is the headline grading of the work.
type OverallAssessment struct {
	NarrativeQuality      float64 `json:"narrativeQualityScore"`
	StructuralIntegrity   float64 `json:"structuralIntegrityScore"`
	CharacterDevelopment  float64 `json:"characterDevelopmentScore"`
	ConflictEffectiveness float64 `json:"conflictEffectivenessScore"`
	ThematicDepth         float64 `json:"thematicDepthScore"`
	OverallScore          float64 `json:"overallScore"`
	Rating                Rating  `json:"rating"`
}

// FinalRecommendations are grouped by necessity.
type FinalRecommendations struct {
	MustDo   []string `json:"mustDo"`
	ShouldDo []string `json:"shouldDo"`
	CouldDo  []string `json:"couldDo"`
}

// FinalizationResult is the result of station 7.
type FinalizationResult struct {
	ExecutiveSummary string               `json:"executiveSummary"`
	Assessment       OverallAssessment    `json:"overallAssessment"`
	Strengths        []string             `json:"strengthsAnalysis"`
	Weaknesses       []string             `json:"weaknessesIdentified"`
	Opportunities    []string             `json:"opportunitiesForImprovement"`
	Threats          []string             `json:"threatsToCoherence"`
	Recommendations  FinalRecommendations `json:"finalRecommendations"`
	ScoreMatrix      ScoreMatrix          `json:"scoreMatrix"`
	StationsUsed     int                  `json:"stationsUsed"`
}

// StationKey implements station.Result
func (r *FinalizationResult) StationKey() station.Key { return KeyFinalization }

// NarrativeFields implements station.Result
func (r *FinalizationResult) NarrativeFields() []string {
	return []string{r.ExecutiveSummary}
}

// Overall returns the headline score and rating of the run.
func (r *FinalizationResult) Overall() (float64, string) {
	return r.Assessment.OverallScore, string(r.Assessment.Rating)
}

type summaryResponse struct {
	ExecutiveSummary string   `json:"executive_summary"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	Opportunities    []string `json:"opportunities"`
	Threats          []string `json:"threats"`
	MustDo           []string `json:"must_do"`
	ShouldDo         []string `json:"should_do"`
	CouldDo          []string `json:"could_do"`
}

type assessmentResponse struct {
	NarrativeQuality      *float64 `json:"narrative_quality"`
	StructuralIntegrity   *float64 `json:"structural_integrity"`
	CharacterDevelopment  *float64 `json:"character_development"`
	ConflictEffectiveness *float64 `json:"conflict_effectiveness"`
	ThematicDepth         *float64 `json:"thematic_depth"`
}

// Finalization is station 7: score matrix, executive summary and rating.
type Finalization struct {
	call caller
}

// NewFinalization creates station 7.
func NewFinalization(deps Deps) *Finalization {
	return &Finalization{call: newCaller(deps, KeyFinalization)}
}

// Number implements station.Executor
func (s *Finalization) Number() int { return 7 }

// Name implements station.Executor
func (s *Finalization) Name() string { return NameFinalization }

// Agents implements station.Executor
func (s *Finalization) Agents() []string {
	return []string{"Score Aggregator", "Executive Summary Writer", "Assessment Grader"}
}

// Execute implements station.Executor
func (s *Finalization) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	matrix, used := computeScoreMatrix(in)
	digest := priorDigest(in)

	var (
		summary    summaryResponse
		assessment OverallAssessment
	)
	err := fanOut(ctx,
		func(ctx context.Context) (err error) {
			summary, err = s.summary(ctx, digest, matrix, opts)
			return err
		},
		func(ctx context.Context) error {
			assessment = s.assessment(ctx, digest)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("station 7 execution failed: %w", err)
	}

	assessment.OverallScore = math.Round(matrix.Overall)
	assessment.Rating = RatingFor(assessment.OverallScore)

	return &FinalizationResult{
		ExecutiveSummary: summary.ExecutiveSummary,
		Assessment:       assessment,
		Strengths:        nonNil(summary.Strengths),
		Weaknesses:       nonNil(summary.Weaknesses),
		Opportunities:    nonNil(summary.Opportunities),
		Threats:          nonNil(summary.Threats),
		Recommendations: FinalRecommendations{
			MustDo:   nonNil(summary.MustDo),
			ShouldDo: nonNil(summary.ShouldDo),
			CouldDo:  nonNil(summary.CouldDo),
		},
		ScoreMatrix:  matrix,
		StationsUsed: used,
	}, nil
}

func (s *Finalization) summary(ctx context.Context, digest string, m ScoreMatrix, opts station.Options) (summaryResponse, error) {
	prompt := fmt.Sprintf(`Based on the findings of six analysis stations below, write an executive
summary (200-300 words) and a SWOT breakdown, then recommendations split into must do, should do
and could do. Weighted overall score: %.0f/100.
Provide JSON:
{"executive_summary": "...", "strengths": [], "weaknesses": [], "opportunities": [], "threats": [],
"must_do": [], "should_do": [], "could_do": []}

Findings:
%s`, m.Overall, digest)

	resp, err := callJSON[summaryResponse](ctx, s.call, "executive_summary", withOptions(taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrSummary,
	}, opts))
	if err != nil {
		return summaryResponse{}, fmt.Errorf("executive summary: %w", err)
	}
	if strings.TrimSpace(resp.ExecutiveSummary) == "" {
		return summaryResponse{}, fmt.Errorf("executive summary: response has no summary")
	}
	return resp, nil
}

func (s *Finalization) assessment(ctx context.Context, digest string) OverallAssessment {
	resp, err := callJSON[assessmentResponse](ctx, s.call, "assessment", taskclient.Request{
		Prompt: `Grade the script on narrative quality, structural integrity, character development,
conflict effectiveness and thematic depth, each 0-100. Provide JSON:
{"narrative_quality": 70, "structural_integrity": 65, "character_development": 72,
"conflict_effectiveness": 68, "thematic_depth": 60}

Findings:
` + digest,
		Model:             s.call.deps.PrimaryModel,
		Temperature:       0.3,
		MaxTokens:         1024,
		SystemInstruction: instrAssessment,
	})
	if err != nil {
		s.call.degrade("assessment", err)
		return OverallAssessment{
			NarrativeQuality:      neutralScore,
			StructuralIntegrity:   neutralScore,
			CharacterDevelopment:  neutralScore,
			ConflictEffectiveness: neutralScore,
			ThematicDepth:         neutralScore,
		}
	}
	score := func(v *float64) float64 { return math.Round(percent(orDefault(v, neutralScore))) }
	return OverallAssessment{
		NarrativeQuality:      score(resp.NarrativeQuality),
		StructuralIntegrity:   score(resp.StructuralIntegrity),
		CharacterDevelopment:  score(resp.CharacterDevelopment),
		ConflictEffectiveness: score(resp.ConflictEffectiveness),
		ThematicDepth:         score(resp.ThematicDepth),
	}
}

// computeScoreMatrix scores each earlier station on 0-100, substituting the
// neutral score for stations that did not succeed, and weights them
// 0.15, 0.15, 0.2, 0.2, 0.15, 0.15. It also returns how many stations contributed.
func computeScoreMatrix(in station.Input) (ScoreMatrix, int) {
	m := ScoreMatrix{
		Foundation:  neutralScore,
		Conceptual:  neutralScore,
		Network:     neutralScore,
		Efficiency:  neutralScore,
		Dynamics:    neutralScore,
		Diagnostics: neutralScore,
	}
	used := 0

	if r, ok := in.PriorResult(KeyTextAnalysis); ok {
		if ta, ok := r.(*TextAnalysisResult); ok {
			m.Foundation = ta.Uncertainty.Confidence * 100
			used++
		}
	}
	if r, ok := in.PriorResult(KeyConceptual); ok {
		if c, ok := r.(*ConceptualResult); ok {
			m.Conceptual = (c.Market.Producibility + c.Market.CommercialPotential) / 2 * 10
			used++
		}
	}
	if r, ok := in.PriorResult(KeyNetwork); ok {
		if n, ok := r.(*NetworkResult); ok {
			if len(n.Relationships) > 0 || len(n.Conflicts) > 0 {
				m.Network = (n.Stats.AverageStrength + n.Stats.ConflictIntensity) / 2 * 10
			}
			used++
		}
	}
	if r, ok := in.PriorResult(KeyEfficiency); ok {
		if e, ok := r.(*EfficiencyResult); ok {
			m.Efficiency = e.Metrics.OverallScore
			used++
		}
	}
	if r, ok := in.PriorResult(KeyDynamics); ok {
		if d, ok := r.(*DynamicsResult); ok {
			m.Dynamics = (d.Symbolic.DepthScore + d.Symbolic.Consistency + d.Stylistic.ToneConsistency) / 3 * 10
			used++
		}
	}
	if r, ok := in.PriorResult(KeyDiagnostics); ok {
		if d, ok := r.(*DiagnosticsResult); ok {
			m.Diagnostics = d.HealthScore
			used++
		}
	}

	m.Foundation = round(percent(m.Foundation), 2)
	m.Conceptual = round(percent(m.Conceptual), 2)
	m.Network = round(percent(m.Network), 2)
	m.Efficiency = round(percent(m.Efficiency), 2)
	m.Dynamics = round(percent(m.Dynamics), 2)
	m.Diagnostics = round(percent(m.Diagnostics), 2)
	m.Overall = round(m.Foundation*0.15+m.Conceptual*0.15+m.Network*0.2+
		m.Efficiency*0.2+m.Dynamics*0.15+m.Diagnostics*0.15, 2)
	return m, used
}

// priorDigest renders the headline findings of earlier stations for the prompt.
func priorDigest(in station.Input) string {
	var lines []string
	if r, ok := in.PriorResult(KeyTextAnalysis); ok {
		if ta, ok := r.(*TextAnalysisResult); ok {
			lines = append(lines, "Logline: "+ta.Logline,
				"Characters: "+joinNames(characterNames(ta.MajorCharacters)))
		}
	}
	if r, ok := in.PriorResult(KeyConceptual); ok {
		if c, ok := r.(*ConceptualResult); ok {
			lines = append(lines, "Story statement: "+c.StoryStatement, "Genre: "+c.HybridGenre)
		}
	}
	if r, ok := in.PriorResult(KeyNetwork); ok {
		if n, ok := r.(*NetworkResult); ok {
			lines = append(lines, fmt.Sprintf("Network: %d characters, %d relationships, %d conflicts",
				len(n.Characters), len(n.Relationships), len(n.Conflicts)))
		}
	}
	if r, ok := in.PriorResult(KeyEfficiency); ok {
		if e, ok := r.(*EfficiencyResult); ok {
			lines = append(lines, "Quality: "+e.Quality.Assessment)
		}
	}
	if r, ok := in.PriorResult(KeyDynamics); ok {
		if d, ok := r.(*DynamicsResult); ok {
			lines = append(lines, "Voice: "+d.Stylistic.Voice)
		}
	}
	if r, ok := in.PriorResult(KeyDiagnostics); ok {
		if d, ok := r.(*DiagnosticsResult); ok {
			lines = append(lines, "Diagnosis: "+d.Summary)
		}
	}
	if len(lines) == 0 {
		return "No earlier findings are available; rely on the text excerpt.\n\n" + prefix(in.Text, 8000)
	}
	return strings.Join(lines, "\n")
}
