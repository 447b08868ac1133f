package stations

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

const instrQuality = "You are a script consultant grading dramatic efficiency. Provide structured JSON output."

// EfficiencyRating grades the overall efficiency score.
type EfficiencyRating string

const (
	EfficiencyExcellent EfficiencyRating = "Excellent"
	EfficiencyGood      EfficiencyRating = "Good"
	EfficiencyFair      EfficiencyRating = "Fair"
	EfficiencyPoor      EfficiencyRating = "Poor"
	EfficiencyCritical  EfficiencyRating = "Critical"
)

func efficiencyRating(score float64) EfficiencyRating {
	switch {
	case score >= 80:
		return EfficiencyExcellent
	case score >= 60:
		return EfficiencyGood
	case score >= 40:
		return EfficiencyFair
	case score >= 20:
		return EfficiencyPoor
	}
	return EfficiencyCritical
}

// EfficiencyMetrics are computed from the conflict network.
type EfficiencyMetrics struct {
	OverallScore     float64          `json:"overallEfficiencyScore"`
	OverallRating    EfficiencyRating `json:"overallRating"`
	ConflictCohesion float64          `json:"conflictCohesion"`
	ConflictDensity  float64          `json:"conflictDensity"`
	Redundancy       float64          `json:"redundancy"`
}

// QualityAssessment grades the work on a 0-10 scale.
type QualityAssessment struct {
	Literary   float64 `json:"literary"`
	Technical  float64 `json:"technical"`
	Commercial float64 `json:"commercial"`
	Overall    float64 `json:"overall"`
	Assessment string  `json:"assessment"`
}

// EfficiencyRecommendations are grouped by scope.
type EfficiencyRecommendations struct {
	PriorityActions     []string `json:"priorityActions"`
	QuickFixes          []string `json:"quickFixes"`
	StructuralRevisions []string `json:"structuralRevisions"`
}

// EfficiencyResult is the result of station 4.
type EfficiencyResult struct {
	Metrics         EfficiencyMetrics         `json:"efficiencyMetrics"`
	Quality         QualityAssessment         `json:"qualityAssessment"`
	Recommendations EfficiencyRecommendations `json:"recommendations"`
}

// StationKey implements station.Result
func (r *EfficiencyResult) StationKey() station.Key { return KeyEfficiency }

// NarrativeFields implements station.Result
func (r *EfficiencyResult) NarrativeFields() []string {
	return []string{r.Quality.Assessment}
}

type qualityResponse struct {
	Literary            *float64 `json:"literary"`
	Technical           *float64 `json:"technical"`
	Commercial          *float64 `json:"commercial"`
	Assessment          string   `json:"assessment"`
	PriorityActions     []string `json:"priority_actions"`
	QuickFixes          []string `json:"quick_fixes"`
	StructuralRevisions []string `json:"structural_revisions"`
}

// Efficiency is station 4: network efficiency and quality assessment.
type Efficiency struct {
	call caller
}

// NewEfficiency creates station 4.
func NewEfficiency(deps Deps) *Efficiency {
	return &Efficiency{call: newCaller(deps, KeyEfficiency)}
}

// Number implements station.Executor
func (s *Efficiency) Number() int { return 4 }

// Name implements station.Executor
func (s *Efficiency) Name() string { return NameEfficiency }

// Agents implements station.Executor
func (s *Efficiency) Agents() []string {
	return []string{"Efficiency Calculator", "Quality Assessor"}
}

// Execute implements station.Executor. Without a station 3 network every
// computed metric is zero.
func (s *Efficiency) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	network := &NetworkResult{}
	if r, ok := in.PriorResult(KeyNetwork); ok {
		if n, ok := r.(*NetworkResult); ok {
			network = n
		}
	}
	metrics := computeEfficiency(network)

	prompt := fmt.Sprintf(`Grade this script's literary, technical and commercial quality on 0-10,
write a two-sentence assessment and list priority actions, quick fixes and structural revisions.
Network facts: %d characters, %d relationships, %d conflicts, efficiency %.0f/100.
Provide JSON:
{"literary": 7, "technical": 6, "commercial": 6, "assessment": "...",
"priority_actions": [], "quick_fixes": [], "structural_revisions": []}

Text excerpt:
%s`, len(network.Characters), len(network.Relationships), len(network.Conflicts), metrics.OverallScore,
		prefix(in.Text, 8000))

	resp, err := callJSON[qualityResponse](ctx, s.call, "quality", withOptions(taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrQuality,
	}, opts))
	if err == nil && strings.TrimSpace(resp.Assessment) == "" {
		err = fmt.Errorf("response has no assessment")
	}
	if err != nil {
		s.call.degrade("quality", err)
		return &EfficiencyResult{
			Metrics: metrics,
			Quality: QualityAssessment{Literary: 5, Technical: 5, Commercial: 5, Overall: 5, Assessment: undetermined},
			Recommendations: EfficiencyRecommendations{
				PriorityActions: []string{}, QuickFixes: []string{}, StructuralRevisions: []string{},
			},
		}, nil
	}

	quality := QualityAssessment{
		Literary:   score10(orDefault(resp.Literary, 5)),
		Technical:  score10(orDefault(resp.Technical, 5)),
		Commercial: score10(orDefault(resp.Commercial, 5)),
		Assessment: resp.Assessment,
	}
	quality.Overall = round((quality.Literary+quality.Technical+quality.Commercial)/3, 2)

	return &EfficiencyResult{
		Metrics: metrics,
		Quality: quality,
		Recommendations: EfficiencyRecommendations{
			PriorityActions:     nonNil(resp.PriorityActions),
			QuickFixes:          nonNil(resp.QuickFixes),
			StructuralRevisions: nonNil(resp.StructuralRevisions),
		},
	}, nil
}

// computeEfficiency derives cohesion (share of characters in a conflict),
// conflict density (conflicts per character) and redundancy (share of
// relationships repeating a character pair). The overall score weights
// cohesion 0.4, density 0.3 and non-redundancy 0.3.
func computeEfficiency(n *NetworkResult) EfficiencyMetrics {
	if len(n.Characters) == 0 {
		return EfficiencyMetrics{OverallRating: EfficiencyCritical}
	}

	inConflict := make(map[string]bool)
	for _, c := range n.Conflicts {
		for _, name := range c.InvolvedCharacters {
			inConflict[name] = true
		}
	}
	cohesion := float64(len(inConflict)) / float64(len(n.Characters)) * 10

	density := float64(len(n.Conflicts)) / float64(len(n.Characters))

	pairs := make(map[[2]string]int)
	duplicates := 0
	for _, r := range n.Relationships {
		key := [2]string{r.Source, r.Target}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if pairs[key] > 0 {
			duplicates++
		}
		pairs[key]++
	}
	redundancy := 0.0
	if len(n.Relationships) > 0 {
		redundancy = float64(duplicates) / float64(len(n.Relationships)) * 10
	}

	overall := (cohesion*0.4 + math.Min(density, 1)*10*0.3 + (10-redundancy)*0.3) * 10
	overall = math.Round(clamp(overall, 0, 100))
	return EfficiencyMetrics{
		OverallScore:     overall,
		OverallRating:    efficiencyRating(overall),
		ConflictCohesion: round(score10(cohesion), 2),
		ConflictDensity:  round(density, 2),
		Redundancy:       round(score10(redundancy), 2),
	}
}
