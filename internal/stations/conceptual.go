package stations

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

const (
	instrConcept  = "You are a story development executive. Provide structured JSON output."
	instrThemes   = "You are a thematic analyst. Provide structured JSON output."
	instrAudience = "You are a market analyst for film and television. Provide structured JSON output."

	conceptPrefix = 12000
)

// Theme is one primary theme of the work.
type Theme struct {
	Theme       string   `json:"theme"`
	Evidence    []string `json:"evidence"`
	Strength    float64  `json:"strength"`
	Development string   `json:"development"`
}

// TargetAudience describes who the work is for.
type TargetAudience struct {
	PrimaryAudience string   `json:"primaryAudience"`
	Demographics    []string `json:"demographics"`
	Psychographics  []string `json:"psychographics"`
}

// MarketAnalysis grades feasibility on a 0-10 scale.
type MarketAnalysis struct {
	Producibility       float64 `json:"producibility"`
	CommercialPotential float64 `json:"commercialPotential"`
}

// ConceptualResult is the result of station 2.
type ConceptualResult struct {
	StoryStatement        string         `json:"storyStatement"`
	AlternativeStatements []string       `json:"alternativeStatements"`
	ElevatorPitch         string         `json:"elevatorPitch"`
	HybridGenre           string         `json:"hybridGenre"`
	GenreAlternatives     []string       `json:"genreAlternatives"`
	Themes                []Theme        `json:"primaryThemes"`
	ThematicConsistency   float64        `json:"thematicConsistency"`
	TargetAudience        TargetAudience `json:"targetAudience"`
	Market                MarketAnalysis `json:"marketAnalysis"`
}

// StationKey implements station.Result
func (r *ConceptualResult) StationKey() station.Key { return KeyConceptual }

// NarrativeFields implements station.Result
func (r *ConceptualResult) NarrativeFields() []string {
	fields := []string{r.StoryStatement, r.ElevatorPitch}
	for _, t := range r.Themes {
		fields = append(fields, t.Development)
	}
	return fields
}

type conceptResponse struct {
	StoryStatement        string   `json:"story_statement"`
	AlternativeStatements []string `json:"alternative_statements"`
	ElevatorPitch         string   `json:"elevator_pitch"`
	HybridGenre           string   `json:"hybrid_genre"`
	GenreAlternatives     []string `json:"genre_alternatives"`
}

type themesResponse struct {
	Themes []struct {
		Theme       string   `json:"theme"`
		Evidence    []string `json:"evidence"`
		Strength    float64  `json:"strength"`
		Development string   `json:"development"`
	} `json:"themes"`
	ThematicConsistency *float64 `json:"thematic_consistency"`
}

type audienceResponse struct {
	PrimaryAudience     string   `json:"primary_audience"`
	Demographics        []string `json:"demographics"`
	Psychographics      []string `json:"psychographics"`
	Producibility       *float64 `json:"producibility"`
	CommercialPotential *float64 `json:"commercial_potential"`
}

// Conceptual is station 2: story statement, pitch, genre, themes and market.
type Conceptual struct {
	call caller
}

// NewConceptual creates station 2.
func NewConceptual(deps Deps) *Conceptual {
	return &Conceptual{call: newCaller(deps, KeyConceptual)}
}

// Number implements station.Executor
func (s *Conceptual) Number() int { return 2 }

// Name implements station.Executor
func (s *Conceptual) Name() string { return NameConceptual }

// Agents implements station.Executor
func (s *Conceptual) Agents() []string {
	return []string{"Story Statement Writer", "Theme Analyzer", "Audience Profiler"}
}

// Execute implements station.Executor. Without a station 1 logline the
// opening of the text stands in for it.
func (s *Conceptual) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	logline := prefix(in.Text, 300)
	if r, ok := in.PriorResult(KeyTextAnalysis); ok {
		if ta, ok := r.(*TextAnalysisResult); ok && ta.Logline != "" {
			logline = ta.Logline
		}
	}
	excerpt := prefix(in.Text, conceptPrefix)

	var (
		concept  conceptResponse
		themes   []Theme
		cohesion float64
		audience TargetAudience
		market   MarketAnalysis
	)
	err := fanOut(ctx,
		func(ctx context.Context) (err error) {
			concept, err = s.concept(ctx, logline, excerpt, opts)
			return err
		},
		func(ctx context.Context) error {
			themes, cohesion = s.themes(ctx, excerpt, opts)
			return nil
		},
		func(ctx context.Context) error {
			audience, market = s.audience(ctx, logline, excerpt, opts)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("station 2 execution failed: %w", err)
	}

	return &ConceptualResult{
		StoryStatement:        concept.StoryStatement,
		AlternativeStatements: nonNil(concept.AlternativeStatements),
		ElevatorPitch:         concept.ElevatorPitch,
		HybridGenre:           concept.HybridGenre,
		GenreAlternatives:     nonNil(concept.GenreAlternatives),
		Themes:                themes,
		ThematicConsistency:   cohesion,
		TargetAudience:        audience,
		Market:                market,
	}, nil
}

func (s *Conceptual) concept(ctx context.Context, logline, excerpt string, opts station.Options) (conceptResponse, error) {
	prompt := `Using the logline and excerpt below, write a one-paragraph story statement,
up to three alternative statements, a one-sentence elevator pitch, a hybrid genre label and
alternative genres. Provide JSON:
{"story_statement": "...", "alternative_statements": [], "elevator_pitch": "...",
"hybrid_genre": "...", "genre_alternatives": []}

Logline: ` + logline + `

Excerpt:
` + excerpt

	resp, err := callJSON[conceptResponse](ctx, s.call, "concept", withOptions(taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrConcept,
	}, opts))
	if err != nil {
		return conceptResponse{}, fmt.Errorf("story statement: %w", err)
	}
	if strings.TrimSpace(resp.StoryStatement) == "" {
		return conceptResponse{}, fmt.Errorf("story statement: response has no story statement")
	}
	return resp, nil
}

func (s *Conceptual) themes(ctx context.Context, excerpt string, opts station.Options) ([]Theme, float64) {
	prompt := `Identify up to five primary themes of this text. For each give evidence,
a strength score 0-10 and how it develops. Also score overall thematic consistency 0-10.
Provide JSON:
{"themes": [{"theme": "...", "evidence": [], "strength": 7, "development": "..."}], "thematic_consistency": 7}

Text excerpt:
` + excerpt

	resp, err := callJSON[themesResponse](ctx, s.call, "themes", withOptions(taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrThemes,
	}, opts))
	if err != nil {
		s.call.degrade("themes", err)
		return []Theme{}, 5
	}

	themes := make([]Theme, 0, len(resp.Themes))
	for _, t := range resp.Themes {
		if strings.TrimSpace(t.Theme) == "" {
			continue
		}
		themes = append(themes, Theme{
			Theme:       t.Theme,
			Evidence:    nonNil(t.Evidence),
			Strength:    score10(t.Strength),
			Development: t.Development,
		})
	}
	return themes, score10(orDefault(resp.ThematicConsistency, 5))
}

func (s *Conceptual) audience(ctx context.Context, logline, excerpt string, opts station.Options) (TargetAudience, MarketAnalysis) {
	prompt := `Profile the target audience for this work and score producibility and
commercial potential on 0-10. Provide JSON:
{"primary_audience": "...", "demographics": [], "psychographics": [],
"producibility": 6, "commercial_potential": 7}

Logline: ` + logline + `

Excerpt:
` + prefix(excerpt, 4000)

	resp, err := callJSON[audienceResponse](ctx, s.call, "audience", withOptions(taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.FastModel,
		SystemInstruction: instrAudience,
	}, opts))
	if err != nil {
		s.call.degrade("audience", err)
		return TargetAudience{PrimaryAudience: undetermined, Demographics: []string{}, Psychographics: []string{}},
			MarketAnalysis{Producibility: 5, CommercialPotential: 5}
	}

	audience := TargetAudience{
		PrimaryAudience: resp.PrimaryAudience,
		Demographics:    nonNil(resp.Demographics),
		Psychographics:  nonNil(resp.Psychographics),
	}
	if audience.PrimaryAudience == "" {
		audience.PrimaryAudience = undetermined
	}
	return audience, MarketAnalysis{
		Producibility:       score10(orDefault(resp.Producibility, 5)),
		CommercialPotential: score10(orDefault(resp.CommercialPotential, 5)),
	}
}
