package stations

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

const (
	instrCast          = "You are a dramaturg mapping a cast of characters. Provide structured JSON output."
	instrRelationships = "You are a dramaturg mapping character relationships. Provide structured JSON output."
	instrConflicts     = "You are a dramaturg mapping dramatic conflicts. Provide structured JSON output."
)

// ConflictPhase is where a conflict stands in its lifecycle.
type ConflictPhase string

const (
	PhaseLatent     ConflictPhase = "latent"
	PhaseEmerging   ConflictPhase = "emerging"
	PhaseEscalating ConflictPhase = "escalating"
	PhaseClimax     ConflictPhase = "climax"
	PhaseResolved   ConflictPhase = "resolved"
)

func normalizePhase(s string) ConflictPhase {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "latent", "كامن"):
		return PhaseLatent
	case containsAny(s, "escalat", "تصاعد"):
		return PhaseEscalating
	case containsAny(s, "climax", "ذروة"):
		return PhaseClimax
	case containsAny(s, "resolv", "حل"):
		return PhaseResolved
	}
	return PhaseEmerging
}

// NetworkCharacter is a node of the conflict network.
type NetworkCharacter struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Relationship is an edge between two characters.
type Relationship struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Strength    float64 `json:"strength"`
	Description string  `json:"description"`
}

// Conflict is a dramatic conflict between characters.
type Conflict struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	InvolvedCharacters []string      `json:"involvedCharacters"`
	Phase              ConflictPhase `json:"phase"`
	Strength           float64       `json:"strength"`
}

// NetworkStats are computed from the network itself.
type NetworkStats struct {
	Density            float64  `json:"density"`
	AverageStrength    float64  `json:"averageStrength"`
	ConflictIntensity  float64  `json:"conflictIntensity"`
	IsolatedCharacters []string `json:"isolatedCharacters"`
}

// NetworkResult is the result of station 3.
type NetworkResult struct {
	Characters    []NetworkCharacter `json:"characters"`
	Relationships []Relationship     `json:"relationships"`
	Conflicts     []Conflict         `json:"conflicts"`
	Stats         NetworkStats       `json:"stats"`
}

// StationKey implements station.Result
func (r *NetworkResult) StationKey() station.Key { return KeyNetwork }

// NarrativeFields implements station.Result
func (r *NetworkResult) NarrativeFields() []string {
	fields := make([]string, 0, len(r.Characters))
	for _, c := range r.Characters {
		fields = append(fields, c.Description)
	}
	return fields
}

type castResponse struct {
	Characters []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"characters"`
}

type relationshipsResponse struct {
	Relationships []struct {
		Source      string  `json:"source"`
		Target      string  `json:"target"`
		Type        string  `json:"type"`
		Strength    float64 `json:"strength"`
		Description string  `json:"description"`
	} `json:"relationships"`
}

type conflictsResponse struct {
	Conflicts []struct {
		Name               string   `json:"name"`
		Description        string   `json:"description"`
		InvolvedCharacters []string `json:"involved_characters"`
		Phase              string   `json:"phase"`
		Strength           float64  `json:"strength"`
	} `json:"conflicts"`
}

// Network is station 3: characters, relationships and conflicts.
type Network struct {
	call caller
}

// NewNetwork creates station 3.
func NewNetwork(deps Deps) *Network {
	return &Network{call: newCaller(deps, KeyNetwork)}
}

// Number implements station.Executor
func (s *Network) Number() int { return 3 }

// Name implements station.Executor
func (s *Network) Name() string { return NameNetwork }

// Agents implements station.Executor
func (s *Network) Agents() []string {
	return []string{"Cast Mapper", "Relationship Mapper", "Conflict Mapper", "Network Statistics"}
}

// Execute implements station.Executor. The cast comes from station 1 when
// available; otherwise the model discovers it first.
func (s *Network) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	excerpt := prefix(in.Text, extractionPrefix)

	cast, err := s.cast(ctx, in, excerpt, opts)
	if err != nil {
		return nil, fmt.Errorf("station 3 execution failed: %w", err)
	}
	names := make([]string, len(cast))
	for i, c := range cast {
		names[i] = c.Name
	}

	var (
		rels      relationshipsResponse
		conflicts conflictsResponse
	)
	err = fanOut(ctx,
		func(ctx context.Context) (err error) {
			rels, err = callJSON[relationshipsResponse](ctx, s.call, "relationships", withOptions(taskclient.Request{
				Prompt: `Map the relationships between these characters: ` + joinNames(names) + `
Give a type, a strength 0-10 and a short description for each. Provide JSON:
{"relationships": [{"source": "a", "target": "b", "type": "family", "strength": 7, "description": "..."}]}

Text excerpt:
` + excerpt,
				Model:             s.call.deps.PrimaryModel,
				SystemInstruction: instrRelationships,
			}, opts))
			if err != nil {
				return fmt.Errorf("map relationships: %w", err)
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			conflicts, err = callJSON[conflictsResponse](ctx, s.call, "conflicts", withOptions(taskclient.Request{
				Prompt: `Identify the dramatic conflicts between these characters: ` + joinNames(names) + `
Give each a name, description, involved characters, phase (latent/emerging/escalating/climax/resolved)
and intensity 0-10. Provide JSON:
{"conflicts": [{"name": "...", "description": "...", "involved_characters": [], "phase": "emerging", "strength": 6}]}

Text excerpt:
` + excerpt,
				Model:             s.call.deps.PrimaryModel,
				SystemInstruction: instrConflicts,
			}, opts))
			if err != nil {
				return fmt.Errorf("map conflicts: %w", err)
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("station 3 execution failed: %w", err)
	}

	return buildNetwork(cast, rels, conflicts), nil
}

func (s *Network) cast(ctx context.Context, in station.Input, excerpt string, opts station.Options) ([]NetworkCharacter, error) {
	if r, ok := in.PriorResult(KeyTextAnalysis); ok {
		if ta, ok := r.(*TextAnalysisResult); ok && len(ta.MajorCharacters) > 0 {
			cast := make([]NetworkCharacter, len(ta.MajorCharacters))
			for i, c := range ta.MajorCharacters {
				cast[i] = NetworkCharacter{
					ID:          fmt.Sprintf("char-%d", i+1),
					Name:        c.Name,
					Description: c.Arc.Description,
				}
			}
			return cast, nil
		}
	}

	resp, err := callJSON[castResponse](ctx, s.call, "cast", withOptions(taskclient.Request{
		Prompt: `List the principal characters of this text with a one-sentence description each.
Provide JSON: {"characters": [{"name": "...", "description": "..."}]}

Text excerpt:
` + excerpt,
		Model:             s.call.deps.FastModel,
		SystemInstruction: instrCast,
	}, opts))
	if err != nil {
		return nil, fmt.Errorf("discover cast: %w", err)
	}

	cast := make([]NetworkCharacter, 0, len(resp.Characters))
	for _, c := range resp.Characters {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		cast = append(cast, NetworkCharacter{
			ID:          fmt.Sprintf("char-%d", len(cast)+1),
			Name:        c.Name,
			Description: c.Description,
		})
	}
	return cast, nil
}

// buildNetwork keeps only edges between known characters and computes the
// network statistics.
func buildNetwork(cast []NetworkCharacter, rels relationshipsResponse, conflicts conflictsResponse) *NetworkResult {
	known := make(map[string]bool, len(cast))
	for _, c := range cast {
		known[c.Name] = true
	}
	connected := make(map[string]bool, len(cast))

	out := &NetworkResult{
		Characters:    cast,
		Relationships: []Relationship{},
		Conflicts:     []Conflict{},
	}

	strengthSum := 0.0
	for _, r := range rels.Relationships {
		if !known[r.Source] || !known[r.Target] || r.Source == r.Target {
			continue
		}
		rel := Relationship{
			ID:          fmt.Sprintf("rel-%d", len(out.Relationships)+1),
			Source:      r.Source,
			Target:      r.Target,
			Type:        r.Type,
			Strength:    score10(r.Strength),
			Description: r.Description,
		}
		out.Relationships = append(out.Relationships, rel)
		strengthSum += rel.Strength
		connected[r.Source] = true
		connected[r.Target] = true
	}

	intensitySum := 0.0
	for _, c := range conflicts.Conflicts {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		involved := []string{}
		for _, name := range c.InvolvedCharacters {
			if known[name] {
				involved = append(involved, name)
				connected[name] = true
			}
		}
		conflict := Conflict{
			ID:                 fmt.Sprintf("conf-%d", len(out.Conflicts)+1),
			Name:               c.Name,
			Description:        c.Description,
			InvolvedCharacters: involved,
			Phase:              normalizePhase(c.Phase),
			Strength:           score10(c.Strength),
		}
		out.Conflicts = append(out.Conflicts, conflict)
		intensitySum += conflict.Strength
	}

	out.Stats.IsolatedCharacters = []string{}
	for _, c := range cast {
		if !connected[c.Name] {
			out.Stats.IsolatedCharacters = append(out.Stats.IsolatedCharacters, c.Name)
		}
	}
	if n := len(cast); n > 1 {
		out.Stats.Density = round(clamp(float64(len(out.Relationships))/float64(n*(n-1)/2), 0, 1), 2)
	}
	if n := len(out.Relationships); n > 0 {
		out.Stats.AverageStrength = round(strengthSum/float64(n), 2)
	}
	if n := len(out.Conflicts); n > 0 {
		out.Stats.ConflictIntensity = round(intensitySum/float64(n), 2)
	}
	return out
}
