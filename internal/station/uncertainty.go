package station

import (
	"context"
	"fmt"
	"math"

	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

// UncertaintyType classifies the nature of doubt about a result.
type UncertaintyType string

const (
	// Epistemic uncertainty can be reduced with more information
	Epistemic UncertaintyType = "epistemic"
	// Aleatoric uncertainty is inherent to the material
	Aleatoric UncertaintyType = "aleatoric"
)

// UncertaintySource is one itemized reason for doubt.
type UncertaintySource struct {
	Aspect    string `json:"aspect"`
	Reason    string `json:"reason"`
	Reducible bool   `json:"reducible"`
}

// UncertaintyVerdict is the score for one text.
type UncertaintyVerdict struct {
	Confidence float64             `json:"confidence"`
	Type       UncertaintyType     `json:"uncertaintyType"`
	Sources    []UncertaintySource `json:"sources"`
}

// UncertaintyScorer estimates how trustworthy a piece of generated text is.
type UncertaintyScorer interface {
	Score(ctx context.Context, text string) (UncertaintyVerdict, error)
}

// UncertaintyRecord summarizes the uncertainty pass over a station result.
type UncertaintyRecord struct {
	Quantified        bool                `json:"quantified"`
	OverallConfidence float64             `json:"overall_confidence"`
	Type              UncertaintyType     `json:"uncertainty_type"`
	Sources           []UncertaintySource `json:"sources"`
}

// maxUncertaintySources bounds the sources kept on a record.
const maxUncertaintySources = 5

func failedUncertaintyRecord(err error) *UncertaintyRecord {
	return &UncertaintyRecord{
		Quantified:        false,
		OverallConfidence: 0.5,
		Type:              Epistemic,
		Sources: []UncertaintySource{{
			Aspect:    "analysis failed",
			Reason:    err.Error(),
			Reducible: false,
		}},
	}
}

// StaticScorer returns a fixed verdict for every text.
type StaticScorer struct {
	Verdict UncertaintyVerdict
}

// NewStaticScorer returns confidence 0.8, epistemic, no sources.
func NewStaticScorer() StaticScorer {
	return StaticScorer{Verdict: UncertaintyVerdict{Confidence: 0.8, Type: Epistemic}}
}

// Score implements UncertaintyScorer
func (s StaticScorer) Score(context.Context, string) (UncertaintyVerdict, error) {
	return s.Verdict, nil
}

const uncertaintyInstruction = `You assess how well-supported a piece of analysis of a dramatic script is.
Respond with JSON only: {"confidence": number between 0 and 1, "uncertaintyType": "epistemic" or "aleatoric",
"sources": [{"aspect": string, "reason": string, "reducible": bool}]}.`

// ModelUncertaintyScorer asks the generative service for a confidence score.
type ModelUncertaintyScorer struct {
	client taskclient.Client
	model  string
}

// NewModelUncertaintyScorer creates a scorer backed by client.
func NewModelUncertaintyScorer(client taskclient.Client, model string) *ModelUncertaintyScorer {
	return &ModelUncertaintyScorer{client: client, model: model}
}

// Score implements UncertaintyScorer
func (s *ModelUncertaintyScorer) Score(ctx context.Context, text string) (UncertaintyVerdict, error) {
	verdict, err := taskclient.GenerateJSON[UncertaintyVerdict](ctx, s.client, taskclient.Request{
		Prompt:            "Analysis to assess:\n" + text,
		Model:             s.model,
		Temperature:       0.2,
		MaxTokens:         1024,
		SystemInstruction: uncertaintyInstruction,
	})
	if err != nil {
		return UncertaintyVerdict{}, fmt.Errorf("uncertainty scoring: %w", err)
	}
	verdict.Confidence = math.Max(0, math.Min(1, verdict.Confidence))
	if verdict.Type != Aleatoric {
		verdict.Type = Epistemic
	}
	return verdict, nil
}
