package station

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

// Violation is one broken content rule.
type Violation struct {
	Principle   string `json:"principle"`
	Description string `json:"description"`
}

// ComplianceVerdict is the outcome of checking one text.
type ComplianceVerdict struct {
	Compliant        bool        `json:"compliant"`
	Violations       []Violation `json:"violations"`
	CorrectedText    string      `json:"correctedText"`
	ImprovementScore float64     `json:"improvementScore"`
}

// ComplianceChecker flags and corrects text that violates content rules.
type ComplianceChecker interface {
	Check(ctx context.Context, text string) (ComplianceVerdict, error)
}

// ComplianceRecord summarizes the compliance pass over a station result.
type ComplianceRecord struct {
	Checked          bool     `json:"checked"`
	Compliant        bool     `json:"compliant"`
	Violations       []string `json:"violations"`
	ImprovementScore float64  `json:"improvement_score"`
}

func failedComplianceRecord(err error) *ComplianceRecord {
	return &ComplianceRecord{
		Checked:    false,
		Compliant:  false,
		Violations: []string{"check failed: " + err.Error()},
	}
}

const complianceInstruction = `You review analytical writing about dramatic scripts against these principles:
accuracy to the source text, respect for the author's intent, no harmful stereotyping, constructive tone.
Respond with JSON only: {"compliant": bool, "violations": [{"principle": string, "description": string}],
"correctedText": string, "improvementScore": number between 0 and 1}.
When compliant, correctedText repeats the input unchanged.`

// ModelComplianceChecker asks the generative service to review each text.
type ModelComplianceChecker struct {
	client taskclient.Client
	model  string
}

// NewModelComplianceChecker creates a checker backed by client.
func NewModelComplianceChecker(client taskclient.Client, model string) *ModelComplianceChecker {
	return &ModelComplianceChecker{client: client, model: model}
}

// Check implements ComplianceChecker
func (c *ModelComplianceChecker) Check(ctx context.Context, text string) (ComplianceVerdict, error) {
	verdict, err := taskclient.GenerateJSON[ComplianceVerdict](ctx, c.client, taskclient.Request{
		Prompt:            "Text to review:\n" + text,
		Model:             c.model,
		Temperature:       0.2,
		MaxTokens:         1024,
		SystemInstruction: complianceInstruction,
	})
	if err != nil {
		return ComplianceVerdict{}, fmt.Errorf("compliance review: %w", err)
	}
	verdict.ImprovementScore = math.Max(0, math.Min(1, verdict.ImprovementScore))
	if verdict.Compliant && strings.TrimSpace(verdict.CorrectedText) == "" {
		verdict.CorrectedText = text
	}
	return verdict, nil
}

// PassthroughChecker reports every text as compliant.
type PassthroughChecker struct{}

// Check implements ComplianceChecker
func (PassthroughChecker) Check(_ context.Context, text string) (ComplianceVerdict, error) {
	return ComplianceVerdict{Compliant: true, CorrectedText: text, ImprovementScore: 1}, nil
}
