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
	instrDiagnose = "You are a script doctor diagnosing structural problems. Provide structured JSON output."
	instrTreat    = "You are a script doctor prescribing revisions. Provide structured JSON output."
)

// Priority orders treatments.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityShortTerm Priority = "short_term"
	PriorityLongTerm  Priority = "long_term"
	PriorityOptional  Priority = "optional"
)

func normalizePriority(s string) Priority {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "immediate", "فوري"):
		return PriorityImmediate
	case containsAny(s, "short", "قصير"):
		return PriorityShortTerm
	case containsAny(s, "long", "طويل"):
		return PriorityLongTerm
	}
	return PriorityOptional
}

// DiagnosticIssue is one problem found in the script.
type DiagnosticIssue struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Impact      float64  `json:"impact"`
}

// Treatment is a prescribed revision.
type Treatment struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Impact      float64  `json:"impact"`
	Effort      float64  `json:"effort"`
}

// DiagnosticsResult is the result of station 6.
type DiagnosticsResult struct {
	Summary     string            `json:"summary"`
	HealthScore float64           `json:"overallHealthScore"`
	Issues      []DiagnosticIssue `json:"issues"`
	Treatments  []Treatment       `json:"treatments"`
}

// StationKey implements station.Result
func (r *DiagnosticsResult) StationKey() station.Key { return KeyDiagnostics }

// NarrativeFields implements station.Result
func (r *DiagnosticsResult) NarrativeFields() []string {
	fields := []string{r.Summary}
	for _, t := range r.Treatments {
		fields = append(fields, t.Description)
	}
	return fields
}

type diagnosisResponse struct {
	Summary string `json:"summary"`
	Issues  []struct {
		Category    string  `json:"category"`
		Severity    string  `json:"severity"`
		Description string  `json:"description"`
		Location    string  `json:"location"`
		Impact      float64 `json:"impact"`
	} `json:"issues"`
}

type treatmentResponse struct {
	Treatments []struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Priority    string  `json:"priority"`
		Impact      float64 `json:"impact"`
		Effort      float64 `json:"effort"`
	} `json:"treatments"`
}

// severityPenalty is subtracted from a perfect health score per issue.
var severityPenalty = map[Severity]float64{
	SeverityHigh:   15,
	SeverityMedium: 7,
	SeverityLow:    3,
}

// Diagnostics is station 6: issues and treatments.
type Diagnostics struct {
	call caller
}

// NewDiagnostics creates station 6.
func NewDiagnostics(deps Deps) *Diagnostics {
	return &Diagnostics{call: newCaller(deps, KeyDiagnostics)}
}

// Number implements station.Executor
func (s *Diagnostics) Number() int { return 6 }

// Name implements station.Executor
func (s *Diagnostics) Name() string { return NameDiagnostics }

// Agents implements station.Executor
func (s *Diagnostics) Agents() []string {
	return []string{"Structural Diagnostician", "Treatment Planner"}
}

// Execute implements station.Executor. Efficiency and tension findings feed
// the diagnosis when stations 4 and 5 succeeded.
func (s *Diagnostics) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	findings := []string{}
	if r, ok := in.PriorResult(KeyEfficiency); ok {
		if e, ok := r.(*EfficiencyResult); ok {
			findings = append(findings, fmt.Sprintf("efficiency %.0f/100 (%s), redundancy %.1f/10",
				e.Metrics.OverallScore, e.Metrics.OverallRating, e.Metrics.Redundancy))
		}
	}
	if r, ok := in.PriorResult(KeyDynamics); ok {
		if d, ok := r.(*DynamicsResult); ok {
			findings = append(findings, fmt.Sprintf("tension average %.1f/10, peak %.1f/10",
				d.Tension.Average, d.Tension.Peak))
		}
	}
	if len(findings) == 0 {
		findings = append(findings, "no earlier measurements available")
	}

	diag, err := callJSON[diagnosisResponse](ctx, s.call, "diagnosis", withOptions(taskclient.Request{
		Prompt: `Diagnose the structural, character, dialogue and pacing problems of this script.
Earlier measurements: ` + strings.Join(findings, "; ") + `
Give a short summary and list issues with category, severity (low/medium/high), description,
location and impact 0-10. Provide JSON:
{"summary": "...", "issues": [{"category": "pacing", "severity": "medium", "description": "...", "location": "...", "impact": 5}]}

Text excerpt:
` + prefix(in.Text, extractionPrefix),
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrDiagnose,
	}, opts))
	if err != nil {
		return nil, fmt.Errorf("station 6 execution failed: diagnose: %w", err)
	}
	if strings.TrimSpace(diag.Summary) == "" {
		return nil, fmt.Errorf("station 6 execution failed: diagnose: response has no summary")
	}

	out := &DiagnosticsResult{Summary: diag.Summary, Issues: []DiagnosticIssue{}, Treatments: []Treatment{}}
	health := 100.0
	for _, i := range diag.Issues {
		if strings.TrimSpace(i.Description) == "" {
			continue
		}
		issue := DiagnosticIssue{
			Category:    i.Category,
			Severity:    normalizeSeverity(i.Severity),
			Description: i.Description,
			Location:    i.Location,
			Impact:      score10(i.Impact),
		}
		out.Issues = append(out.Issues, issue)
		health -= severityPenalty[issue.Severity]
	}
	out.HealthScore = math.Round(clamp(health, 0, 100))

	if len(out.Issues) > 0 {
		out.Treatments = s.treatments(ctx, out.Issues, opts)
	}
	return out, nil
}

func (s *Diagnostics) treatments(ctx context.Context, issues []DiagnosticIssue, opts station.Options) []Treatment {
	var b strings.Builder
	for _, i := range issues {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", i.Category, i.Severity, i.Description)
	}

	resp, err := callJSON[treatmentResponse](ctx, s.call, "treatments", withOptions(taskclient.Request{
		Prompt: `Prescribe revisions for these script issues. For each treatment give a title,
description, priority (immediate/short_term/long_term/optional), impact 0-10 and effort 0-10.
Provide JSON: {"treatments": [{"title": "...", "description": "...", "priority": "immediate", "impact": 7, "effort": 4}]}

Issues:
` + b.String(),
		Model:             s.call.deps.PrimaryModel,
		SystemInstruction: instrTreat,
	}, opts))
	if err != nil {
		s.call.degrade("treatments", err)
		return []Treatment{}
	}

	out := make([]Treatment, 0, len(resp.Treatments))
	for _, t := range resp.Treatments {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		out = append(out, Treatment{
			Title:       t.Title,
			Description: t.Description,
			Priority:    normalizePriority(t.Priority),
			Impact:      score10(t.Impact),
			Effort:      score10(t.Effort),
		})
	}
	return out
}
