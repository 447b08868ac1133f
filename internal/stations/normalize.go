package stations

import (
	"math"
	"strings"
)

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// score10 clamps a quality score into [0, 10].
func score10(v float64) float64 { return clamp(v, 0, 10) }

// percent clamps a percentage into [0, 100].
func percent(v float64) float64 { return clamp(v, 0, 100) }

// unit clamps a confidence into [0, 1].
func unit(v float64) float64 { return clamp(v, 0, 1) }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// orDefault returns *v, or def when v is nil.
func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Role is a character's dramatic function.
type Role string

const (
	RoleProtagonist Role = "protagonist"
	RoleAntagonist  Role = "antagonist"
	RoleSupporting  Role = "supporting"
	RoleMinor       Role = "minor"
)

func normalizeRole(s string) Role {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "protag", "بطل"):
		return RoleProtagonist
	case containsAny(s, "antag", "خصم"):
		return RoleAntagonist
	case containsAny(s, "support", "مساعد"):
		return RoleSupporting
	}
	return RoleMinor
}

// ArcType classifies how a character changes.
type ArcType string

const (
	ArcPositive ArcType = "positive"
	ArcNegative ArcType = "negative"
	ArcFlat     ArcType = "flat"
	ArcComplex  ArcType = "complex"
)

func normalizeArc(s string) ArcType {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "positive", "إيجابي"):
		return ArcPositive
	case containsAny(s, "negative", "سلبي"):
		return ArcNegative
	case containsAny(s, "complex", "معقد"):
		return ArcComplex
	}
	return ArcFlat
}

// IssueType classifies a dialogue problem.
type IssueType string

const (
	IssueRedundancy     IssueType = "redundancy"
	IssueInconsistency  IssueType = "inconsistency"
	IssueExpositionDump IssueType = "exposition_dump"
	IssueOnTheNose      IssueType = "on_the_nose"
	IssuePacing         IssueType = "pacing"
)

func normalizeIssueType(s string) IssueType {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "redundan"):
		return IssueRedundancy
	case strings.Contains(s, "inconsist"):
		return IssueInconsistency
	case strings.Contains(s, "exposition"):
		return IssueExpositionDump
	case strings.Contains(s, "nose"):
		return IssueOnTheNose
	}
	return IssuePacing
}

// Severity grades an issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func normalizeSeverity(s string) Severity {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "high", "عالي", "critical"):
		return SeverityHigh
	case containsAny(s, "low", "منخفض"):
		return SeverityLow
	}
	return SeverityMedium
}

// Pacing is the perceived speed of the narrative.
type Pacing string

const (
	PacingVerySlow Pacing = "very_slow"
	PacingSlow     Pacing = "slow"
	PacingModerate Pacing = "moderate"
	PacingFast     Pacing = "fast"
	PacingVeryFast Pacing = "very_fast"
)

func normalizePacing(s string) Pacing {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "very_slow", "very slow", "بطيء جداً"):
		return PacingVerySlow
	case containsAny(s, "slow", "بطيء"):
		return PacingSlow
	case strings.Contains(s, "fast") && strings.Contains(s, "very"):
		return PacingVeryFast
	case containsAny(s, "fast", "سريع"):
		return PacingFast
	}
	return PacingModerate
}

// Complexity grades language complexity.
type Complexity string

const (
	ComplexitySimple        Complexity = "simple"
	ComplexityModerate      Complexity = "moderate"
	ComplexityComplex       Complexity = "complex"
	ComplexityHighlyComplex Complexity = "highly_complex"
)

func normalizeComplexity(s string) Complexity {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "highly", "معقد جداً"):
		return ComplexityHighlyComplex
	case containsAny(s, "complex", "معقد"):
		return ComplexityComplex
	case containsAny(s, "simple", "بسيط"):
		return ComplexitySimple
	}
	return ComplexityModerate
}

// Vocabulary grades vocabulary range.
type Vocabulary string

const (
	VocabularyLimited   Vocabulary = "limited"
	VocabularyStandard  Vocabulary = "standard"
	VocabularyRich      Vocabulary = "rich"
	VocabularyExtensive Vocabulary = "extensive"
)

func normalizeVocabulary(s string) Vocabulary {
	s = strings.ToLower(s)
	switch {
	case containsAny(s, "extensive", "واسع"):
		return VocabularyExtensive
	case containsAny(s, "rich", "ثري"):
		return VocabularyRich
	case containsAny(s, "limited", "محدود"):
		return VocabularyLimited
	}
	return VocabularyStandard
}
