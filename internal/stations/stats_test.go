package stations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatistics(t *testing.T) {
	text := `She opened the door. "Who is there?" he asked. Nobody answered!`

	stats := ComputeStatistics(text)

	assert.Equal(t, 11, stats.TotalWords)
	assert.Equal(t, len([]rune(text)), stats.TotalCharacters)
	assert.Equal(t, 2.75, stats.AvgSentenceLength)
	assert.Equal(t, 27.3, stats.DialoguePercentage)
	assert.Equal(t, 72.7, stats.NarrativePercentage)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics("   ")

	assert.Zero(t, stats.TotalWords)
	assert.Zero(t, stats.AvgSentenceLength)
	assert.Zero(t, stats.DialoguePercentage)
	assert.Equal(t, 100.0, stats.NarrativePercentage)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, RoleProtagonist, normalizeRole("Main Protagonist"))
	assert.Equal(t, RoleAntagonist, normalizeRole("الخصم"))
	assert.Equal(t, RoleMinor, normalizeRole("extra"))
	assert.Equal(t, ArcNegative, normalizeArc("سلبي"))
	assert.Equal(t, ArcFlat, normalizeArc(""))
	assert.Equal(t, IssueOnTheNose, normalizeIssueType("On the nose"))
	assert.Equal(t, SeverityHigh, normalizeSeverity("HIGH"))
	assert.Equal(t, SeverityMedium, normalizeSeverity(""))
	assert.Equal(t, PacingVeryFast, normalizePacing("very fast"))
	assert.Equal(t, PacingVerySlow, normalizePacing("very slow"))
	assert.Equal(t, PacingModerate, normalizePacing("steady"))
	assert.Equal(t, ComplexityHighlyComplex, normalizeComplexity("highly complex"))
	assert.Equal(t, VocabularyRich, normalizeVocabulary("ثري"))
}
