package stations

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TextStatistics are simple counts over the raw input.
type TextStatistics struct {
	TotalWords          int     `json:"totalWords"`
	TotalCharacters     int     `json:"totalCharacters"`
	AvgSentenceLength   float64 `json:"avgSentenceLength"`
	DialoguePercentage  float64 `json:"dialoguePercentage"`
	NarrativePercentage float64 `json:"narrativePercentage"`
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?؟]+`)
	quotedSpan    = regexp.MustCompile(`["«»“”][^"«»“”]*["«»“”]`)
)

// ComputeStatistics counts words, characters, average sentence length and
// the share of words that appear inside quotation marks.
func ComputeStatistics(text string) TextStatistics {
	words := len(strings.Fields(text))

	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}

	dialogueWords := 0
	for _, m := range quotedSpan.FindAllString(text, -1) {
		dialogueWords += len(strings.Fields(m))
	}

	stats := TextStatistics{
		TotalWords:      words,
		TotalCharacters: utf8.RuneCountInString(text),
	}
	if sentences > 0 {
		stats.AvgSentenceLength = round(float64(words)/float64(sentences), 2)
	}
	dialogue := 0.0
	if words > 0 {
		dialogue = percent(float64(dialogueWords) / float64(words) * 100)
	}
	stats.DialoguePercentage = round(dialogue, 1)
	stats.NarrativePercentage = round(100-dialogue, 1)
	return stats
}
