package stations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

const (
	loglinePrefix    = 15000
	extractionPrefix = 20000
	deepPrefix       = 25000

	minLoglineLength    = 20
	maxRankedCharacters = 10
	maxMajorCharacters  = 7
)

// Sub-task system instructions; each identifies its sub-task on the wire.
const (
	instrLogline    = "You are an expert story analyst. Provide clear, concise analysis."
	instrCharacters = "You are an expert character analyst. Provide structured JSON output."
	instrStyle      = "You are an expert literary analyst. Provide detailed JSON analysis."
	instrCharacter  = "You are an expert character psychologist. Provide detailed JSON analysis."
	instrDialogue   = "You are an expert dialogue analyst. Provide detailed JSON analysis."
	instrVoice      = "You are an expert in character voice analysis. Provide detailed JSON analysis."
)

// Arabic labels used in the station's uncertainty report.
const (
	aspectCharacters = "تحليل الشخصيات"
	noteCharacters   = "مستوى الثقة في تحليل بعض الشخصيات منخفض نسبياً"
	aspectDialogue   = "تميز الحوار"
	noteDialogue     = "أصوات الشخصيات قد تكون غير متميزة بشكل كافٍ"
	aspectVoices     = "تداخل الأصوات"
	undetermined     = "غير محدد"
)

// CharacterArc describes how a character changes.
type CharacterArc struct {
	Type        ArcType  `json:"type"`
	Description string   `json:"description"`
	KeyMoments  []string `json:"keyMoments"`
}

// CharacterProfile is the deep analysis of one character.
type CharacterProfile struct {
	Name              string       `json:"name"`
	Role              Role         `json:"role"`
	PersonalityTraits []string     `json:"personalityTraits"`
	Motivations       []string     `json:"motivations"`
	Goals             []string     `json:"goals"`
	Obstacles         []string     `json:"obstacles"`
	Arc               CharacterArc `json:"arc"`
	Confidence        float64      `json:"confidence"`
}

// DialogueIssue is one flagged dialogue problem.
type DialogueIssue struct {
	Type       IssueType `json:"type"`
	Location   string    `json:"location"`
	Severity   Severity  `json:"severity"`
	Suggestion string    `json:"suggestion"`
}

// DialogueMetrics grade dialogue quality on a 0-10 scale.
type DialogueMetrics struct {
	Efficiency      float64         `json:"efficiency"`
	Distinctiveness float64         `json:"distinctiveness"`
	Naturalness     float64         `json:"naturalness"`
	Subtext         float64         `json:"subtext"`
	Issues          []DialogueIssue `json:"issues"`
}

// VoiceProfile describes one character's voice.
type VoiceProfile struct {
	Character       string   `json:"character"`
	Distinctiveness float64  `json:"distinctiveness"`
	Characteristics []string `json:"characteristics"`
	SampleLines     []string `json:"sampleLines"`
}

// VoiceOverlap flags two characters that sound alike.
type VoiceOverlap struct {
	Character1     string   `json:"character1"`
	Character2     string   `json:"character2"`
	Similarity     float64  `json:"similarity"`
	Examples       []string `json:"examples"`
	Recommendation string   `json:"recommendation"`
}

// VoiceAnalysis measures how distinct the character voices are.
type VoiceAnalysis struct {
	Profiles               map[string]VoiceProfile `json:"profiles"`
	Overlaps               []VoiceOverlap          `json:"overlapIssues"`
	OverallDistinctiveness float64                 `json:"overallDistinctiveness"`
}

// PacingAnalysis grades narrative speed.
type PacingAnalysis struct {
	Overall    Pacing   `json:"overall"`
	Variation  float64  `json:"variation"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// LanguageStyle grades the prose itself.
type LanguageStyle struct {
	Complexity        Complexity `json:"complexity"`
	Vocabulary        Vocabulary `json:"vocabulary"`
	SentenceStructure string     `json:"sentenceStructure"`
	LiteraryDevices   []string   `json:"literaryDevices"`
}

// NarrativeStyle is the style analysis of the text.
type NarrativeStyle struct {
	OverallTone   string         `json:"overallTone"`
	ToneElements  []string       `json:"toneElements"`
	Pacing        PacingAnalysis `json:"pacingAnalysis"`
	Language      LanguageStyle  `json:"languageStyle"`
	PointOfView   string         `json:"pointOfView"`
	TimeStructure string         `json:"timeStructure"`
}

// UncertaintyNote is one itemized reason for doubt in a station's own findings.
type UncertaintyNote struct {
	Type      station.UncertaintyType `json:"type"`
	Aspect    string                  `json:"aspect"`
	Note      string                  `json:"note"`
	Reducible bool                    `json:"reducible"`
}

// UncertaintyReport is a station's self-assessed confidence.
type UncertaintyReport struct {
	Confidence    float64           `json:"confidence"`
	Uncertainties []UncertaintyNote `json:"uncertainties"`
}

// TextAnalysisResult is the result of station 1.
type TextAnalysisResult struct {
	Logline           string                      `json:"logline"`
	MajorCharacters   []CharacterProfile          `json:"majorCharacters"`
	CharacterAnalysis map[string]CharacterProfile `json:"characterAnalysis"`
	Dialogue          DialogueMetrics             `json:"dialogueAnalysis"`
	Voice             VoiceAnalysis               `json:"voiceAnalysis"`
	Style             NarrativeStyle              `json:"narrativeStyleAnalysis"`
	Statistics        TextStatistics              `json:"textStatistics"`
	Uncertainty       UncertaintyReport           `json:"uncertaintyReport"`
	TextLength        int                         `json:"textLength"`
	ChunksProcessed   int                         `json:"chunksProcessed"`
}

// StationKey implements station.Result
func (r *TextAnalysisResult) StationKey() station.Key { return KeyTextAnalysis }

// NarrativeFields implements station.Result
func (r *TextAnalysisResult) NarrativeFields() []string {
	fields := []string{r.Logline}
	for _, c := range r.MajorCharacters {
		fields = append(fields, c.Arc.Description)
	}
	return fields
}

// wire shapes; pointers distinguish a missing number from zero

type rankedCharacter struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Prominence *float64 `json:"prominence"`
}

type charactersResponse struct {
	Characters []rankedCharacter `json:"characters"`
}

type characterResponse struct {
	PersonalityTraits []string `json:"personality_traits"`
	Motivations       []string `json:"motivations"`
	Goals             []string `json:"goals"`
	Obstacles         []string `json:"obstacles"`
	ArcType           string   `json:"arc_type"`
	ArcDescription    string   `json:"arc_description"`
	KeyMoments        []string `json:"key_moments"`
	Confidence        *float64 `json:"confidence"`
}

type dialogueResponse struct {
	Efficiency      *float64 `json:"efficiency"`
	Distinctiveness *float64 `json:"distinctiveness"`
	Naturalness     *float64 `json:"naturalness"`
	Subtext         *float64 `json:"subtext"`
	Issues          []struct {
		Type       string `json:"type"`
		Location   string `json:"location"`
		Severity   string `json:"severity"`
		Suggestion string `json:"suggestion"`
	} `json:"issues"`
}

type voiceResponse struct {
	Profiles []struct {
		Character       string   `json:"character"`
		Distinctiveness float64  `json:"distinctiveness"`
		Characteristics []string `json:"characteristics"`
		SampleLines     []string `json:"sample_lines"`
	} `json:"profiles"`
	Overlaps []struct {
		Character1     string   `json:"character1"`
		Character2     string   `json:"character2"`
		Similarity     float64  `json:"similarity"`
		Examples       []string `json:"examples"`
		Recommendation string   `json:"recommendation"`
	} `json:"overlaps"`
	OverallDistinctiveness *float64 `json:"overall_distinctiveness"`
}

type styleResponse struct {
	OverallTone  string   `json:"overall_tone"`
	ToneElements []string `json:"tone_elements"`
	Pacing       struct {
		Overall    string   `json:"overall"`
		Variation  *float64 `json:"variation"`
		Strengths  []string `json:"strengths"`
		Weaknesses []string `json:"weaknesses"`
	} `json:"pacing"`
	LanguageStyle struct {
		Complexity        string   `json:"complexity"`
		Vocabulary        string   `json:"vocabulary"`
		SentenceStructure string   `json:"sentence_structure"`
		LiteraryDevices   []string `json:"literary_devices"`
	} `json:"language_style"`
	PointOfView   string `json:"point_of_view"`
	TimeStructure string `json:"time_structure"`
}

// TextAnalysis is station 1: summary, characters, dialogue, voices and style.
type TextAnalysis struct {
	call caller
}

// NewTextAnalysis creates station 1.
func NewTextAnalysis(deps Deps) *TextAnalysis {
	return &TextAnalysis{call: newCaller(deps, KeyTextAnalysis)}
}

// Number implements station.Executor
func (s *TextAnalysis) Number() int { return 1 }

// Name implements station.Executor
func (s *TextAnalysis) Name() string { return NameTextAnalysis }

// Agents implements station.Executor
func (s *TextAnalysis) Agents() []string {
	return []string{
		"Logline Generator",
		"Character Identifier",
		"Character Deep Analyzer",
		"Dialogue Forensics",
		"Voice Analyzer",
		"Narrative Style Analyzer",
		"Text Statistics Calculator",
	}
}

// Execute implements station.Executor. A failure of the logline, character
// list or style sub-task fails the station; every other sub-task degrades.
func (s *TextAnalysis) Execute(ctx context.Context, in station.Input, opts station.Options) (station.Result, error) {
	text := in.Text
	chunks := in.Chunks
	if len(chunks) == 0 {
		chunks = ChunkText(text)
	}

	var (
		logline string
		ranked  []rankedCharacter
		style   NarrativeStyle
	)
	err := fanOut(ctx,
		func(ctx context.Context) (err error) {
			logline, err = s.logline(ctx, text)
			return err
		},
		func(ctx context.Context) (err error) {
			ranked, err = s.identifyCharacters(ctx, text)
			return err
		},
		func(ctx context.Context) (err error) {
			style, err = s.narrativeStyle(ctx, text, opts)
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("station 1 execution failed: %w", err)
	}

	characters := inBatches(ctx, ranked, MaxParallelCalls, func(ctx context.Context, c rankedCharacter) (CharacterProfile, bool) {
		return s.analyzeCharacter(ctx, text, c)
	})

	var (
		dialogue DialogueMetrics
		voice    VoiceAnalysis
	)
	_ = fanOut(ctx,
		func(ctx context.Context) error {
			dialogue = s.dialogue(ctx, text, characters)
			return nil
		},
		func(ctx context.Context) error {
			voice = s.voices(ctx, text, characters)
			return nil
		},
	)

	byName := make(map[string]CharacterProfile, len(characters))
	for _, c := range characters {
		byName[c.Name] = c
	}

	return &TextAnalysisResult{
		Logline:           logline,
		MajorCharacters:   characters[:min(len(characters), maxMajorCharacters)],
		CharacterAnalysis: byName,
		Dialogue:          dialogue,
		Voice:             voice,
		Style:             style,
		Statistics:        ComputeStatistics(text),
		Uncertainty:       synthesizeConfidence(characters, dialogue, voice),
		TextLength:        utf8.RuneCountInString(text),
		ChunksProcessed:   len(chunks),
	}, nil
}

func (s *TextAnalysis) logline(ctx context.Context, text string) (string, error) {
	prompt := `Analyze this narrative text and generate a compelling logline.
A logline is 1-2 sentences naming the protagonist, their goal, the main obstacle and the stakes.

Text excerpt:
` + prefix(text, loglinePrefix) + `

Generate a concise, engaging logline in Arabic.`

	req := taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.FastModel,
		Temperature:       0.6,
		MaxTokens:         300,
		SystemInstruction: instrLogline,
	}
	out, err := s.call.text(ctx, "logline", req)
	if err != nil {
		return "", fmt.Errorf("generate logline: %w", err)
	}
	if utf8.RuneCountInString(out) < minLoglineLength {
		taskclient.Reject(s.call.deps.Client, req)
		return "", fmt.Errorf("generate logline: response shorter than %d characters", minLoglineLength)
	}
	return out, nil
}

func (s *TextAnalysis) identifyCharacters(ctx context.Context, text string) ([]rankedCharacter, error) {
	prompt := `Analyze this narrative and identify the major characters.
For each character give the name, the role (protagonist/antagonist/supporting/minor)
and prominence on a 0-10 scale based on narrative presence.
List 3-10 characters as JSON:
{"characters": [{"name": "character name", "role": "protagonist", "prominence": 10}]}

Text excerpt:
` + prefix(text, extractionPrefix)

	resp, err := callJSON[charactersResponse](ctx, s.call, "characters", taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.FastModel,
		Temperature:       0.3,
		MaxTokens:         1500,
		SystemInstruction: instrCharacters,
	})
	if err != nil {
		return nil, fmt.Errorf("parse characters: %w", err)
	}
	if resp.Characters == nil {
		return nil, fmt.Errorf("parse characters: response has no characters list")
	}
	return rankCharacters(resp.Characters), nil
}

// rankCharacters drops incomplete entries, orders by prominence descending
// and keeps the top ten.
func rankCharacters(in []rankedCharacter) []rankedCharacter {
	out := make([]rankedCharacter, 0, len(in))
	for _, c := range in {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Role) == "" || c.Prominence == nil {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Prominence > *out[j].Prominence })
	return out[:min(len(out), maxRankedCharacters)]
}

func (s *TextAnalysis) narrativeStyle(ctx context.Context, text string, opts station.Options) (NarrativeStyle, error) {
	prompt := `Analyze the narrative style of this text: tone, pacing, language style,
point of view and time structure. Provide JSON:
{"overall_tone": "...", "tone_elements": [], "pacing": {"overall": "moderate", "variation": 7.5,
"strengths": [], "weaknesses": []}, "language_style": {"complexity": "moderate", "vocabulary": "rich",
"sentence_structure": "...", "literary_devices": []}, "point_of_view": "...", "time_structure": "..."}

Text excerpt:
` + prefix(text, extractionPrefix)

	resp, err := callJSON[styleResponse](ctx, s.call, "narrative_style", withOptions(taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		MaxTokens:         2000,
		SystemInstruction: instrStyle,
	}, opts))
	if err != nil {
		return NarrativeStyle{}, fmt.Errorf("analyze narrative style: %w", err)
	}
	if strings.TrimSpace(resp.OverallTone) == "" {
		return NarrativeStyle{}, fmt.Errorf("analyze narrative style: response has no overall tone")
	}

	style := NarrativeStyle{
		OverallTone:  resp.OverallTone,
		ToneElements: nonNil(resp.ToneElements),
		Pacing: PacingAnalysis{
			Overall:    normalizePacing(resp.Pacing.Overall),
			Variation:  score10(orDefault(resp.Pacing.Variation, 5)),
			Strengths:  nonNil(resp.Pacing.Strengths),
			Weaknesses: nonNil(resp.Pacing.Weaknesses),
		},
		Language: LanguageStyle{
			Complexity:        normalizeComplexity(resp.LanguageStyle.Complexity),
			Vocabulary:        normalizeVocabulary(resp.LanguageStyle.Vocabulary),
			SentenceStructure: resp.LanguageStyle.SentenceStructure,
			LiteraryDevices:   nonNil(resp.LanguageStyle.LiteraryDevices),
		},
		PointOfView:   resp.PointOfView,
		TimeStructure: resp.TimeStructure,
	}
	if style.PointOfView == "" {
		style.PointOfView = undetermined
	}
	if style.TimeStructure == "" {
		style.TimeStructure = undetermined
	}
	return style, nil
}

func (s *TextAnalysis) analyzeCharacter(ctx context.Context, text string, c rankedCharacter) (CharacterProfile, bool) {
	prompt := `Conduct a deep character analysis for: ` + c.Name + `
Cover personality traits (3-7), motivations, goals, obstacles and the character arc
(type positive/negative/flat/complex, description, key moments). Provide JSON:
{"personality_traits": [], "motivations": [], "goals": [], "obstacles": [], "arc_type": "positive",
"arc_description": "...", "key_moments": [], "confidence": 0.85}

Text excerpt:
` + prefix(text, deepPrefix)

	resp, err := callJSON[characterResponse](ctx, s.call, "character_analysis", taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		Temperature:       0.4,
		MaxTokens:         2000,
		SystemInstruction: instrCharacter,
	})
	if err != nil {
		s.call.logger.Warn("character analysis dropped", "character", c.Name, "error", err.Error())
		return CharacterProfile{}, false
	}
	if resp.PersonalityTraits == nil {
		s.call.logger.Warn("character analysis dropped", "character", c.Name, "error", "no personality traits")
		return CharacterProfile{}, false
	}

	confidence := orDefault(resp.Confidence, 0.5)
	if confidence == 0 {
		confidence = 0.5
	}
	return CharacterProfile{
		Name:              c.Name,
		Role:              normalizeRole(c.Role),
		PersonalityTraits: resp.PersonalityTraits,
		Motivations:       nonNil(resp.Motivations),
		Goals:             nonNil(resp.Goals),
		Obstacles:         nonNil(resp.Obstacles),
		Arc: CharacterArc{
			Type:        normalizeArc(resp.ArcType),
			Description: resp.ArcDescription,
			KeyMoments:  nonNil(resp.KeyMoments),
		},
		Confidence: unit(confidence),
	}, true
}

func defaultDialogue() DialogueMetrics {
	return DialogueMetrics{Efficiency: 5, Distinctiveness: 5, Naturalness: 5, Subtext: 5, Issues: []DialogueIssue{}}
}

func defaultVoice() VoiceAnalysis {
	return VoiceAnalysis{Profiles: map[string]VoiceProfile{}, Overlaps: []VoiceOverlap{}, OverallDistinctiveness: 5}
}

func characterNames(cs []CharacterProfile) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func (s *TextAnalysis) dialogue(ctx context.Context, text string, characters []CharacterProfile) DialogueMetrics {
	prompt := `Analyze the dialogue quality in this narrative.
Main characters: ` + joinNames(characterNames(characters)) + `
Score efficiency, distinctiveness, naturalness and subtext on 0-10 and list issues
(redundancy, inconsistency, exposition dumps, on-the-nose, pacing). Provide JSON:
{"efficiency": 7.5, "distinctiveness": 8.0, "naturalness": 7.0, "subtext": 6.5,
"issues": [{"type": "redundancy", "location": "...", "severity": "medium", "suggestion": "..."}]}

Text excerpt:
` + prefix(text, deepPrefix)

	resp, err := callJSON[dialogueResponse](ctx, s.call, "dialogue", taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		Temperature:       0.3,
		MaxTokens:         2500,
		SystemInstruction: instrDialogue,
	})
	if err == nil && resp.Efficiency == nil {
		err = fmt.Errorf("response has no efficiency score")
	}
	if err != nil {
		s.call.degrade("dialogue", err)
		return defaultDialogue()
	}

	issues := []DialogueIssue{}
	for _, i := range resp.Issues {
		if i.Type == "" || i.Location == "" {
			continue
		}
		issues = append(issues, DialogueIssue{
			Type:       normalizeIssueType(i.Type),
			Location:   i.Location,
			Severity:   normalizeSeverity(i.Severity),
			Suggestion: i.Suggestion,
		})
	}
	return DialogueMetrics{
		Efficiency:      score10(*resp.Efficiency),
		Distinctiveness: score10(orDefault(resp.Distinctiveness, 5)),
		Naturalness:     score10(orDefault(resp.Naturalness, 5)),
		Subtext:         score10(orDefault(resp.Subtext, 5)),
		Issues:          issues,
	}
}

func (s *TextAnalysis) voices(ctx context.Context, text string, characters []CharacterProfile) VoiceAnalysis {
	if len(characters) < 2 {
		return defaultVoice()
	}

	prompt := `Analyze the distinctiveness of character voices.
Characters: ` + joinNames(characterNames(characters)) + `
For each character score distinctiveness 0-10, list characteristics and sample lines.
Identify overlapping voices with a similarity percentage. Provide JSON:
{"profiles": [{"character": "name", "distinctiveness": 8.5, "characteristics": [], "sample_lines": []}],
"overlaps": [{"character1": "a", "character2": "b", "similarity": 75, "examples": [], "recommendation": "..."}],
"overall_distinctiveness": 7.5}

Text excerpt:
` + prefix(text, deepPrefix)

	resp, err := callJSON[voiceResponse](ctx, s.call, "voice", taskclient.Request{
		Prompt:            prompt,
		Model:             s.call.deps.PrimaryModel,
		Temperature:       0.3,
		MaxTokens:         3000,
		SystemInstruction: instrVoice,
	})
	if err == nil && resp.Profiles == nil {
		err = fmt.Errorf("response has no profiles")
	}
	if err != nil {
		s.call.degrade("voice", err)
		return defaultVoice()
	}

	out := VoiceAnalysis{
		Profiles:               make(map[string]VoiceProfile, len(resp.Profiles)),
		Overlaps:               make([]VoiceOverlap, 0, len(resp.Overlaps)),
		OverallDistinctiveness: score10(orDefault(resp.OverallDistinctiveness, 5)),
	}
	for _, p := range resp.Profiles {
		out.Profiles[p.Character] = VoiceProfile{
			Character:       p.Character,
			Distinctiveness: score10(p.Distinctiveness),
			Characteristics: nonNil(p.Characteristics),
			SampleLines:     nonNil(p.SampleLines),
		}
	}
	for _, o := range resp.Overlaps {
		out.Overlaps = append(out.Overlaps, VoiceOverlap{
			Character1:     o.Character1,
			Character2:     o.Character2,
			Similarity:     percent(o.Similarity),
			Examples:       nonNil(o.Examples),
			Recommendation: o.Recommendation,
		})
	}
	return out
}

// synthesizeConfidence weights character confidence 0.5, dialogue
// distinctiveness 0.3 and voice distinctiveness 0.2.
func synthesizeConfidence(characters []CharacterProfile, dialogue DialogueMetrics, voice VoiceAnalysis) UncertaintyReport {
	avg := 0.5
	if len(characters) > 0 {
		sum := 0.0
		for _, c := range characters {
			sum += c.Confidence
		}
		avg = sum / float64(len(characters))
	}

	notes := []UncertaintyNote{}
	if avg < 0.7 {
		notes = append(notes, UncertaintyNote{
			Type: station.Epistemic, Aspect: aspectCharacters, Note: noteCharacters, Reducible: true,
		})
	}
	if dialogue.Distinctiveness < 6 {
		notes = append(notes, UncertaintyNote{
			Type: station.Aleatoric, Aspect: aspectDialogue, Note: noteDialogue, Reducible: false,
		})
	}
	if n := len(voice.Overlaps); n > 0 {
		notes = append(notes, UncertaintyNote{
			Type:      station.Epistemic,
			Aspect:    aspectVoices,
			Note:      fmt.Sprintf("تم اكتشاف %d حالات تداخل بين أصوات الشخصيات", n),
			Reducible: true,
		})
	}

	confidence := unit(avg*0.5 + dialogue.Distinctiveness/10*0.3 + voice.OverallDistinctiveness/10*0.2)
	return UncertaintyReport{Confidence: round(confidence, 2), Uncertainties: notes}
}
