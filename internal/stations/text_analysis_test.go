package stations

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/stations/stationstest"
	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleText = `داخلي. مخبز العائلة - ليل
سلمى تعجن الخبز وحدها. يدخل عمر.
عمر: "ما زال عرضي قائماً."
سلمى: "هذا المخبز ليس للبيع!"`

func bySystem(answers map[string]string) stationstest.Handler {
	return func(req taskclient.Request) (string, bool, error) {
		content, ok := answers[req.SystemInstruction]
		return content, ok, nil
	}
}

func runTextAnalysis(t *testing.T, client taskclient.Client) (*TextAnalysisResult, error) {
	t.Helper()
	r, err := NewTextAnalysis(Deps{Client: client}).
		Execute(context.Background(), station.Input{Text: sampleText}, station.DefaultOptions())
	if err != nil {
		return nil, err
	}
	res, ok := r.(*TextAnalysisResult)
	require.True(t, ok)
	return res, nil
}

func TestTextAnalysisHappyPath(t *testing.T) {
	client := &stationstest.Client{}

	res, err := runTextAnalysis(t, client)
	require.NoError(t, err)

	assert.Equal(t, stationstest.Logline, res.Logline)
	require.Len(t, res.MajorCharacters, 3)
	assert.Equal(t, "سلمى", res.MajorCharacters[0].Name)
	assert.Equal(t, RoleProtagonist, res.MajorCharacters[0].Role)
	assert.Equal(t, ArcPositive, res.MajorCharacters[0].Arc.Type)
	assert.Len(t, res.CharacterAnalysis, 3)
	assert.Equal(t, 7.0, res.Dialogue.Distinctiveness)
	assert.Equal(t, 7.0, res.Voice.OverallDistinctiveness)
	assert.Equal(t, PacingModerate, res.Style.Pacing.Overall)
	assert.Equal(t, 1, res.ChunksProcessed)
	assert.InDelta(t, 0.75, res.Uncertainty.Confidence, 1e-9)
	assert.Empty(t, res.Uncertainty.Uncertainties)

	// three phase-one calls, three deep analyses, dialogue and voice
	assert.Equal(t, 8, client.Calls())
	assert.LessOrEqual(t, client.PeakInFlight(), MaxParallelCalls)
}

func TestTextAnalysisClampsScores(t *testing.T) {
	client := &stationstest.Client{Handler: bySystem(map[string]string{
		instrDialogue: `{"efficiency": 15, "distinctiveness": -3, "naturalness": 7, "subtext": 11,
			"issues": [{"type": "Exposition", "location": "scene 1", "severity": "عالي"}, {"type": "pacing"}]}`,
		instrVoice: `{"profiles": [{"character": "سلمى", "distinctiveness": 42}],
			"overlaps": [{"character1": "سلمى", "character2": "عمر", "similarity": 150}],
			"overall_distinctiveness": 12}`,
		instrCharacter: `{"personality_traits": ["stubborn"], "arc_type": "complex", "confidence": 1.7}`,
	})}

	res, err := runTextAnalysis(t, client)
	require.NoError(t, err)

	assert.Equal(t, 10.0, res.Dialogue.Efficiency)
	assert.Equal(t, 0.0, res.Dialogue.Distinctiveness)
	assert.Equal(t, 10.0, res.Dialogue.Subtext)
	require.Len(t, res.Dialogue.Issues, 1)
	assert.Equal(t, IssueExpositionDump, res.Dialogue.Issues[0].Type)
	assert.Equal(t, SeverityHigh, res.Dialogue.Issues[0].Severity)

	assert.Equal(t, 10.0, res.Voice.Profiles["سلمى"].Distinctiveness)
	require.Len(t, res.Voice.Overlaps, 1)
	assert.Equal(t, 100.0, res.Voice.Overlaps[0].Similarity)
	assert.Equal(t, 10.0, res.Voice.OverallDistinctiveness)

	for _, c := range res.MajorCharacters {
		assert.Equal(t, 1.0, c.Confidence)
		assert.Equal(t, ArcComplex, c.Arc.Type)
	}

	assert.InDelta(t, 0.7, res.Uncertainty.Confidence, 1e-9)
	require.Len(t, res.Uncertainty.Uncertainties, 2)
	assert.Equal(t, station.Aleatoric, res.Uncertainty.Uncertainties[0].Type)
	assert.False(t, res.Uncertainty.Uncertainties[0].Reducible)
	assert.Equal(t, station.Epistemic, res.Uncertainty.Uncertainties[1].Type)
	assert.Contains(t, res.Uncertainty.Uncertainties[1].Note, "1")
}

func TestTextAnalysisDeepAnalysisBatches(t *testing.T) {
	var list []string
	for i := 1; i <= 8; i++ {
		list = append(list, fmt.Sprintf(`{"name": "char-%d", "role": "supporting", "prominence": %d}`, i, i))
	}
	client := &stationstest.Client{
		Delay: 2 * time.Millisecond,
		Handler: func(req taskclient.Request) (string, bool, error) {
			switch req.SystemInstruction {
			case instrCharacters:
				return `{"characters": [` + strings.Join(list, ",") + `]}`, true, nil
			case instrCharacter:
				if strings.Contains(req.Prompt, "char-5\n") {
					return "I could not analyse this character.", true, nil
				}
			}
			return "", false, nil
		},
	}

	res, err := runTextAnalysis(t, client)
	require.NoError(t, err)

	deep := client.CountWhere(func(r taskclient.Request) bool { return r.SystemInstruction == instrCharacter })
	assert.Equal(t, 8, deep)
	assert.Len(t, res.CharacterAnalysis, 7)
	assert.NotContains(t, res.CharacterAnalysis, "char-5")
	require.Len(t, res.MajorCharacters, maxMajorCharacters)
	assert.Equal(t, "char-8", res.MajorCharacters[0].Name)
	assert.LessOrEqual(t, client.PeakInFlight(), MaxParallelCalls)
}

func TestSplitBatches(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	batches := splitBatches(items, MaxParallelCalls)

	require.Len(t, batches, 3)
	assert.Equal(t, []int{1, 2, 3}, batches[0])
	assert.Equal(t, []int{4, 5, 6}, batches[1])
	assert.Equal(t, []int{7, 8}, batches[2])
	assert.Empty(t, splitBatches([]int{}, 3))
}

func TestInBatchesRunsBatchesSequentially(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	var (
		mu       sync.Mutex
		finished int
		violated []int
	)

	out := inBatches(context.Background(), items, 3, func(_ context.Context, i int) (int, bool) {
		mu.Lock()
		if finished < (i/3)*3 {
			violated = append(violated, i)
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		finished++
		mu.Unlock()
		return i * 10, i != 4
	})

	assert.Empty(t, violated, "items started before the previous batch finished")
	assert.Equal(t, []int{0, 10, 20, 30, 50, 60, 70}, out)
}

func TestRankCharactersFiltersAndCaps(t *testing.T) {
	var in []rankedCharacter
	for i := 0; i < 15; i++ {
		p := float64(i)
		in = append(in, rankedCharacter{Name: fmt.Sprintf("c%d", i), Role: "minor", Prominence: &p})
	}
	in = append(in,
		rankedCharacter{Name: "", Role: "minor", Prominence: new(float64)},
		rankedCharacter{Name: "no role", Prominence: new(float64)},
		rankedCharacter{Name: "no prominence", Role: "minor"},
	)

	out := rankCharacters(in)

	require.Len(t, out, maxRankedCharacters)
	assert.Equal(t, "c14", out[0].Name)
	assert.Equal(t, "c5", out[9].Name)
}

func TestTextAnalysisCoreSubTaskFailures(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]string
		wantErr string
	}{
		{
			name:    "short logline",
			answers: map[string]string{instrLogline: "قصير"},
			wantErr: "generate logline",
		},
		{
			name:    "unparseable character list",
			answers: map[string]string{instrCharacters: "Salma and Omar"},
			wantErr: "parse characters",
		},
		{
			name:    "style without tone",
			answers: map[string]string{instrStyle: `{"overall_tone": ""}`},
			wantErr: "analyze narrative style",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runTextAnalysis(t, &stationstest.Client{Handler: bySystem(tt.answers)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTextAnalysisSecondarySubTasksDegrade(t *testing.T) {
	client := &stationstest.Client{Handler: bySystem(map[string]string{
		instrCharacters: `{"characters": [{"name": "سلمى", "role": "protagonist", "prominence": 9}]}`,
		instrDialogue:   "The dialogue is lively.",
	})}

	res, err := runTextAnalysis(t, client)
	require.NoError(t, err)

	assert.Equal(t, defaultDialogue(), res.Dialogue)
	assert.Equal(t, defaultVoice(), res.Voice)
	voiceCalls := client.CountWhere(func(r taskclient.Request) bool { return r.SystemInstruction == instrVoice })
	assert.Zero(t, voiceCalls, "voice analysis needs at least two characters")
}

func TestRejectedResponsesAreNotReplayedFromCache(t *testing.T) {
	var mu sync.Mutex
	answers := map[string][]string{
		"logline": {"قصير", "سلمى تقاوم عرض عمر لشراء مخبز العائلة كي تحفظ إرث والدها"},
		"json":    {"Salma and Omar", `{"score": 8}`},
	}
	calls := map[string]int{}
	inner := taskclient.ClientFunc(func(_ context.Context, req taskclient.Request) (taskclient.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		kind := "json"
		if strings.Contains(req.Prompt, "compelling logline") {
			kind = "logline"
		}
		answer := answers[kind][calls[kind]]
		calls[kind]++
		return taskclient.Response{Content: taskclient.PlainContent(answer)}, nil
	})
	client := taskclient.NewResilient(inner, taskclient.ResilientConfig{
		MaxRetries:    1,
		EnableCaching: true,
		CacheTTL:      time.Hour,
	})
	deps := Deps{Client: client}

	s := NewTextAnalysis(deps)
	_, err := s.logline(t.Context(), sampleText)
	require.Error(t, err)
	logline, err := s.logline(t.Context(), sampleText)
	require.NoError(t, err)
	assert.Contains(t, logline, "سلمى")

	type score struct {
		Score float64 `json:"score"`
	}
	c := newCaller(deps, KeyEfficiency)
	req := taskclient.Request{Prompt: "rate the cohesion", Model: taskclient.ModelPro}
	_, err = callJSON[score](t.Context(), c, "cohesion", req)
	require.Error(t, err)
	got, err := callJSON[score](t.Context(), c, "cohesion", req)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got.Score)

	assert.Equal(t, map[string]int{"logline": 2, "json": 2}, calls)
}
