// Package stationstest provides a scripted task client that answers every
// station sub-task with well-formed data.
package stationstest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

// Universal is a single JSON document carrying the fields of every
// sub-task response, so any strict decoder accepts it.
const Universal = `{
  "characters": [
    {"name": "سلمى", "role": "protagonist", "prominence": 10, "description": "أرملة تدير مخبز العائلة"},
    {"name": "عمر", "role": "antagonist", "prominence": 8, "description": "مطور عقاري طموح"},
    {"name": "ليلى", "role": "supporting", "prominence": 6, "description": "ابنة سلمى"}
  ],
  "overall_tone": "حزين ومتفائل",
  "tone_elements": ["حنين", "صمود"],
  "pacing": {"overall": "moderate", "variation": 6, "strengths": ["بداية قوية"], "weaknesses": []},
  "language_style": {"complexity": "moderate", "vocabulary": "rich", "sentence_structure": "جمل قصيرة", "literary_devices": ["استعارة"]},
  "point_of_view": "الراوي العليم",
  "time_structure": "خطي",
  "personality_traits": ["عنيدة", "حنونة"],
  "motivations": ["حماية الإرث"],
  "goals": ["إنقاذ المخبز"],
  "obstacles": ["الديون"],
  "arc_type": "positive",
  "arc_description": "تتعلم سلمى طلب المساعدة",
  "key_moments": ["رفض العرض"],
  "confidence": 0.8,
  "efficiency": 7,
  "distinctiveness": 7,
  "naturalness": 7,
  "subtext": 6,
  "issues": [{"type": "redundancy", "category": "dialogue", "location": "المشهد الثاني", "severity": "low", "suggestion": "اختصار", "description": "تكرار في الحوار", "impact": 3}],
  "profiles": [{"character": "سلمى", "distinctiveness": 8, "characteristics": ["هادئة"], "sample_lines": ["لن أبيع"]}],
  "overlaps": [],
  "overall_distinctiveness": 7,
  "story_statement": "أرملة تقاوم خسارة مخبز عائلتها",
  "alternative_statements": [],
  "elevator_pitch": "حين يهدد المال الذاكرة، تختار سلمى المقاومة",
  "hybrid_genre": "دراما اجتماعية",
  "genre_alternatives": [],
  "themes": [{"theme": "الإرث", "evidence": ["المخبز"], "strength": 8, "development": "يتعمق الإرث مع كل مشهد"}],
  "thematic_consistency": 7,
  "primary_audience": "الجمهور العائلي",
  "demographics": [],
  "psychographics": [],
  "producibility": 7,
  "commercial_potential": 6,
  "relationships": [{"source": "سلمى", "target": "عمر", "type": "rivalry", "strength": 8, "description": "صراع على المخبز"}],
  "conflicts": [{"name": "معركة المخبز", "description": "عمر يريد شراء المخبز", "involved_characters": ["سلمى", "عمر"], "phase": "escalating", "strength": 7}],
  "literary": 7,
  "technical": 6,
  "commercial": 6,
  "assessment": "نص متماسك بشخصيات واضحة",
  "priority_actions": [],
  "quick_fixes": [],
  "structural_revisions": [],
  "points": [{"position": 10, "level": 3, "description": "البداية"}, {"position": 80, "level": 9, "description": "الذروة"}],
  "symbols": [{"symbol": "الفرن", "interpretation": "دفء العائلة", "frequency": 4}],
  "depth_score": 7,
  "consistency_score": 7,
  "tone_consistency": 7,
  "voice": "صوت سردي دافئ",
  "observations": [],
  "summary": "مشاكل طفيفة في الإيقاع",
  "treatments": [{"title": "تكثيف الحوار", "description": "حذف التكرار في المشهد الثاني", "priority": "short_term", "impact": 5, "effort": 2}],
  "executive_summary": "عمل درامي اجتماعي متماسك",
  "strengths": ["شخصيات واضحة"],
  "weaknesses": [],
  "opportunities": [],
  "threats": [],
  "must_do": [],
  "should_do": [],
  "could_do": [],
  "narrative_quality": 75,
  "structural_integrity": 70,
  "character_development": 72,
  "conflict_effectiveness": 68,
  "thematic_depth": 66,
  "compliant": true,
  "violations": [],
  "correctedText": "",
  "improvementScore": 1,
  "uncertaintyType": "epistemic",
  "sources": []
}`

// Logline answers the plain-text logline sub-task.
const Logline = "سلمى أرملة تقاتل للحفاظ على مخبز عائلتها أمام مطور عقاري طموح."

// Handler answers one request. Returning handled=false defers to Universal.
type Handler func(req taskclient.Request) (content string, handled bool, err error)

// Client is a concurrency-safe fake taskclient.Client.
type Client struct {
	// Delay is slept before each answer, honouring ctx.
	Delay time.Duration
	// Handler overrides answers for selected requests.
	Handler Handler

	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64

	mu       sync.Mutex
	requests []taskclient.Request
}

// Generate implements taskclient.Client
func (c *Client) Generate(ctx context.Context, req taskclient.Request) (taskclient.Response, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return taskclient.Response{}, ctx.Err()
		}
	}

	if c.Handler != nil {
		if content, handled, err := c.Handler(req); handled {
			if err != nil {
				return taskclient.Response{}, err
			}
			return taskclient.Response{Content: taskclient.RawContent(content), Model: req.Model}, nil
		}
	}
	if strings.Contains(req.Prompt, "compelling logline") {
		return taskclient.Response{Content: taskclient.PlainContent(Logline), Model: req.Model}, nil
	}
	return taskclient.Response{Content: taskclient.RawContent(Universal), Model: req.Model}, nil
}

// Calls returns the number of requests received.
func (c *Client) Calls() int { return int(c.calls.Load()) }

// PeakInFlight returns the largest number of concurrent requests observed.
func (c *Client) PeakInFlight() int { return int(c.peak.Load()) }

// Requests returns a copy of the requests received so far.
func (c *Client) Requests() []taskclient.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]taskclient.Request(nil), c.requests...)
}

// CountWhere returns the number of requests matching pred.
func (c *Client) CountWhere(pred func(taskclient.Request) bool) int {
	n := 0
	for _, r := range c.Requests() {
		if pred(r) {
			n++
		}
	}
	return n
}
