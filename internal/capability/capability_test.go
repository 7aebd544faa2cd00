package capability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/osobot/oso/internal/models"
	"github.com/osobot/oso/internal/pipeline"
	"google.golang.org/genai"
)

// mockGenerator answers model calls from a table keyed on the system
// prompt's probe labels and records what it was asked. Probes run
// concurrently, so all state is guarded.
type mockGenerator struct {
	mu sync.Mutex

	// answer maps "a/b" probe keys to the label the probe returns.
	answer map[string]string
	// freeform is returned for non-probe generations, one per call.
	freeform []string

	genCalls     int
	lastSystem   string
	lastContents []*genai.Content
	genErr       error

	embedValues []float32
	embedErr    error
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genCalls++
	m.lastContents = contents
	if config != nil && config.SystemInstruction != nil && len(config.SystemInstruction.Parts) > 0 {
		m.lastSystem = config.SystemInstruction.Parts[0].Text
	}
	if m.genErr != nil {
		return nil, m.genErr
	}

	for key, label := range m.answer {
		a, b, _ := strings.Cut(key, "/")
		if strings.Contains(m.lastSystem, a+"\n"+b) {
			return textResponse(label), nil
		}
	}
	if len(m.freeform) > 0 {
		out := m.freeform[0]
		if len(m.freeform) > 1 {
			m.freeform = m.freeform[1:]
		}
		return textResponse(out), nil
	}
	return textResponse("ok"), nil
}

func (m *mockGenerator) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: m.embedValues}},
	}, nil
}

func newTestGemini(t *testing.T, gen *mockGenerator) *Gemini {
	t.Helper()
	g, err := New(context.Background(), Opts{Generator: gen, MaxStoryChars: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestClassifyDecisionTree(t *testing.T) {
	cases := []struct {
		name   string
		answer map[string]string
		want   string
	}{
		{
			"spam wins over everything",
			map[string]string{
				"instruction/other": "instruction",
				"inquiry/other":     "other",
				"spam/other":        "spam",
				"story/other":       "story",
			},
			models.ClassSpam,
		},
		{
			"instruction",
			map[string]string{
				"instruction/other": "instruction",
				"inquiry/other":     "other",
				"spam/other":        "other",
				"story/other":       "other",
			},
			models.ClassInstruction,
		},
		{
			"inquiry",
			map[string]string{
				"instruction/other": "other",
				"inquiry/other":     "inquiry",
				"spam/other":        "other",
				"story/other":       "other",
			},
			models.ClassInquiry,
		},
		{
			"nothing matched",
			map[string]string{
				"instruction/other": "other",
				"inquiry/other":     "other",
				"spam/other":        "other",
				"story/other":       "other",
			},
			models.ClassOther,
		},
		{
			"safe interesting story",
			map[string]string{
				"instruction/other":  "other",
				"inquiry/other":      "other",
				"spam/other":         "other",
				"story/other":        "story",
				"banned/safe":        "safe",
				"illegal/safe":       "safe",
				"interesting/boring": "interesting",
			},
			models.ClassStory,
		},
		{
			"illegal story",
			map[string]string{
				"instruction/other":  "other",
				"inquiry/other":      "other",
				"spam/other":         "other",
				"story/other":        "story",
				"banned/safe":        "banned",
				"illegal/safe":       "illegal",
				"interesting/boring": "interesting",
			},
			models.ClassIllegal,
		},
		{
			"boring but safe story",
			map[string]string{
				"instruction/other":  "other",
				"inquiry/other":      "other",
				"spam/other":         "other",
				"story/other":        "story",
				"banned/safe":        "safe",
				"illegal/safe":       "safe",
				"interesting/boring": "boring",
			},
			models.ClassBoring,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &mockGenerator{answer: tc.answer}
			g := newTestGemini(t, gen)
			got, err := g.Classify(context.Background(), "subject", "body", nil)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tc.want {
				t.Errorf("label = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyStopsAfterPassZero(t *testing.T) {
	gen := &mockGenerator{answer: map[string]string{
		"instruction/other": "other",
		"inquiry/other":     "inquiry",
		"spam/other":        "other",
		"story/other":       "other",
	}}
	g := newTestGemini(t, gen)
	if _, err := g.Classify(context.Background(), "", "question", nil); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if gen.genCalls != 4 {
		t.Errorf("probe calls = %d, want 4 (no pass 1 for non-stories)", gen.genCalls)
	}
}

func TestClassifyRejectsUnrecognizedLabel(t *testing.T) {
	gen := &mockGenerator{answer: map[string]string{
		"instruction/other": "maybe",
		"inquiry/other":     "other",
		"spam/other":        "other",
		"story/other":       "other",
	}}
	g := newTestGemini(t, gen)
	if _, err := g.Classify(context.Background(), "", "text", nil); err == nil {
		t.Fatal("expected error for unrecognized probe answer")
	}
}

func TestClassifyNormalizesAnswer(t *testing.T) {
	gen := &mockGenerator{answer: map[string]string{
		"instruction/other": "Other.",
		"inquiry/other":     "other",
		"spam/other":        "`Spam`",
		"story/other":       "other",
	}}
	g := newTestGemini(t, gen)
	got, err := g.Classify(context.Background(), "", "text", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != models.ClassSpam {
		t.Errorf("label = %q, want spam", got)
	}
}

func TestSummarizeRetriesUntilUnderBudget(t *testing.T) {
	long := strings.Repeat("x", 150)
	gen := &mockGenerator{freeform: []string{long, long, "short version"}}
	g := newTestGemini(t, gen)

	got, err := g.Summarize(context.Background(), strings.Repeat("story ", 100))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "short version" {
		t.Errorf("summary = %q", got)
	}
	if gen.genCalls != 3 {
		t.Errorf("calls = %d, want 3", gen.genCalls)
	}
}

func TestSummarizeGivesUpAfterMaxPasses(t *testing.T) {
	gen := &mockGenerator{freeform: []string{strings.Repeat("x", 150)}}
	g := newTestGemini(t, gen)

	if _, err := g.Summarize(context.Background(), "story"); err == nil {
		t.Fatal("expected error when summaries never fit")
	}
	if gen.genCalls != maxSummarizePasses {
		t.Errorf("calls = %d, want %d", gen.genCalls, maxSummarizePasses)
	}
}

func TestRedactUsesSanitizerPrompt(t *testing.T) {
	gen := &mockGenerator{freeform: []string{"clean text"}}
	g := newTestGemini(t, gen)

	got, err := g.Redact(context.Background(), "my name is Alice")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if got != "clean text" {
		t.Errorf("redacted = %q", got)
	}
	if !strings.Contains(gen.lastSystem, "personal information") {
		t.Errorf("system prompt = %q", gen.lastSystem)
	}
}

func TestDraftReplyBuildsThreadHistory(t *testing.T) {
	gen := &mockGenerator{freeform: []string{"drafted reply"}}
	g := newTestGemini(t, gen)

	cls := models.ClassInquiry
	prevReply := "earlier answer"
	rc := pipeline.ReplyContext{
		Msg: models.Msg{ID: "m2", Body: "follow-up question", Classification: &cls},
		Thread: []models.Msg{
			{ID: "m1", Body: "first question", ReplyBody: &prevReply},
			{ID: "m2", Body: "follow-up question"},
		},
	}

	got, err := g.DraftReply(context.Background(), rc)
	if err != nil {
		t.Fatalf("DraftReply: %v", err)
	}
	if got != "drafted reply" {
		t.Errorf("draft = %q", got)
	}

	// user(first question), model(earlier answer), user(follow-up).
	if len(gen.lastContents) != 3 {
		t.Fatalf("contents = %d turns, want 3", len(gen.lastContents))
	}
	if gen.lastContents[0].Role != genai.RoleUser || gen.lastContents[1].Role != genai.RoleModel {
		t.Errorf("roles = %s, %s", gen.lastContents[0].Role, gen.lastContents[1].Role)
	}
	if gen.lastContents[2].Parts[0].Text != "follow-up question" {
		t.Errorf("final turn = %q", gen.lastContents[2].Parts[0].Text)
	}
}

func TestDraftReplyBouncesNonInquiries(t *testing.T) {
	gen := &mockGenerator{freeform: []string{"thanks for sharing"}}
	g := newTestGemini(t, gen)

	cls := models.ClassBoring
	rc := pipeline.ReplyContext{
		Msg: models.Msg{ID: "m1", Body: "a dull story", Classification: &cls},
	}
	if _, err := g.DraftReply(context.Background(), rc); err != nil {
		t.Fatalf("DraftReply: %v", err)
	}

	prompt := gen.lastContents[len(gen.lastContents)-1].Parts[0].Text
	if !strings.Contains(prompt, "`boring`") {
		t.Errorf("bounce preamble missing: %q", prompt)
	}
	if !strings.Contains(prompt, "a dull story") {
		t.Errorf("original body missing: %q", prompt)
	}
}

func TestEmbed(t *testing.T) {
	gen := &mockGenerator{embedValues: []float32{0.5, -0.25}}
	g := newTestGemini(t, gen)

	vec, err := g.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("vec = %v", vec)
	}

	gen.embedErr = errors.New("quota exceeded")
	if _, err := g.Embed(context.Background(), "more"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(context.Background(), Opts{}); err == nil {
		t.Fatal("expected error without api key or generator")
	}
}
