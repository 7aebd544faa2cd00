// Package capability implements the content capabilities behind the
// pipeline (classification, redaction, summarization, reply drafting,
// embeddings) on the Gemini API.
package capability

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// generator abstracts the genai model calls we use, enabling test mocks.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// realGenerator wraps the genai client's Models service to implement
// generator.
type realGenerator struct {
	client *genai.Client
}

func (r *realGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return r.client.Models.GenerateContent(ctx, model, contents, config)
}

func (r *realGenerator) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	return r.client.Models.EmbedContent(ctx, model, contents, config)
}

// Gemini implements every pipeline content interface against the Gemini
// API. A single value serves all of them; model selection happens per
// capability.
type Gemini struct {
	gen             generator
	classifierModel string
	storyModel      string
	embeddingModel  string
	maxStoryChars   int
}

// Opts holds parameters for creating a Gemini capability set.
type Opts struct {
	APIKey          string
	ClassifierModel string
	StoryModel      string
	EmbeddingModel  string
	MaxStoryChars   int
	// For testing: inject a mock generator instead of the real API.
	Generator generator
}

// New creates a Gemini capability set.
func New(ctx context.Context, opts Opts) (*Gemini, error) {
	if opts.Generator == nil && opts.APIKey == "" {
		return nil, fmt.Errorf("capability: gemini api key is required")
	}
	if opts.ClassifierModel == "" {
		opts.ClassifierModel = "gemini-2.0-flash"
	}
	if opts.StoryModel == "" {
		opts.StoryModel = "gemini-2.0-flash"
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "gemini-embedding-001"
	}
	if opts.MaxStoryChars <= 0 {
		opts.MaxStoryChars = 2000
	}

	gen := opts.Generator
	if gen == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey})
		if err != nil {
			return nil, fmt.Errorf("capability: create genai client: %w", err)
		}
		gen = &realGenerator{client: client}
	}
	return &Gemini{
		gen:             gen,
		classifierModel: opts.ClassifierModel,
		storyModel:      opts.StoryModel,
		embeddingModel:  opts.EmbeddingModel,
		maxStoryChars:   opts.MaxStoryChars,
	}, nil
}

// generate runs one model call and returns the trimmed response text.
func (g *Gemini) generate(ctx context.Context, model, system string, contents []*genai.Content, temp float32, maxTokens int32) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](temp),
		MaxOutputTokens: maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.gen.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("capability: generate: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("capability: generate: empty response")
	}
	return text, nil
}

// responseText collects the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// userContent builds the user turn from text plus any image attachments.
func userContent(text string, images [][]byte) *genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(text)}
	for _, img := range images {
		if len(img) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img, http.DetectContentType(img)))
	}
	return genai.NewContentFromParts(parts, genai.RoleUser)
}
