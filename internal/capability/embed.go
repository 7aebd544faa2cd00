package capability

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embed generates a semantic-similarity embedding of message text. Vectors
// are stored alongside the record for offline clustering of senders and
// duplicate detection.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := g.gen.EmbedContent(ctx, g.embeddingModel, contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		})
	if err != nil {
		return nil, fmt.Errorf("capability: embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("capability: embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
