package capability

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

const summarizeSystemPrompt = `You retell stories sent to an anonymous
confession inbox. Condense the user's story into a short, engaging
first-person retelling that preserves its events and tone. Do not add
commentary, headings or hashtags. Respond with the retelling only.`

const (
	summarizeTemperature = 0.7
	summarizeMaxTokens   = 256

	// maxSummarizePasses bounds the retry loop when the model keeps
	// producing summaries over the length budget.
	maxSummarizePasses = 5
)

// Summarize condenses redacted story text until it fits the configured
// length budget. Text already under the budget passes through one
// summarization anyway so published posts share a consistent voice.
func (g *Gemini) Summarize(ctx context.Context, text string) (string, error) {
	out := ""
	for pass := 0; ; pass++ {
		if pass >= maxSummarizePasses {
			return "", fmt.Errorf("capability: summarize: still %d chars after %d passes (budget %d)",
				len(out), pass, g.maxStoryChars)
		}
		summary, err := g.generate(ctx, g.storyModel, summarizeSystemPrompt,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
			summarizeTemperature, summarizeMaxTokens)
		if err != nil {
			return "", err
		}
		out = summary
		if len(out) <= g.maxStoryChars {
			if pass > 0 {
				log.Printf("capability: summarized in %d passes, %d chars down to %d", pass+1, len(text), len(out))
			}
			return out, nil
		}
	}
}
