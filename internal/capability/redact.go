package capability

import (
	"context"

	"google.golang.org/genai"
)

const redactSystemPrompt = `You rewrite messages to remove personal information.
Replace real names, usernames, phone numbers, email addresses, street
addresses, workplaces, school names and any other detail that could
identify a specific person with a neutral placeholder, keeping the story
itself intact. Change nothing else. Respond with the rewritten text only.`

const (
	redactTemperature = 0.1
	redactMaxTokens   = 1024
)

// Redact returns a working copy of body with identifying details scrubbed.
// The caller keeps the original untouched.
func (g *Gemini) Redact(ctx context.Context, body string) (string, error) {
	return g.generate(ctx, g.storyModel, redactSystemPrompt,
		[]*genai.Content{genai.NewContentFromText(body, genai.RoleUser)},
		redactTemperature, redactMaxTokens)
}
