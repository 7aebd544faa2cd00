package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/osobot/oso/internal/models"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// Classification runs at low temperature with a tiny output budget: each
// probe answers with a single label.
const (
	classifyTemperature = 0.1
	classifyMaxTokens   = 32
)

// probe is one binary classification question.
type probe struct {
	a, b string
}

// pass0 separates message kinds. Each probe is independent; the decision
// tree below resolves overlapping hits by severity.
var pass0 = []probe{
	{models.ClassInstruction, models.ClassOther},
	{models.ClassInquiry, models.ClassOther},
	{models.ClassSpam, models.ClassOther},
	{models.ClassStory, models.ClassOther},
}

// pass1 grades stories: safety first, then whether the story is worth
// sharing at all.
var pass1 = []probe{
	{models.ClassBanned, models.ClassSafe},
	{models.ClassIllegal, models.ClassSafe},
	{models.ClassInteresting, models.ClassBoring},
}

// Classify labels a message with a two-pass decision tree. Pass 0 sorts the
// message into a kind; only stories proceed to pass 1, which screens for
// unsafe content and grades interest. The returned label is one of the
// models.Class* constants.
func (g *Gemini) Classify(ctx context.Context, subject, body string, images [][]byte) (string, error) {
	text := body
	if subject != "" {
		text = subject + "\n\n" + body
	}

	r0, err := g.runProbes(ctx, text, images, pass0)
	if err != nil {
		return "", err
	}
	switch {
	case r0[models.ClassSpam]:
		return models.ClassSpam, nil
	case r0[models.ClassInstruction]:
		return models.ClassInstruction, nil
	case r0[models.ClassInquiry]:
		return models.ClassInquiry, nil
	case r0[models.ClassStory]:
		// fall through to pass 1
	default:
		return models.ClassOther, nil
	}

	r1, err := g.runProbes(ctx, text, images, pass1)
	if err != nil {
		return "", err
	}
	switch {
	case r1[models.ClassIllegal]:
		return models.ClassIllegal, nil
	case r1[models.ClassBanned]:
		return models.ClassBanned, nil
	case r1[models.ClassBoring]:
		return models.ClassBoring, nil
	default:
		return models.ClassStory, nil
	}
}

// runProbes asks every probe concurrently and returns the set of labels
// that hit. A single failed probe fails the whole pass; a partial verdict
// is worse than a retried one.
func (g *Gemini) runProbes(ctx context.Context, text string, images [][]byte, probes []probe) (map[string]bool, error) {
	results := make([]string, len(probes))
	eg, ctx := errgroup.WithContext(ctx)
	for i := range probes {
		eg.Go(func() error {
			label, err := g.runProbe(ctx, text, images, probes[i])
			if err != nil {
				return err
			}
			results[i] = label
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	hits := make(map[string]bool, len(results))
	for _, label := range results {
		hits[label] = true
	}
	return hits, nil
}

// runProbe asks one binary question and validates the answer against the
// probe's two labels.
func (g *Gemini) runProbe(ctx context.Context, text string, images [][]byte, p probe) (string, error) {
	system := fmt.Sprintf(
		"You are a classifier. Classify the user prompt as either:\n%s\n%s\nAnswer with exactly one of those words.",
		p.a, p.b)

	raw, err := g.generate(ctx, g.classifierModel, system,
		[]*genai.Content{userContent(text, images)},
		classifyTemperature, classifyMaxTokens)
	if err != nil {
		return "", err
	}

	label := strings.ToLower(strings.Trim(raw, " \t\n.`'\""))
	if label != p.a && label != p.b {
		return "", fmt.Errorf("capability: classify: unrecognized label %q for %s/%s probe", raw, p.a, p.b)
	}
	return label, nil
}
