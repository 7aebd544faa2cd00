// Package pipeline drives one claimed message through the processing
// stages: classify, redact, summarize, publish decision, reply. State is
// derived from which output fields are populated, so the machine is
// re-entrant from any point and a crash resumes at the first incomplete
// stage.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/osobot/oso/internal/models"
	"github.com/osobot/oso/internal/notify"
	"github.com/osobot/oso/internal/store"
)

// Classifier labels a message. The label is one of the models.Class*
// constants.
type Classifier interface {
	Classify(ctx context.Context, subject, body string, images [][]byte) (string, error)
}

// Redactor scrubs personal information from a body, returning a working
// copy. The original body is never modified.
type Redactor interface {
	Redact(ctx context.Context, body string) (string, error)
}

// Summarizer condenses redacted content into a shareable summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ReplyContext carries what the replier needs to draft a response: the
// triggering message and the recent exchange with its sender.
type ReplyContext struct {
	Msg    models.Msg
	Thread []models.Msg
}

// Replier drafts a reply to a message.
type Replier interface {
	DraftReply(ctx context.Context, rc ReplyContext) (string, error)
}

// Embedder produces a vector embedding of message text for downstream
// similarity analysis.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Publisher performs the irreversible external actions. Both operations
// must be invoked at most once per message; the pipeline guarantees this
// by never re-running a stage whose output field is already set.
type Publisher interface {
	Publish(ctx context.Context, content string, images [][]byte) (postID string, err error)
	SendReply(ctx context.Context, recipient, inReplyTo, text string) (replyID string, err error)
}

// Options configures a Pipeline. Store, Classifier, Redactor, Summarizer,
// Replier and Publisher are required; Embedder and Notifier are optional.
type Options struct {
	Store      *store.Store
	Classifier Classifier
	Redactor   Redactor
	Summarizer Summarizer
	Replier    Replier
	Embedder   Embedder
	Publisher  Publisher
	Notifier   notify.Notifier

	MaxRetries     int
	AdapterTimeout time.Duration
	Lookback       time.Duration
	ThreadLimit    int
	PublishEnabled bool
	PublishMinGap  time.Duration
}

// Pipeline applies the stage machine to claimed records.
type Pipeline struct {
	store      *store.Store
	classifier Classifier
	redactor   Redactor
	summarizer Summarizer
	replier    Replier
	embedder   Embedder
	publisher  Publisher
	notifier   notify.Notifier

	maxRetries     int
	adapterTimeout time.Duration
	lookback       time.Duration
	threadLimit    int
	publishEnabled bool
	publishMinGap  time.Duration
}

// New validates the options and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if opts.Classifier == nil || opts.Redactor == nil || opts.Summarizer == nil || opts.Replier == nil {
		return nil, fmt.Errorf("pipeline: all content capabilities are required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("pipeline: publisher is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = time.Minute
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 7 * 24 * time.Hour
	}
	if opts.ThreadLimit <= 0 {
		opts.ThreadLimit = 3
	}
	if opts.PublishMinGap <= 0 {
		opts.PublishMinGap = 24 * time.Hour
	}
	return &Pipeline{
		store:          opts.Store,
		classifier:     opts.Classifier,
		redactor:       opts.Redactor,
		summarizer:     opts.Summarizer,
		replier:        opts.Replier,
		embedder:       opts.Embedder,
		publisher:      opts.Publisher,
		notifier:       opts.Notifier,
		maxRetries:     opts.MaxRetries,
		adapterTimeout: opts.AdapterTimeout,
		lookback:       opts.Lookback,
		threadLimit:    opts.ThreadLimit,
		publishEnabled: opts.PublishEnabled,
		publishMinGap:  opts.PublishMinGap,
	}, nil
}

// nowFunc is swapped out in tests to control the publish rate gate.
var nowFunc = time.Now

// adapterCtx bounds one external capability call.
func (p *Pipeline) adapterCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.adapterTimeout)
}
