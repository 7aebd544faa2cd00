package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// severity colors for Slack attachments.
const (
	slackColorInfo  = "#36a64f"
	slackColorError = "#d62828"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts pipeline events as attachments to a Slack channel.
type Slack struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock client instead of real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel id is required")
	}
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}

	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channelID: opts.ChannelID}, nil
}

// Notify posts the event as a colored attachment.
func (s *Slack) Notify(ctx context.Context, ev Event) error {
	color := slackColorInfo
	if ev.Severity == SeverityError {
		color = slackColorError
	}
	att := slackapi.Attachment{
		Title:    fmt.Sprintf("oso: %s", ev.Stage),
		Text:     ev.Reason,
		Color:    color,
		Fallback: ev.Reason,
		Fields: []slackapi.AttachmentField{
			{Title: "message", Value: ev.MsgID, Short: true},
		},
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slackapi.MsgOptionAttachments(att))
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}
