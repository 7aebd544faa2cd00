package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// severity colors for Discord embeds.
const (
	discordColorInfo  = 0x36a64f
	discordColorError = 0xd62828
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts pipeline events as embeds to a Discord channel.
type Discord struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of real Discord API.
	Session discordSession
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel id is required")
	}
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}

	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		sess = dg
	}
	return &Discord{sess: sess, channelID: opts.ChannelID}, nil
}

// Notify posts the event as an embed. Notifications go over the REST API
// only; no gateway connection is held open.
func (d *Discord) Notify(ctx context.Context, ev Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("oso: %s", ev.Stage),
		Description: ev.Reason,
		Color:       discordColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "message", Value: ev.MsgID, Inline: true},
		},
	}
	if ev.Severity == SeverityError {
		embed.Color = discordColorError
	}

	_, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}
