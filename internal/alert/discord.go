package alert

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// discordClient abstracts the discordgo methods we use, enabling test mocks.
type discordClient interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts alert events to a Discord channel. Sends go over
// the REST API; no gateway connection is held open.
type DiscordNotifier struct {
	client    discordClient
	channelID string
}

// NewDiscordNotifier creates a notifier posting to channelID with botToken.
func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("alert: discord: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("alert: discord: channel ID is required")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("alert: discord: %w", err)
	}
	return &DiscordNotifier{client: session, channelID: channelID}, nil
}

// Notify posts the event as an embed with a severity color.
func (n *DiscordNotifier) Notify(ctx context.Context, ev Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       formatTitle(ev),
		Description: ev.Body,
		Color:       embedColor(ev.Severity),
	}
	if _, err := n.client.ChannelMessageSendEmbed(n.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("alert: discord post: %w", err)
	}
	return nil
}

// embedColor converts the hex color hint to Discord's integer color.
func embedColor(severity string) int {
	hex := severityColor(severity)
	v, err := strconv.ParseInt(hex[1:], 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
