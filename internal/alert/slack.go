package alert

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts alert events to a Slack channel.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// NewSlackNotifier creates a notifier posting to channelID with botToken.
func NewSlackNotifier(botToken, channelID string) (*SlackNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("alert: slack: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("alert: slack: channel ID is required")
	}
	return &SlackNotifier{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}, nil
}

// Notify posts the event as an attachment with a severity color bar.
func (n *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	attachment := slackapi.Attachment{
		Color: severityColor(ev.Severity),
		Title: formatTitle(ev),
		Text:  ev.Body,
	}
	_, _, err := n.client.PostMessageContext(ctx, n.channelID,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("alert: slack post: %w", err)
	}
	return nil
}
