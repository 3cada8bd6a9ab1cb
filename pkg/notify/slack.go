package notify

import (
	"context"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier posts alerts to a single Slack channel, grounded on the
// same botToken/channel shape as other pack notifiers. If botToken is
// empty the notifier is disabled and Alert is a no-op.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
}

// NewSlackNotifier creates a SlackNotifier. An empty botToken disables it.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel}
}

// IsEnabled reports whether the notifier has a usable client and channel.
func (n *SlackNotifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// Alert posts title/message to the configured channel. A disabled
// notifier returns nil without posting.
func (n *SlackNotifier) Alert(title, message string) error {
	if !n.IsEnabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text := fmt.Sprintf(":rotating_light: *%s*\n%s", title, message)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting alert to slack: %w", err)
	}
	return nil
}
