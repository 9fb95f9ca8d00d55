// Package alerts posts operational notices to a Slack channel. A nil
// Notifier is valid and drops everything, so callers never guard the
// optional wiring.
package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
)

// Notifier posts to one Slack channel. Delivery is best-effort: a failed
// post is logged and dropped, never propagated into the flow that raised
// the alert.
type Notifier struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

// New builds a Notifier. Returns nil when token or channel is empty, which
// disables alerting.
func New(token, channel string, logger *slog.Logger) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  slack.New(token),
		channel: channel,
		logger:  logger,
	}
}

// Notify posts one message.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Error("alert delivery failed", "channel", n.channel, "error", err)
	}
}
