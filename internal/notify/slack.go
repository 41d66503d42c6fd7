package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/orchestrator"
)

var _ orchestrator.Notifier = (*Slack)(nil)

// Slack posts run reports to one channel with a bot token.
type Slack struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlack creates a Slack notifier. Extra options are passed to the client.
func NewSlack(botToken, channel string, logger *zap.Logger, opts ...slack.Option) *Slack {
	return &Slack{
		client:  slack.New(botToken, opts...),
		channel: channel,
		logger:  logger,
	}
}

// Notify posts the run report.
func (s *Slack) Notify(ctx context.Context, st orchestrator.Status) error {
	_, ts, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(Report(st, "*"), false),
		slack.MsgOptionUsername("campus-eval"),
		slack.MsgOptionIconEmoji(":mortar_board:"),
	)
	if err != nil {
		s.logger.Error("slack send failed",
			zap.String("channel", s.channel), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	s.logger.Info("run reported to slack", zap.String("channel", s.channel), zap.String("ts", ts))
	return nil
}
