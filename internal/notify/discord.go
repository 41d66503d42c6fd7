package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/orchestrator"
)

var _ orchestrator.Notifier = (*Discord)(nil)

type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts run reports to one channel over the REST API. No gateway
// connection is opened.
type Discord struct {
	session   channelSender
	channelID string
	logger    *zap.Logger
}

// NewDiscord creates a Discord notifier for a bot token.
func NewDiscord(token, channelID string, logger *zap.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID, logger: logger}, nil
}

// Notify posts the run report.
func (d *Discord) Notify(ctx context.Context, st orchestrator.Status) error {
	msg, err := d.session.ChannelMessageSend(d.channelID, Report(st, "**"), discordgo.WithContext(ctx))
	if err != nil {
		d.logger.Error("discord send failed",
			zap.String("channel", d.channelID), zap.Error(err))
		return fmt.Errorf("discord send: %w", err)
	}
	d.logger.Info("run reported to discord", zap.String("channel", d.channelID), zap.String("message", msg.ID))
	return nil
}
