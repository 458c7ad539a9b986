package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/db"
)

// LogSender is a simple sender that logs messages (for testing/development)
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	s.logger.Info("logging outbound message (development mode)",
		zap.String("message_id", req.MessageID.String()),
		zap.String("channel", req.Channel),
		zap.String("to", req.To),
		zap.String("subject", req.Subject),
	)
	return &SendResult{ProviderMessageID: fmt.Sprintf("log-%s", uuid.NewString())}, nil
}

func (s *LogSender) SupportsChannel(channel string) bool {
	// LogSender accepts both channels for development/testing
	return channel == db.ChannelEmail || channel == db.ChannelWhatsApp
}
