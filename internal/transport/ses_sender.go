package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/db"
)

type SESSender struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESSender(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESSender{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Send sends a cadence email via AWS SES and returns the SES message id
// so delivery webhooks can be mapped back to the outbound message.
func (s *SESSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Channel != db.ChannelEmail {
		return nil, fmt.Errorf("SES sender only supports email, got: %s", req.Channel)
	}

	if req.To == "" {
		return nil, fmt.Errorf("email request missing recipient")
	}
	if req.Subject == "" {
		return nil, fmt.Errorf("email request missing subject")
	}
	if req.Body == "" {
		return nil, fmt.Errorf("email request missing body")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{req.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(req.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(req.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("email sent via SES",
		zap.String("message_id", req.MessageID.String()),
		zap.String("to", req.To),
		zap.String("provider_message_id", *result.MessageId),
	)

	return &SendResult{ProviderMessageID: *result.MessageId}, nil
}

// SupportsChannel checks if this sender supports the email channel
func (s *SESSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelEmail
}
