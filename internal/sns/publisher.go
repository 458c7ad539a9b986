// Package sns publishes cadence events to an SNS topic for downstream
// analytics and CRM sync. Publishing is best-effort: the cadence engine
// logs failures and moves on.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/cadence"
)

// Publisher sends cadence events to an SNS topic.
type Publisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates an SNS publisher for the given topic.
func NewPublisher(ctx context.Context, region, topicARN string, logger *zap.Logger) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sns publisher initialized",
		zap.String("topic_arn", topicARN),
	)

	return &Publisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// PublishSent publishes a message-sent event. Subscribers can filter on
// the channel message attribute.
func (p *Publisher) PublishSent(ctx context.Context, evt cadence.SentEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal sent event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String("message_sent"),
			},
			"channel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(evt.Channel),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	p.logger.Debug("sent event published",
		zap.String("message_id", evt.MessageID.String()),
		zap.String("sns_message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
