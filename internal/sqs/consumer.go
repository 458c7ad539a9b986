// Package sqs consumes cadence ticks from an SQS queue fed by an
// EventBridge schedule. Each message names a channel; the consumer
// invokes the same engine entry point as the HTTP trigger. Excess or
// duplicate ticks are harmless — they land on the engine's no-op
// outcomes.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
	// WaitTime is the long-poll duration per receive call.
	WaitTime time.Duration
	// RunTimeout bounds one cadence run triggered by a tick.
	RunTimeout time.Duration
}

// TickMessage is the payload EventBridge places on the queue.
type TickMessage struct {
	Channel string `json:"channel"`
}

// Runner executes one cadence run for a channel. Both engines are
// registered under their channel name.
type Runner func(ctx context.Context, channel string) error

// TickConsumer long-polls the tick queue and drives cadence runs.
type TickConsumer struct {
	client   *sqs.Client
	queueURL string
	run      Runner
	cfg      Config
	logger   *zap.Logger
}

// NewTickConsumer creates a consumer for the tick queue.
func NewTickConsumer(ctx context.Context, cfg Config, run Runner, logger *zap.Logger) (*TickConsumer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.WaitTime == 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 300 * time.Second
	}

	logger.Info("sqs tick consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &TickConsumer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		run:      run,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Start consumes ticks until the context is cancelled.
func (c *TickConsumer) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("tick consumer stopping")
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 2, // at most one tick per channel
			WaitTimeSeconds:     int32(c.cfg.WaitTime.Seconds()),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to receive tick messages", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		for _, m := range out.Messages {
			c.handle(ctx, aws.ToString(m.Body))

			// Delete regardless of run outcome: a failed run is retried
			// by the next scheduled tick, not by SQS redelivery.
			_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.queueURL),
				ReceiptHandle: m.ReceiptHandle,
			})
			if err != nil {
				c.logger.Warn("failed to delete tick message", zap.Error(err))
			}
		}
	}
}

func (c *TickConsumer) handle(ctx context.Context, body string) {
	var tick TickMessage
	if err := json.Unmarshal([]byte(body), &tick); err != nil {
		c.logger.Warn("invalid tick message", zap.Error(err), zap.String("body", body))
		return
	}

	if tick.Channel == "" {
		c.logger.Warn("tick message missing channel", zap.String("body", body))
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	if err := c.run(runCtx, tick.Channel); err != nil {
		c.logger.Error("cadence run from tick failed",
			zap.Error(err),
			zap.String("channel", tick.Channel),
		)
	}
}
