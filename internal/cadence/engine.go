package cadence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/db"
	"github.com/leadgrid/leadgrid/internal/metrics"
	"github.com/leadgrid/leadgrid/internal/transport"
)

// Outcome classifies one cadence run. Every run terminates in exactly
// one of these; only sent and failed mutate message state.
type Outcome string

const (
	OutcomeLimitReached    Outcome = "limit_reached"
	OutcomeWaitingWindow   Outcome = "waiting_window"
	OutcomeNoPending       Outcome = "no_pending"
	OutcomeSkippedNotReady Outcome = "skipped_not_ready"
	OutcomeSent            Outcome = "sent"
	OutcomeFailed          Outcome = "failed"
)

// RunResult reports what a single cadence run did.
type RunResult struct {
	Channel       string     `json:"channel"`
	Outcome       Outcome    `json:"outcome"`
	Reason        string     `json:"reason,omitempty"`
	MessageID     *uuid.UUID `json:"message_id,omitempty"`
	Sequence      int        `json:"sequence,omitempty"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
}

// Store is the persistence surface the engine needs. *db.Repository
// satisfies it; tests use an in-memory fake.
type Store interface {
	GetUserSettings(ctx context.Context, userID uuid.UUID) (*db.UserSettings, error)
	GetSendLog(ctx context.Context, userID uuid.UUID, channel string) (*db.ChannelSendLog, error)
	UpsertSendLog(ctx context.Context, userID uuid.UUID, channel string, lastSentAt, nextAllowedAt time.Time) error
	CountSentToday(ctx context.Context, channel string, from, to time.Time) (map[int]int, error)
	NextPendingMessage(ctx context.Context, channel string, sequence int, cadenceTypes []string) (*db.OutboundMessage, *db.Lead, error)
	StepSentAt(ctx context.Context, leadID uuid.UUID, channel string, sequence int) (*time.Time, error)
	MarkMessageSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
	MarkMessageFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	AdvanceLeadStatus(ctx context.Context, leadID uuid.UUID, status string) error
}

// Locker serializes runs per channel. acquired=false means another run
// holds the lock; err means the locking backend itself failed.
type Locker interface {
	Acquire(ctx context.Context, userID uuid.UUID, channel string) (release func(), acquired bool, err error)
}

// EventPublisher receives best-effort notifications about successful
// sends. Failures are logged, never propagated into the run.
type EventPublisher interface {
	PublishSent(ctx context.Context, evt SentEvent) error
}

// SentEvent describes one successful cadence send.
type SentEvent struct {
	MessageID         uuid.UUID `json:"message_id"`
	LeadID            uuid.UUID `json:"lead_id"`
	Channel           string    `json:"channel"`
	Sequence          int       `json:"sequence"`
	ProviderMessageID string    `json:"provider_message_id"`
	SentAt            time.Time `json:"sent_at"`
}

// Engine runs the cadence for one channel. Each Run is a stateless
// tick: it reconstructs intent from persisted records, sends at most
// one message, and writes at most one message status, one lead status
// and one send-log row.
type Engine struct {
	store   Store
	adapter ChannelAdapter
	sender  transport.Sender
	locker  Locker
	events  EventPublisher // optional
	logger  *zap.Logger

	now func() time.Time // test hook
}

// NewEngine creates a cadence engine for one channel adapter.
// events may be nil.
func NewEngine(store Store, adapter ChannelAdapter, sender transport.Sender, locker Locker, events EventPublisher, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		adapter: adapter,
		sender:  sender,
		locker:  locker,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one cadence tick for the channel. It returns an error
// only for configuration or infrastructure faults; throttled, empty and
// not-ready ticks are normal no-op outcomes. The next external trigger
// retries naturally.
func (e *Engine) Run(ctx context.Context, userID uuid.UUID) (*RunResult, error) {
	channel := e.adapter.Channel()
	start := e.now()

	result, err := e.run(ctx, userID, channel)
	if err != nil {
		metrics.RecordCadenceRun(channel, "error", e.now().Sub(start))
		return nil, err
	}

	metrics.RecordCadenceRun(channel, string(result.Outcome), e.now().Sub(start))

	e.logger.Info("cadence run finished",
		zap.String("channel", channel),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", result.Reason),
	)

	return result, nil
}

func (e *Engine) run(ctx context.Context, userID uuid.UUID, channel string) (*RunResult, error) {
	// Serialize per-channel runs. Overlapping ticks reading the same
	// send log and counts would both decide to send.
	release, acquired, err := e.locker.Acquire(ctx, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return &RunResult{
			Channel: channel,
			Outcome: OutcomeWaitingWindow,
			Reason:  "another run is in progress",
		}, nil
	}
	defer release()

	settings, err := e.store.GetUserSettings(ctx, userID)
	if err != nil {
		// Missing settings is a misconfiguration: fatal for the tick,
		// reported rather than retried here.
		return nil, fmt.Errorf("load user settings: %w", err)
	}

	now := e.now().In(settings.Location())

	dailyLimit := e.adapter.DailyLimit(settings)
	if dailyLimit <= 0 {
		return &RunResult{
			Channel: channel,
			Outcome: OutcomeLimitReached,
			Reason:  "channel disabled: daily limit is zero",
		}, nil
	}

	dayStart, dayEnd := DayBounds(now)
	countsMap, err := e.store.CountSentToday(ctx, channel, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("count sent today: %w", err)
	}
	counts := StepCountsFrom(countsMap)

	if !CanSendMoreToday(counts.Total(), dailyLimit) {
		return &RunResult{
			Channel: channel,
			Outcome: OutcomeLimitReached,
			Reason:  fmt.Sprintf("daily limit reached: %d/%d", counts.Total(), dailyLimit),
		}, nil
	}

	sendLog, err := e.store.GetSendLog(ctx, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("load send log: %w", err)
	}
	if sendLog != nil && !CanSendNow(now, sendLog.NextAllowedAt) {
		next := sendLog.NextAllowedAt
		return &RunResult{
			Channel:       channel,
			Outcome:       OutcomeWaitingWindow,
			Reason:        "minimum send spacing not elapsed",
			NextAllowedAt: &next,
		}, nil
	}

	sequence := NextSequence(counts, dailyLimit)

	msg, lead, err := e.store.NextPendingMessage(ctx, channel, sequence, e.adapter.CadenceTypes())
	if err != nil {
		return nil, fmt.Errorf("query pending message: %w", err)
	}
	if msg == nil {
		return &RunResult{
			Channel:  channel,
			Outcome:  OutcomeNoPending,
			Sequence: sequence,
			Reason:   fmt.Sprintf("no pending message for step %d", sequence),
		}, nil
	}

	var prevStepSentAt *time.Time
	if sequence > 1 {
		prevStepSentAt, err = e.store.StepSentAt(ctx, lead.ID, channel, sequence-1)
		if err != nil {
			return nil, fmt.Errorf("query previous step: %w", err)
		}
	}

	// One eligibility check on the single candidate; no second
	// candidate is considered this tick, bounding the per-tick cost.
	verdict := CheckEligibility(now, msg, lead, prevStepSentAt, settings, e.adapter)
	if verdict.Fatal {
		if err := e.store.MarkMessageFailed(ctx, msg.ID, verdict.Reason); err != nil {
			return nil, fmt.Errorf("fail unusable message: %w", err)
		}
		return &RunResult{
			Channel:   channel,
			Outcome:   OutcomeSkippedNotReady,
			MessageID: &msg.ID,
			Sequence:  sequence,
			Reason:    verdict.Reason + " (message marked failed)",
		}, nil
	}
	if !verdict.Ready {
		return &RunResult{
			Channel:   channel,
			Outcome:   OutcomeSkippedNotReady,
			MessageID: &msg.ID,
			Sequence:  sequence,
			Reason:    verdict.Reason,
		}, nil
	}

	return e.send(ctx, userID, settings, now, dailyLimit, sequence, msg, lead)
}

// send performs the transport call and the three persisted writes:
// message status, lead status, send-log upsert.
func (e *Engine) send(
	ctx context.Context,
	userID uuid.UUID,
	settings *db.UserSettings,
	now time.Time,
	dailyLimit, sequence int,
	msg *db.OutboundMessage,
	lead *db.Lead,
) (*RunResult, error) {
	channel := e.adapter.Channel()

	result, sendErr := e.sender.Send(ctx, transport.SendRequest{
		MessageID: msg.ID,
		Channel:   channel,
		To:        msg.Recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
	})

	if sendErr != nil {
		// Terminal for this message only; the tick itself succeeds.
		metrics.RecordTransportFailure(channel)
		e.logger.Error("transport send failed",
			zap.Error(sendErr),
			zap.String("message_id", msg.ID.String()),
			zap.String("channel", channel),
		)

		if err := e.store.MarkMessageFailed(ctx, msg.ID, sendErr.Error()); err != nil {
			return nil, fmt.Errorf("record transport failure: %w", err)
		}

		return &RunResult{
			Channel:   channel,
			Outcome:   OutcomeFailed,
			MessageID: &msg.ID,
			Sequence:  sequence,
			Reason:    sendErr.Error(),
		}, nil
	}

	sentAt := e.now()
	if err := e.store.MarkMessageSent(ctx, msg.ID, result.ProviderMessageID, sentAt); err != nil {
		return nil, fmt.Errorf("mark message sent: %w", err)
	}

	if err := e.store.AdvanceLeadStatus(ctx, lead.ID, e.adapter.LeadStatusForStep(sequence)); err != nil {
		return nil, fmt.Errorf("advance lead status: %w", err)
	}

	hourStart, hourEnd := e.adapter.BusinessHours(settings)
	nextAllowed := NextAllowedSendTime(now, hourStart, hourEnd, dailyLimit)
	if err := e.store.UpsertSendLog(ctx, userID, channel, sentAt, nextAllowed); err != nil {
		return nil, fmt.Errorf("upsert send log: %w", err)
	}

	metrics.RecordMessageSent(channel, sequence)

	if e.events != nil {
		evt := SentEvent{
			MessageID:         msg.ID,
			LeadID:            lead.ID,
			Channel:           channel,
			Sequence:          sequence,
			ProviderMessageID: result.ProviderMessageID,
			SentAt:            sentAt,
		}
		if err := e.events.PublishSent(ctx, evt); err != nil {
			e.logger.Warn("failed to publish sent event",
				zap.Error(err),
				zap.String("message_id", msg.ID.String()),
			)
		}
	}

	e.logger.Info("cadence message sent",
		zap.String("message_id", msg.ID.String()),
		zap.String("lead_id", lead.ID.String()),
		zap.String("channel", channel),
		zap.Int("sequence", sequence),
		zap.Time("next_allowed_at", nextAllowed),
	)

	return &RunResult{
		Channel:       channel,
		Outcome:       OutcomeSent,
		MessageID:     &msg.ID,
		Sequence:      sequence,
		NextAllowedAt: &nextAllowed,
	}, nil
}
