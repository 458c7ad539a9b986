package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Sentinel errors surfaced to callers
var (
	ErrSettingsNotFound = errors.New("user settings not found")
	ErrMessageNotFound  = errors.New("outbound message not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository handles database operations for leads, outbound messages,
// send logs and user settings
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetUserSettings loads the cadence configuration for a user.
// Returns ErrSettingsNotFound when no row exists — a misconfiguration
// the cadence engine treats as fatal for the tick.
func (r *Repository) GetUserSettings(ctx context.Context, userID uuid.UUID) (*UserSettings, error) {
	query := `
		SELECT
			user_id, email_daily_limit, whatsapp_daily_limit,
			email_hour_start, email_hour_end,
			whatsapp_hour_start, whatsapp_hour_end,
			step2_delay_hours, step3_delay_hours, timezone
		FROM user_settings
		WHERE user_id = $1
	`

	var s UserSettings
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.EmailDailyLimit,
		&s.WhatsAppDailyLimit,
		&s.EmailHourStart,
		&s.EmailHourEnd,
		&s.WhatsAppHourStart,
		&s.WhatsAppHourEnd,
		&s.Step2DelayHours,
		&s.Step3DelayHours,
		&s.Timezone,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}

	if err != nil {
		r.logger.Error("failed to get user settings",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("query user settings: %w", err)
	}

	return &s, nil
}

// GetSendLog returns the channel send log, or nil if the channel has
// never sent.
func (r *Repository) GetSendLog(ctx context.Context, userID uuid.UUID, channel string) (*ChannelSendLog, error) {
	query := `
		SELECT user_id, channel, last_sent_at, next_allowed_at, updated_at
		FROM channel_send_logs
		WHERE user_id = $1 AND channel = $2
	`

	var sl ChannelSendLog
	err := r.db.Pool().QueryRow(ctx, query, userID, channel).Scan(
		&sl.UserID,
		&sl.Channel,
		&sl.LastSentAt,
		&sl.NextAllowedAt,
		&sl.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query send log: %w", err)
	}

	return &sl, nil
}

// UpsertSendLog records a successful send and the earliest next-allowed
// send time for the channel.
func (r *Repository) UpsertSendLog(ctx context.Context, userID uuid.UUID, channel string, lastSentAt, nextAllowedAt time.Time) error {
	query := `
		INSERT INTO channel_send_logs (user_id, channel, last_sent_at, next_allowed_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, channel)
		DO UPDATE SET last_sent_at = $3, next_allowed_at = $4, updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query, userID, channel, lastSentAt, nextAllowedAt)
	if err != nil {
		r.logger.Error("failed to upsert send log",
			zap.Error(err),
			zap.String("channel", channel),
		)
		return fmt.Errorf("upsert send log: %w", err)
	}

	return nil
}

// CountSentToday returns per-sequence counts of messages sent on the
// channel within [from, to) — the local calendar day computed by the
// caller in the user's business timezone.
func (r *Repository) CountSentToday(ctx context.Context, channel string, from, to time.Time) (map[int]int, error) {
	query := `
		SELECT sequence_number, COUNT(*)
		FROM outbound_messages
		WHERE channel = $1
		  AND status <> 'pending'
		  AND sent_at >= $2 AND sent_at < $3
		GROUP BY sequence_number
	`

	rows, err := r.db.Pool().Query(ctx, query, channel, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sent counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int, 3)
	for rows.Next() {
		var seq, n int
		if err := rows.Scan(&seq, &n); err != nil {
			return nil, fmt.Errorf("scan sent count: %w", err)
		}
		counts[seq] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return counts, nil
}

// NextPendingMessage fetches the single oldest pending message for the
// channel and step, scoped to leads whose cadence type matches the
// channel and who have not reached a terminal status. FIFO within a
// step keeps fairness across leads. Returns (nil, nil, nil) when there
// is no pending work.
func (r *Repository) NextPendingMessage(ctx context.Context, channel string, sequence int, cadenceTypes []string) (*OutboundMessage, *Lead, error) {
	query := `
		SELECT
			m.id, m.lead_id, m.channel, m.sequence_number, m.status,
			m.subject, m.body, m.recipient, m.provider_message_id,
			m.error_message, m.sent_at, m.delivered_at, m.read_at,
			m.replied_at, m.created_at, m.updated_at,
			l.id, l.campaign_id, l.name, l.company, l.email, l.phone,
			l.status, l.cadence_type, l.replied_at, l.opted_out_at,
			l.created_at, l.updated_at
		FROM outbound_messages m
		JOIN leads l ON l.id = m.lead_id
		WHERE m.channel = $1
		  AND m.sequence_number = $2
		  AND m.status = 'pending'
		  AND l.cadence_type = ANY($3)
		  AND l.status NOT IN ('replied', 'opted_out', 'bounced')
		ORDER BY m.created_at ASC
		LIMIT 1
	`

	var msg OutboundMessage
	var lead Lead
	err := r.db.Pool().QueryRow(ctx, query, channel, sequence, cadenceTypes).Scan(
		&msg.ID,
		&msg.LeadID,
		&msg.Channel,
		&msg.SequenceNumber,
		&msg.Status,
		&msg.Subject,
		&msg.Body,
		&msg.Recipient,
		&msg.ProviderMessageID,
		&msg.ErrorMessage,
		&msg.SentAt,
		&msg.DeliveredAt,
		&msg.ReadAt,
		&msg.RepliedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&lead.ID,
		&lead.CampaignID,
		&lead.Name,
		&lead.Company,
		&lead.Email,
		&lead.Phone,
		&lead.Status,
		&lead.CadenceType,
		&lead.RepliedAt,
		&lead.OptedOutAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}

	if err != nil {
		r.logger.Error("failed to query pending message",
			zap.Error(err),
			zap.String("channel", channel),
			zap.Int("sequence", sequence),
		)
		return nil, nil, fmt.Errorf("query pending message: %w", err)
	}

	return &msg, &lead, nil
}

// StepSentAt returns when the given step was sent for a lead on a
// channel, or nil if it was never sent.
func (r *Repository) StepSentAt(ctx context.Context, leadID uuid.UUID, channel string, sequence int) (*time.Time, error) {
	query := `
		SELECT sent_at
		FROM outbound_messages
		WHERE lead_id = $1 AND channel = $2 AND sequence_number = $3
		  AND sent_at IS NOT NULL
	`

	var sentAt *time.Time
	err := r.db.Pool().QueryRow(ctx, query, leadID, channel, sequence).Scan(&sentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query step sent_at: %w", err)
	}

	return sentAt, nil
}

// MarkMessageSent transitions a pending message to sent. The status
// guard makes the write idempotent under a lost race: a second writer
// affects zero rows and gets ErrInvalidTransition.
func (r *Repository) MarkMessageSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE outbound_messages
		SET status = 'sent', provider_message_id = $2, sent_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.Pool().Exec(ctx, query, id, providerMessageID, sentAt)
	if err != nil {
		r.logger.Error("failed to mark message sent",
			zap.Error(err),
			zap.String("message_id", id.String()),
		)
		return fmt.Errorf("mark message sent: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s is not pending", ErrInvalidTransition, id)
	}

	return nil
}

// MarkMessageFailed records a terminal failure on a pending message so
// it is never re-attempted by the engine.
func (r *Repository) MarkMessageFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE outbound_messages
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.Pool().Exec(ctx, query, id, errorMessage)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s is not pending", ErrInvalidTransition, id)
	}

	r.logger.Info("message marked failed",
		zap.String("message_id", id.String()),
		zap.String("error", errorMessage),
	)

	return nil
}

// AdvanceLeadStatus moves a lead forward in the cadence. The guard
// keeps terminal statuses absorbing: once replied, opted out or
// bounced, no step marker may overwrite them.
func (r *Repository) AdvanceLeadStatus(ctx context.Context, leadID uuid.UUID, status string) error {
	query := `
		UPDATE leads
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('replied', 'opted_out', 'bounced')
	`

	_, err := r.db.Pool().Exec(ctx, query, leadID, status)
	if err != nil {
		r.logger.Error("failed to advance lead status",
			zap.Error(err),
			zap.String("lead_id", leadID.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("advance lead status: %w", err)
	}

	return nil
}

// MarkLeadTerminal puts a lead into an absorbing status (replied,
// opted_out, bounced) and stamps the corresponding timestamp.
func (r *Repository) MarkLeadTerminal(ctx context.Context, leadID uuid.UUID, status string, at time.Time) error {
	if !IsTerminalLeadStatus(status) {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	var query string
	switch status {
	case LeadStatusReplied:
		query = `
			UPDATE leads
			SET status = $2, replied_at = COALESCE(replied_at, $3), updated_at = NOW()
			WHERE id = $1 AND status NOT IN ('replied', 'opted_out', 'bounced')
		`
	case LeadStatusOptedOut:
		query = `
			UPDATE leads
			SET status = $2, opted_out_at = COALESCE(opted_out_at, $3), updated_at = NOW()
			WHERE id = $1 AND status NOT IN ('replied', 'opted_out', 'bounced')
		`
	default:
		query = `
			UPDATE leads
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status NOT IN ('replied', 'opted_out', 'bounced')
		`
		_, err := r.db.Pool().Exec(ctx, query, leadID, status)
		if err != nil {
			return fmt.Errorf("mark lead terminal: %w", err)
		}
		return nil
	}

	_, err := r.db.Pool().Exec(ctx, query, leadID, status, at)
	if err != nil {
		return fmt.Errorf("mark lead terminal: %w", err)
	}

	return nil
}

// CreateLead inserts a new lead
func (r *Repository) CreateLead(ctx context.Context, lead *Lead) error {
	query := `
		INSERT INTO leads (
			id, campaign_id, name, company, email, phone, status, cadence_type
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			company = EXCLUDED.company,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			status = CASE
				WHEN leads.status = 'extracted' THEN EXCLUDED.status
				ELSE leads.status
			END,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		lead.ID,
		lead.CampaignID,
		lead.Name,
		lead.Company,
		lead.Email,
		lead.Phone,
		lead.Status,
		lead.CadenceType,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create lead",
			zap.Error(err),
			zap.String("lead_id", lead.ID.String()),
		)
		return fmt.Errorf("insert lead: %w", err)
	}

	r.logger.Info("lead created",
		zap.String("lead_id", lead.ID.String()),
		zap.String("campaign_id", lead.CampaignID.String()),
		zap.String("cadence_type", lead.CadenceType),
	)

	return nil
}

// CreateOutboundMessage inserts a generated cadence message. The unique
// index on (lead_id, channel, sequence_number) makes enrichment
// callbacks replay-safe — duplicates are silently skipped.
func (r *Repository) CreateOutboundMessage(ctx context.Context, msg *OutboundMessage) error {
	query := `
		INSERT INTO outbound_messages (
			id, lead_id, channel, sequence_number, status,
			subject, body, recipient
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (lead_id, channel, sequence_number) DO NOTHING
	`

	_, err := r.db.Pool().Exec(
		ctx,
		query,
		msg.ID,
		msg.LeadID,
		msg.Channel,
		msg.SequenceNumber,
		msg.Status,
		msg.Subject,
		msg.Body,
		msg.Recipient,
	)

	if err != nil {
		r.logger.Error("failed to create outbound message",
			zap.Error(err),
			zap.String("lead_id", msg.LeadID.String()),
			zap.String("channel", msg.Channel),
			zap.Int("sequence", msg.SequenceNumber),
		)
		return fmt.Errorf("insert outbound message: %w", err)
	}

	return nil
}

// GetMessageByProviderID resolves a delivery webhook's provider message
// id back to the outbound message.
func (r *Repository) GetMessageByProviderID(ctx context.Context, providerMessageID string) (*OutboundMessage, error) {
	query := `
		SELECT
			id, lead_id, channel, sequence_number, status,
			subject, body, recipient, provider_message_id,
			error_message, sent_at, delivered_at, read_at,
			replied_at, created_at, updated_at
		FROM outbound_messages
		WHERE provider_message_id = $1
	`

	var msg OutboundMessage
	err := r.db.Pool().QueryRow(ctx, query, providerMessageID).Scan(
		&msg.ID,
		&msg.LeadID,
		&msg.Channel,
		&msg.SequenceNumber,
		&msg.Status,
		&msg.Subject,
		&msg.Body,
		&msg.Recipient,
		&msg.ProviderMessageID,
		&msg.ErrorMessage,
		&msg.SentAt,
		&msg.DeliveredAt,
		&msg.ReadAt,
		&msg.RepliedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("query message by provider id: %w", err)
	}

	return &msg, nil
}

// UpdateMessageDelivery applies a forward-only delivery-state update
// from an inbound webhook. The rank guard in SQL prevents a late
// "delivered" event from clobbering an earlier "replied".
func (r *Repository) UpdateMessageDelivery(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	var tsColumn string
	switch status {
	case MessageStatusDelivered:
		tsColumn = "delivered_at"
	case MessageStatusRead:
		tsColumn = "read_at"
	case MessageStatusReplied:
		tsColumn = "replied_at"
	default:
		tsColumn = ""
	}

	query := `
		UPDATE outbound_messages
		SET status = $2, updated_at = NOW()`
	if tsColumn != "" {
		query += fmt.Sprintf(", %s = COALESCE(%s, $3)", tsColumn, tsColumn)
	}
	query += `
		WHERE id = $1
		  AND status NOT IN ('replied', 'failed', 'bounced')`

	var err error
	if tsColumn != "" {
		_, err = r.db.Pool().Exec(ctx, query, id, status, at)
	} else {
		_, err = r.db.Pool().Exec(ctx, query, id, status)
	}

	if err != nil {
		r.logger.Error("failed to update message delivery state",
			zap.Error(err),
			zap.String("message_id", id.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("update message delivery: %w", err)
	}

	return nil
}
