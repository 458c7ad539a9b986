package db

import (
	"time"

	"github.com/google/uuid"
)

// Lead represents a prospect extracted into a campaign
type Lead struct {
	ID          uuid.UUID  `json:"id"`
	CampaignID  uuid.UUID  `json:"campaign_id"`
	Name        string     `json:"name"`
	Company     string     `json:"company"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Status      string     `json:"status"`
	CadenceType string     `json:"cadence_type"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`
	OptedOutAt  *time.Time `json:"opted_out_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Lead status constants. A lead walks forward through these; the three
// terminal statuses absorb and halt all further cadence sends.
const (
	LeadStatusExtracted = "extracted"
	LeadStatusEnriched  = "enriched"

	LeadStatusEmail1Sent = "email_1_sent"
	LeadStatusEmail2Sent = "email_2_sent"
	LeadStatusEmail3Sent = "email_3_sent"

	LeadStatusWhatsApp1Sent = "whatsapp_1_sent"
	LeadStatusWhatsApp2Sent = "whatsapp_2_sent"
	LeadStatusWhatsApp3Sent = "whatsapp_3_sent"

	LeadStatusReplied  = "replied"
	LeadStatusOptedOut = "opted_out"
	LeadStatusBounced  = "bounced"
)

// Cadence type constants
const (
	CadenceEmailOnly    = "email_only"
	CadenceWhatsAppOnly = "whatsapp_only"
	CadenceHybrid       = "hybrid"
)

// TerminalLeadStatuses are absorbing: once a lead reaches one of them no
// step-status transition may occur again.
var TerminalLeadStatuses = []string{LeadStatusReplied, LeadStatusOptedOut, LeadStatusBounced}

// IsTerminalLeadStatus reports whether status halts the cadence for good.
func IsTerminalLeadStatus(status string) bool {
	return status == LeadStatusReplied || status == LeadStatusOptedOut || status == LeadStatusBounced
}

// OutboundMessage is one cadence message per (lead, channel, step)
type OutboundMessage struct {
	ID                uuid.UUID  `json:"id"`
	LeadID            uuid.UUID  `json:"lead_id"`
	Channel           string     `json:"channel"`
	SequenceNumber    int        `json:"sequence_number"`
	Status            string     `json:"status"`
	Subject           string     `json:"subject,omitempty"`
	Body              string     `json:"body"`
	Recipient         string     `json:"recipient"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	RepliedAt         *time.Time `json:"replied_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Message status constants
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusReplied   = "replied"
	MessageStatusFailed    = "failed"
	MessageStatusBounced   = "bounced"
)

// Channel constants
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// messageStatusRank orders message statuses so webhook updates can be
// applied forward-only and never clobber a later state.
var messageStatusRank = map[string]int{
	MessageStatusPending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
	MessageStatusReplied:   4,
	MessageStatusFailed:    4,
	MessageStatusBounced:   4,
}

// MessageStatusAdvances reports whether moving from -> to is a forward
// transition in the message lifecycle.
func MessageStatusAdvances(from, to string) bool {
	return messageStatusRank[to] > messageStatusRank[from]
}

// ChannelSendLog records the last send and the earliest next-permitted
// send per (user, channel). It throttles the whole channel's cadence,
// not an individual lead.
type ChannelSendLog struct {
	UserID        uuid.UUID `json:"user_id"`
	Channel       string    `json:"channel"`
	LastSentAt    time.Time `json:"last_sent_at"`
	NextAllowedAt time.Time `json:"next_allowed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserSettings holds per-user cadence configuration. Read-only to the
// scheduler; managed by the application layer.
type UserSettings struct {
	UserID             uuid.UUID `json:"user_id"`
	EmailDailyLimit    int       `json:"email_daily_limit"`
	WhatsAppDailyLimit *int      `json:"whatsapp_daily_limit,omitempty"`
	EmailHourStart     int       `json:"email_hour_start"`
	EmailHourEnd       int       `json:"email_hour_end"`
	WhatsAppHourStart  int       `json:"whatsapp_hour_start"`
	WhatsAppHourEnd    int       `json:"whatsapp_hour_end"`
	Step2DelayHours    int       `json:"step2_delay_hours"`
	Step3DelayHours    int       `json:"step3_delay_hours"`
	Timezone           string    `json:"timezone"`
}

// Location resolves the configured business timezone, falling back to
// UTC when unset or unknown.
func (s *UserSettings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
