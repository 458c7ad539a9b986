package cadence

import (
	"github.com/leadgrid/leadgrid/internal/db"
)

// ChannelAdapter abstracts the two outreach channels so one engine can
// drive both. Adapters are stateless; all configuration comes from the
// UserSettings passed in.
type ChannelAdapter interface {
	// Channel returns the channel identifier (db.ChannelEmail or
	// db.ChannelWhatsApp).
	Channel() string

	// DailyLimit returns the channel's daily send cap. Zero or negative
	// disables the channel.
	DailyLimit(s *db.UserSettings) int

	// BusinessHours returns the local-clock [start, end) hour bounds.
	BusinessHours(s *db.UserSettings) (int, int)

	// LeadStatusForStep maps a sent cadence step to the lead status
	// marker recorded after the send.
	LeadStatusForStep(sequence int) string

	// Destination extracts the channel's recipient address from a lead.
	// Empty means the lead is unusable on this channel.
	Destination(lead *db.Lead) string

	// CadenceTypes lists the lead cadence types this channel serves.
	CadenceTypes() []string
}

// EmailAdapter drives the email cadence.
type EmailAdapter struct{}

func (EmailAdapter) Channel() string { return db.ChannelEmail }

func (EmailAdapter) DailyLimit(s *db.UserSettings) int { return s.EmailDailyLimit }

func (EmailAdapter) BusinessHours(s *db.UserSettings) (int, int) {
	return s.EmailHourStart, s.EmailHourEnd
}

func (EmailAdapter) LeadStatusForStep(sequence int) string {
	switch sequence {
	case 1:
		return db.LeadStatusEmail1Sent
	case 2:
		return db.LeadStatusEmail2Sent
	default:
		return db.LeadStatusEmail3Sent
	}
}

func (EmailAdapter) Destination(lead *db.Lead) string { return lead.Email }

func (EmailAdapter) CadenceTypes() []string {
	return []string{db.CadenceEmailOnly, db.CadenceHybrid}
}

// WhatsAppAdapter drives the WhatsApp cadence.
type WhatsAppAdapter struct{}

func (WhatsAppAdapter) Channel() string { return db.ChannelWhatsApp }

// DailyLimit falls back to the email limit when no WhatsApp-specific
// limit is configured. Inherited business policy; see DESIGN.md.
func (WhatsAppAdapter) DailyLimit(s *db.UserSettings) int {
	if s.WhatsAppDailyLimit != nil {
		return *s.WhatsAppDailyLimit
	}
	return s.EmailDailyLimit
}

func (WhatsAppAdapter) BusinessHours(s *db.UserSettings) (int, int) {
	return s.WhatsAppHourStart, s.WhatsAppHourEnd
}

func (WhatsAppAdapter) LeadStatusForStep(sequence int) string {
	switch sequence {
	case 1:
		return db.LeadStatusWhatsApp1Sent
	case 2:
		return db.LeadStatusWhatsApp2Sent
	default:
		return db.LeadStatusWhatsApp3Sent
	}
}

func (WhatsAppAdapter) Destination(lead *db.Lead) string { return lead.Phone }

func (WhatsAppAdapter) CadenceTypes() []string {
	return []string{db.CadenceWhatsAppOnly, db.CadenceHybrid}
}
