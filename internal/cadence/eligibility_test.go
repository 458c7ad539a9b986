package cadence

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leadgrid/leadgrid/internal/db"
)

func testSettings() *db.UserSettings {
	return &db.UserSettings{
		UserID:            uuid.New(),
		EmailDailyLimit:   30,
		EmailHourStart:    9,
		EmailHourEnd:      18,
		WhatsAppHourStart: 9,
		WhatsAppHourEnd:   18,
		Step2DelayHours:   48,
		Step3DelayHours:   96,
		Timezone:          "UTC",
	}
}

func testLead() *db.Lead {
	return &db.Lead{
		ID:          uuid.New(),
		CampaignID:  uuid.New(),
		Name:        "Ada Example",
		Company:     "Example Co",
		Email:       "ada@example.com",
		Phone:       "+14155550100",
		Status:      db.LeadStatusEnriched,
		CadenceType: db.CadenceHybrid,
	}
}

func testMessage(lead *db.Lead, sequence int) *db.OutboundMessage {
	return &db.OutboundMessage{
		ID:             uuid.New(),
		LeadID:         lead.ID,
		Channel:        db.ChannelEmail,
		SequenceNumber: sequence,
		Status:         db.MessageStatusPending,
		Subject:        "Quick question",
		Body:           "Hi Ada",
		Recipient:      lead.Email,
	}
}

// 10:00 UTC, inside the default 9-18 window.
var businessHoursNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func TestCheckEligibility_Step1Ready(t *testing.T) {
	lead := testLead()
	msg := testMessage(lead, 1)

	v := CheckEligibility(businessHoursNow, msg, lead, nil, testSettings(), EmailAdapter{})

	if !v.Ready {
		t.Errorf("expected ready, got reason %q", v.Reason)
	}
}

func TestCheckEligibility_NonPendingMessage(t *testing.T) {
	lead := testLead()
	msg := testMessage(lead, 1)
	msg.Status = db.MessageStatusSent

	v := CheckEligibility(businessHoursNow, msg, lead, nil, testSettings(), EmailAdapter{})

	if v.Ready || v.Fatal {
		t.Errorf("already-sent message should be skipped non-fatally, got %+v", v)
	}
}

func TestCheckEligibility_TerminalLead(t *testing.T) {
	for _, status := range []string{db.LeadStatusReplied, db.LeadStatusOptedOut, db.LeadStatusBounced} {
		t.Run(status, func(t *testing.T) {
			lead := testLead()
			lead.Status = status
			msg := testMessage(lead, 1)

			v := CheckEligibility(businessHoursNow, msg, lead, nil, testSettings(), EmailAdapter{})

			if v.Ready {
				t.Errorf("terminal lead %s should not be eligible", status)
			}
			if v.Fatal {
				t.Errorf("terminal lead should not mark the message failed")
			}
		})
	}
}

func TestCheckEligibility_CrossChannelReply(t *testing.T) {
	// WhatsApp reply recorded at lead level suppresses the email step
	// of a hybrid cadence even before the lead status catches up.
	lead := testLead()
	repliedAt := businessHoursNow.Add(-time.Hour)
	lead.RepliedAt = &repliedAt
	msg := testMessage(lead, 2)
	prev := businessHoursNow.Add(-72 * time.Hour)

	v := CheckEligibility(businessHoursNow, msg, lead, &prev, testSettings(), EmailAdapter{})

	if v.Ready {
		t.Error("replied lead should not be eligible on any channel")
	}
}

func TestCheckEligibility_Step2DelayNotElapsed(t *testing.T) {
	lead := testLead()
	lead.Status = db.LeadStatusEmail1Sent
	msg := testMessage(lead, 2)
	prev := businessHoursNow.Add(-24 * time.Hour) // 48h required

	v := CheckEligibility(businessHoursNow, msg, lead, &prev, testSettings(), EmailAdapter{})

	if v.Ready {
		t.Error("step 2 before the 48h delay should not be eligible")
	}
	if v.Fatal {
		t.Error("delay gate should leave the message pending")
	}
	if !strings.Contains(v.Reason, "delay") {
		t.Errorf("reason should mention the delay, got %q", v.Reason)
	}
}

func TestCheckEligibility_Step2DelayElapsed(t *testing.T) {
	lead := testLead()
	lead.Status = db.LeadStatusEmail1Sent
	msg := testMessage(lead, 2)
	prev := businessHoursNow.Add(-49 * time.Hour)

	v := CheckEligibility(businessHoursNow, msg, lead, &prev, testSettings(), EmailAdapter{})

	if !v.Ready {
		t.Errorf("step 2 after the delay should be eligible, got %q", v.Reason)
	}
}

func TestCheckEligibility_Step3UsesOwnDelay(t *testing.T) {
	lead := testLead()
	lead.Status = db.LeadStatusEmail2Sent
	msg := testMessage(lead, 3)
	prev := businessHoursNow.Add(-72 * time.Hour) // 96h required

	v := CheckEligibility(businessHoursNow, msg, lead, &prev, testSettings(), EmailAdapter{})

	if v.Ready {
		t.Error("step 3 before the 96h delay should not be eligible")
	}
}

func TestCheckEligibility_PreviousStepNotSent(t *testing.T) {
	lead := testLead()
	msg := testMessage(lead, 2)

	v := CheckEligibility(businessHoursNow, msg, lead, nil, testSettings(), EmailAdapter{})

	if v.Ready || v.Fatal {
		t.Errorf("step 2 without step 1 sent should wait, got %+v", v)
	}
}

func TestCheckEligibility_OutsideBusinessHours(t *testing.T) {
	lead := testLead()
	msg := testMessage(lead, 1)
	evening := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	v := CheckEligibility(evening, msg, lead, nil, testSettings(), EmailAdapter{})

	if v.Ready {
		t.Error("22:00 is outside the 9-18 window")
	}
	if v.Fatal {
		t.Error("business hours gate should leave the message pending")
	}
}

func TestCheckEligibility_MissingDestinationIsFatal(t *testing.T) {
	lead := testLead()
	lead.Email = ""
	msg := testMessage(lead, 1)
	msg.Recipient = ""

	v := CheckEligibility(businessHoursNow, msg, lead, nil, testSettings(), EmailAdapter{})

	if v.Ready {
		t.Error("missing destination should not be eligible")
	}
	if !v.Fatal {
		t.Error("missing destination should be fatal so the FIFO head unblocks")
	}
}

func TestCheckEligibility_WhatsAppUsesPhone(t *testing.T) {
	lead := testLead()
	lead.Email = ""
	msg := testMessage(lead, 1)
	msg.Channel = db.ChannelWhatsApp
	msg.Recipient = lead.Phone

	v := CheckEligibility(businessHoursNow, msg, lead, nil, testSettings(), WhatsAppAdapter{})

	if !v.Ready {
		t.Errorf("whatsapp cares about phone, not email: %q", v.Reason)
	}
}

func TestWhatsAppAdapter_DailyLimitFallback(t *testing.T) {
	s := testSettings()

	if got := (WhatsAppAdapter{}).DailyLimit(s); got != 30 {
		t.Errorf("unset whatsapp limit should fall back to email's 30, got %d", got)
	}

	limit := 12
	s.WhatsAppDailyLimit = &limit
	if got := (WhatsAppAdapter{}).DailyLimit(s); got != 12 {
		t.Errorf("explicit whatsapp limit should win, got %d", got)
	}
}
