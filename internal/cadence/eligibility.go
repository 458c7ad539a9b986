package cadence

import (
	"fmt"
	"time"

	"github.com/leadgrid/leadgrid/internal/db"
)

// Verdict is the result of an eligibility check on one candidate
// message. A not-ready verdict leaves the message pending for a future
// run; a fatal one means the message can never send and must be marked
// failed so it stops occupying its step's queue head.
type Verdict struct {
	Ready  bool
	Fatal  bool
	Reason string
}

func ready() Verdict                 { return Verdict{Ready: true} }
func notReady(reason string) Verdict { return Verdict{Reason: reason} }
func fatal(reason string) Verdict    { return Verdict{Fatal: true, Reason: reason} }

// CheckEligibility decides whether the single candidate message may be
// sent right now. It combines message state, lead state (terminal
// statuses are checked at lead level so a reply on either channel of a
// hybrid cadence suppresses the other), minimum delay since the
// previous step, business hours and destination validity.
//
// prevStepSentAt is when step sequence-1 was sent for this lead on this
// channel; nil for step 1.
func CheckEligibility(
	now time.Time,
	msg *db.OutboundMessage,
	lead *db.Lead,
	prevStepSentAt *time.Time,
	settings *db.UserSettings,
	adapter ChannelAdapter,
) Verdict {
	if msg.Status != db.MessageStatusPending {
		return notReady(fmt.Sprintf("message status is %s, not pending", msg.Status))
	}

	if db.IsTerminalLeadStatus(lead.Status) {
		return notReady(fmt.Sprintf("lead is terminal: %s", lead.Status))
	}

	// Cross-channel reply suppression for hybrid cadences: the reply
	// timestamp lives on the lead, not on any one channel's messages.
	if lead.RepliedAt != nil {
		return notReady("lead has replied")
	}
	if lead.OptedOutAt != nil {
		return notReady("lead has opted out")
	}

	if verdict := checkStepDelay(now, msg.SequenceNumber, prevStepSentAt, settings); !verdict.Ready {
		return verdict
	}

	hourStart, hourEnd := adapter.BusinessHours(settings)
	if !WithinBusinessHours(now, hourStart, hourEnd) {
		return notReady(fmt.Sprintf("outside business hours %d-%d", hourStart, hourEnd))
	}

	if adapter.Destination(lead) == "" || msg.Recipient == "" {
		// No usable destination: leaving it pending would wedge the
		// step's FIFO head in an infinite retry loop.
		return fatal(fmt.Sprintf("lead %s has no %s destination", lead.ID, adapter.Channel()))
	}

	return ready()
}

// checkStepDelay gates steps 2 and 3 behind the configured delay since
// the previous step's send. Step 1 is eligible immediately.
func checkStepDelay(now time.Time, sequence int, prevStepSentAt *time.Time, settings *db.UserSettings) Verdict {
	if sequence <= 1 {
		return ready()
	}

	if prevStepSentAt == nil {
		return notReady(fmt.Sprintf("step %d not sent yet", sequence-1))
	}

	var delay time.Duration
	switch sequence {
	case 2:
		delay = time.Duration(settings.Step2DelayHours) * time.Hour
	default:
		delay = time.Duration(settings.Step3DelayHours) * time.Hour
	}

	eligibleAt := prevStepSentAt.Add(delay)
	if now.Before(eligibleAt) {
		return notReady(fmt.Sprintf("step %d delay not elapsed, eligible at %s", sequence, eligibleAt.Format(time.RFC3339)))
	}

	return ready()
}
