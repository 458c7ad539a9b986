package cadence

import "time"

// StepCounts holds today's sent counts per cadence step, indexed by
// sequence number minus one.
type StepCounts [3]int

// Total returns the number of messages sent today across all steps.
func (c StepCounts) Total() int {
	return c[0] + c[1] + c[2]
}

// StepCountsFrom builds StepCounts from a sequence→count map as
// returned by the repository's grouped query.
func StepCountsFrom(m map[int]int) StepCounts {
	var c StepCounts
	for seq, n := range m {
		if seq >= 1 && seq <= 3 {
			c[seq-1] = n
		}
	}
	return c
}

// CanSendMoreToday reports whether the channel still has daily budget.
func CanSendMoreToday(sentToday, dailyLimit int) bool {
	return sentToday < dailyLimit
}

// CanSendNow reports whether the minimum inter-send spacing recorded in
// the channel send log has elapsed.
func CanSendNow(now, nextAllowedAt time.Time) bool {
	return !now.Before(nextAllowedAt)
}

// DayBounds returns the local calendar day [00:00, 24:00) containing
// now. Day boundaries follow the user's configured business timezone,
// carried on now's location by the caller.
func DayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}
