// Package cadence implements the outbound-message cadence scheduler:
// pure send-window, budget, step-balancing and eligibility decisions
// composed by a per-channel engine that sends at most one message per
// externally triggered run. All scheduling intent lives in persisted
// state; nothing survives in process memory between runs.
package cadence

import "time"

// WithinBusinessHours reports whether now falls inside the channel's
// local-clock hour-of-day window [hourStart, hourEnd).
func WithinBusinessHours(now time.Time, hourStart, hourEnd int) bool {
	if hourEnd <= hourStart {
		return false
	}
	h := now.Hour()
	return h >= hourStart && h < hourEnd
}

// SendSpacing derives the minimum gap between consecutive sends by
// spreading dailyLimit sends evenly across the business-hour window.
// ok is false when the limit or the window is non-positive, which means
// the channel is disabled.
func SendSpacing(hourStart, hourEnd, dailyLimit int) (time.Duration, bool) {
	if dailyLimit <= 0 || hourEnd <= hourStart {
		return 0, false
	}
	windowSeconds := (hourEnd - hourStart) * 3600
	return time.Duration(windowSeconds/dailyLimit) * time.Second, true
}

// NextAllowedSendTime computes the earliest next send after a send at
// now: now plus the even-spread spacing, rolled to the start of the
// next business day when the result would land outside today's window.
// The zero time means the channel is disabled.
func NextAllowedSendTime(now time.Time, hourStart, hourEnd, dailyLimit int) time.Time {
	spacing, ok := SendSpacing(hourStart, hourEnd, dailyLimit)
	if !ok {
		return time.Time{}
	}

	next := now.Add(spacing)

	windowEnd := time.Date(now.Year(), now.Month(), now.Day(), hourEnd, 0, 0, 0, now.Location())
	if next.Before(windowEnd) && next.Hour() >= hourStart {
		return next
	}

	// Roll to the next day's window open.
	nextDay := now.AddDate(0, 0, 1)
	return time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(), hourStart, 0, 0, 0, now.Location())
}
