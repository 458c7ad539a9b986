package cadence

// NextSequence picks which of the three cadence steps should receive
// the next send, keeping per-step counts close to an even third of the
// daily limit so steps 2 and 3 make progress through the day instead of
// step 1 draining the whole budget first.
//
// Greedy largest-deficit: deficit = dailyLimit/3 - count; the step with
// the largest deficit wins, ties broken by lowest sequence number. The
// function is total — when every step has met its share it still
// returns the least over-served step, and the eligibility filter then
// finds no pending message if that step has none ready.
func NextSequence(counts StepCounts, dailyLimit int) int {
	share := dailyLimit / 3

	best := 1
	bestDeficit := share - counts[0]
	for seq := 2; seq <= 3; seq++ {
		deficit := share - counts[seq-1]
		if deficit > bestDeficit {
			best = seq
			bestDeficit = deficit
		}
	}

	return best
}
