package session

import "time"

// Timer counts down from Start. A zero Limit means no timer.
type Timer struct {
	Start time.Time
	Limit time.Duration
}

func (t Timer) Enabled() bool { return t.Limit > 0 }

// Remaining is always recomputed from Start, never decremented.
func (t Timer) Remaining(now time.Time) time.Duration {
	return Remaining(t.Start, t.Limit, now)
}

func (t Timer) Expired(now time.Time) bool {
	return t.Enabled() && t.Remaining(now) == 0
}

// Elapsed is time spent since Start, capped at Limit when a timer is set.
func (t Timer) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(t.Start)
	if elapsed < 0 {
		return 0
	}
	if t.Enabled() && elapsed > t.Limit {
		return t.Limit
	}
	return elapsed
}

// Remaining returns limit minus the time elapsed since start, clamped to
// [0, limit]. A clock that reads earlier than start counts as no time spent.
func Remaining(start time.Time, limit time.Duration, now time.Time) time.Duration {
	if limit <= 0 {
		return 0
	}
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= limit {
		return 0
	}
	return limit - elapsed
}
