package logic

import "time"

// Keepalive schedules the periodic liveness record.
//
// The deadline advances by exactly one period per firing, so a late check
// does not shift later firings.
type Keepalive struct {
	period   time.Duration
	deadline time.Time
}

// NewKeepalive creates a timer whose first deadline is start.
// A period <= 0 disables it.
func NewKeepalive(start time.Time, period time.Duration) *Keepalive {
	return &Keepalive{period: period, deadline: start}
}

// Due reports whether the keepalive fires at now, and if so reschedules it.
func (k *Keepalive) Due(now time.Time) bool {
	if k.period <= 0 {
		return false
	}
	if now.Before(k.deadline) {
		return false
	}
	k.deadline = k.deadline.Add(k.period)
	return true
}

// Deadline returns the next firing time.
func (k *Keepalive) Deadline() time.Time {
	return k.deadline
}

// Period returns the configured period.
func (k *Keepalive) Period() time.Duration {
	return k.period
}
