package policy

import "time"

const DefaultStuckThreshold = 24 * time.Hour

// HoursPending is the time a step has waited, in hours. A zero start yields zero.
func HoursPending(startedAt, now time.Time) float64 {
	if startedAt.IsZero() || now.Before(startedAt) {
		return 0
	}
	return now.Sub(startedAt).Hours()
}

// IsStuck flags a pending step once it has waited longer than threshold.
// It is advisory only and never blocks a transition.
func IsStuck(startedAt, now time.Time, threshold time.Duration) bool {
	if startedAt.IsZero() {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	return now.Sub(startedAt) > threshold
}
