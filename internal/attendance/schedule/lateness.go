package schedule

import (
	"fmt"
	"time"
)

// DefaultToleranceMinutes is the grace period after the scheduled start
// before lateness accrues.
const DefaultToleranceMinutes = 15

// MinutesLate computes whole minutes late relative to the scheduled start
// with a tolerance window. Returns nil when either input is missing, 0 when
// the clock-in falls inside the allowance, and the floored minute count past
// the allowance otherwise.
func MinutesLate(scheduledStart, clockIn *time.Time, toleranceMinutes int) *int {
	if scheduledStart == nil || clockIn == nil {
		return nil
	}

	allowed := scheduledStart.Add(time.Duration(toleranceMinutes) * time.Minute)
	mins := 0
	if clockIn.After(allowed) {
		mins = int(clockIn.Sub(allowed) / time.Minute)
	}
	return &mins
}

// FormatLateness renders a lateness in minutes for display.
func FormatLateness(minutes int) string {
	switch {
	case minutes <= 0:
		return "on time"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	default:
		return fmt.Sprintf("%d hours %d minutes", minutes/60, minutes%60)
	}
}

// OnTimeForDisplay reports whether a shift should carry the on-time
// annotation. A raw lateness inside the tolerance still displays as on time;
// the raw value is kept for duration formatting only.
func OnTimeForDisplay(minutesLate *int, toleranceMinutes int) bool {
	if minutesLate == nil {
		return true
	}
	return *minutesLate <= toleranceMinutes
}
