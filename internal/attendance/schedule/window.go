package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
)

const minutesPerDay = 1440

// Window is a validated shift time window. EndMinutes may exceed 1440 when
// the window wraps past midnight.
type Window struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	StartMinutes    int    `json:"start_minutes"`
	EndMinutes      int    `json:"end_minutes"`
	DurationMinutes int    `json:"duration_minutes"`
	Overnight       bool   `json:"overnight"`
}

// ValidateWindow validates and normalizes a custom start/end pair. Both are
// converted to day-minutes; an end at or before the start is treated as the
// next day (overnight wrap). A window without positive duration is rejected.
func ValidateWindow(start, end string) (Window, error) {
	startMins, err := parseClock(start)
	if err != nil {
		return Window{}, errors.InvalidTimeRange(start, end)
	}
	endMins, err := parseClock(end)
	if err != nil {
		return Window{}, errors.InvalidTimeRange(start, end)
	}

	overnight := false
	if endMins <= startMins {
		endMins += minutesPerDay
		overnight = true
	}

	duration := endMins - startMins
	if duration <= 0 {
		return Window{}, errors.InvalidTimeRange(start, end)
	}

	return Window{
		Start:           TruncateClock(start),
		End:             TruncateClock(end),
		StartMinutes:    startMins,
		EndMinutes:      endMins,
		DurationMinutes: duration,
		Overnight:       overnight,
	}, nil
}

// parseClock converts "HH:MM" or "HH:MM:SS" to day-minutes.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return hours*60 + mins, nil
}

// TruncateClock normalizes "HH:MM:SS" to "HH:MM"; anything shorter passes
// through untouched.
func TruncateClock(s string) string {
	if len(s) > 5 && strings.Count(s, ":") == 2 {
		return s[:5]
	}
	return s
}
