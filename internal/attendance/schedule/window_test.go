package schedule_test

import (
	"fmt"
	"testing"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWindow_DayShift(t *testing.T) {
	w, err := schedule.ValidateWindow("08:00", "17:00")
	require.NoError(t, err)

	assert.Equal(t, 480, w.StartMinutes)
	assert.Equal(t, 1020, w.EndMinutes)
	assert.Equal(t, 540, w.DurationMinutes)
	assert.False(t, w.Overnight)
}

func TestValidateWindow_OvernightWrap(t *testing.T) {
	// end before start rolls into the next day
	w, err := schedule.ValidateWindow("23:00", "01:00")
	require.NoError(t, err)

	assert.True(t, w.Overnight)
	assert.Equal(t, 1380, w.StartMinutes)
	assert.Equal(t, 1500, w.EndMinutes, "effective end is next-day 01:00")
	assert.Equal(t, 120, w.DurationMinutes)
}

func TestValidateWindow_EqualTimesWrapToFullDay(t *testing.T) {
	// end == start is treated as overnight, giving a 24h window
	w, err := schedule.ValidateWindow("09:00", "09:00")
	require.NoError(t, err)

	assert.True(t, w.Overnight)
	assert.Equal(t, 1440, w.DurationMinutes)
}

func TestValidateWindow_AllOvernightPairsHavePositiveDuration(t *testing.T) {
	// every end ≤ start pair must normalize to a positive duration
	for startH := 0; startH < 24; startH += 3 {
		for endH := 0; endH <= startH; endH += 3 {
			w, err := schedule.ValidateWindow(
				clockString(startH), clockString(endH))
			require.NoError(t, err)
			assert.Positive(t, w.DurationMinutes)
			assert.Equal(t, w.StartMinutes+w.DurationMinutes, w.EndMinutes)
		}
	}
}

func TestValidateWindow_RejectsMalformedInput(t *testing.T) {
	cases := [][2]string{
		{"", "17:00"},
		{"08:00", ""},
		{"25:00", "17:00"},
		{"08:61", "17:00"},
		{"eight", "17:00"},
		{"08:00", "banana"},
	}

	for _, c := range cases {
		_, err := schedule.ValidateWindow(c[0], c[1])
		require.Error(t, err, "start=%q end=%q", c[0], c[1])
		assert.True(t, errors.Is(err, errors.ErrInvalidTimeRange))
	}
}

func TestValidateWindow_TruncatesSeconds(t *testing.T) {
	w, err := schedule.ValidateWindow("08:00:00", "17:30:00")
	require.NoError(t, err)

	assert.Equal(t, "08:00", w.Start)
	assert.Equal(t, "17:30", w.End)
	assert.Equal(t, 570, w.DurationMinutes)
}

func clockString(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}
