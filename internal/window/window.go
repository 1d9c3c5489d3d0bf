package window

import "time"

// DefaultDays is the trailing window length served when none is configured.
const DefaultDays = 30

// DayStart normalises t to midnight UTC of its calendar day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayTimestamps returns the day-start timestamps of the trailing n-day window
// ending at now, oldest first. The newest entry is the day before now's day:
// the window covers [now − n days, now) and never includes the current,
// still-accumulating day.
func DayTimestamps(now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}

	days := make([]time.Time, 0, n)
	today := DayStart(now)
	for offset := -n; offset < 0; offset++ {
		days = append(days, today.AddDate(0, 0, offset))
	}
	return days
}
