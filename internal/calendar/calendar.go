// Package calendar expands date ranges into the business dates a batch
// processes and formats dates for output file names.
package calendar

import (
	"time"

	apperrors "mktsummary/internal/errors"
)

// InvalidRangeMessage is the detail reported when start falls after end.
const InvalidRangeMessage = "Invalid date range"

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Enumerate returns the inclusive, ascending sequence of calendar dates from
// start to end. Each bound keeps the calendar date it has in its own location
// and times of day are ignored. When skipWeekends is set, Saturdays and
// Sundays are omitted.
func Enumerate(start, end time.Time, skipWeekends bool) ([]time.Time, error) {
	start = Day(start)
	y, m, d := end.Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, start.Location())
	if start.After(end) {
		return nil, apperrors.NewInvalidRangeError(InvalidRangeMessage)
	}

	dates := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if skipWeekends && IsWeekend(d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}
