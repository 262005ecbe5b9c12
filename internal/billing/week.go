package billing

import "time"

// WeekEnding returns the most recent Friday at midnight in loc, counting
// today when today is Friday. Every run anchors to this date so retries on
// Saturday or Sunday land on the same billing week.
func WeekEnding(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) - int(time.Friday) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
