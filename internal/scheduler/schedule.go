package scheduler

import (
	"time"

	"hazardwatch/internal/config"
)

// NextRun returns the first occurrence of at in loc strictly after now. DST
// gaps and overlaps resolve the way time.Date does.
func NextRun(now time.Time, at config.TimeOfDay, loc *time.Location) time.Time {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), at.Hour, at.Minute, 0, 0, loc)
	if today.After(local) {
		return today
	}
	return today.AddDate(0, 0, 1)
}
