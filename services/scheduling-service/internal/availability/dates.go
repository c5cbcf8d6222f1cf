package availability

import "time"

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// EnabledDates lists the days of the given month whose weekday the weekly
// schedule enables, restricted to [today, today+horizonDays] in loc.
//
// This is a coarse filter for calendar UIs: it does not check busy intervals,
// so a returned date may still yield zero slots once bookings are considered.
// The per-slot check happens only when a specific date is selected.
func EnabledDates(year int, month time.Month, week WeeklySchedule, horizonDays int, loc *time.Location, now time.Time) []string {
	nowLocal := now.In(loc)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
	horizon := today.AddDate(0, 0, horizonDays)

	var dates []string
	for d := time.Date(year, month, 1, 0, 0, 0, 0, loc); d.Month() == month; d = d.AddDate(0, 0, 1) {
		if d.Before(today) || d.After(horizon) {
			continue
		}
		if week[d.Weekday()].Enabled {
			dates = append(dates, d.Format(DateFormat))
		}
	}
	return dates
}
