package availability

import "time"

// Interval is a half-open absolute time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// DaySchedule is one weekday's working window in the merchant's wall clock.
type DaySchedule struct {
	Enabled bool
	Start   string // "HH:mm"
	End     string // "HH:mm"
}

// WeeklySchedule maps each weekday to its working window.
type WeeklySchedule map[time.Weekday]DaySchedule

// Slots returns the bookable slots within [windowStart, windowEnd) where a
// slot of length duration starts at or after notBefore and does not overlap
// any busy interval.
//
// Slot starts form a fixed grid anchored at windowStart and advancing by
// step; a skipped candidate never shifts later ones. A trailing slot that
// would cross windowEnd is dropped. All times are expected to be in the same
// location.
func Slots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, notBefore time.Time) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []Interval
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(notBefore) {
			continue
		}
		end := t.Add(duration)
		if !Overlaps(t, end, busy) {
			slots = append(slots, Interval{Start: t, End: end})
		}
	}
	return slots
}

// Overlaps reports whether [start, end) intersects any busy interval.
func Overlaps(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
