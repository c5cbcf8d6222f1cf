package availability

import (
	"strconv"
	"strings"
	"time"
)

// ParseClock parses a wall-clock "HH:mm" string into hour and minute.
// Missing or unparseable components read as zero: schedule misconfiguration
// must never abort a slot computation, so there is no error return. Callers
// that accept schedule input validate the format at the boundary instead.
func ParseClock(s string) (hour, minute int) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) > 0 {
		if h, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			hour = h
		}
	}
	if len(parts) > 1 {
		if m, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			minute = m
		}
	}
	return hour, minute
}

// AnchorClock resolves a wall-clock time on a calendar day to the absolute
// instant in loc. The zone database handles DST: the same clock string can
// map to different UTC offsets on different dates. Out-of-range components
// normalize forward (time.Date semantics).
func AnchorClock(year int, month time.Month, day int, clock string, loc *time.Location) time.Time {
	h, m := ParseClock(clock)
	return time.Date(year, month, day, h, m, 0, 0, loc)
}
