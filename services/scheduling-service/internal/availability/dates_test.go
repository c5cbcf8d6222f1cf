package availability

import (
	"testing"
	"time"
)

func weekdaysOnly() WeeklySchedule {
	week := WeeklySchedule{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		enabled := wd >= time.Monday && wd <= time.Friday
		week[wd] = DaySchedule{Enabled: enabled, Start: "09:00", End: "17:00"}
	}
	return week
}

func TestEnabledDates_WeekdayFilterAndHorizon(t *testing.T) {
	// 2026-01-10 is a Saturday; with a 14 day horizon the reachable window is
	// Jan 10 through Jan 24.
	now := time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)
	dates := EnabledDates(2026, time.January, weekdaysOnly(), 14, time.UTC, now)

	if len(dates) != 10 {
		t.Fatalf("expected 10 dates, got %d: %v", len(dates), dates)
	}
	if dates[0] != "2026-01-12" {
		t.Fatalf("first date = %s, want 2026-01-12", dates[0])
	}
	if dates[len(dates)-1] != "2026-01-23" {
		t.Fatalf("last date = %s, want 2026-01-23", dates[len(dates)-1])
	}
}

func TestEnabledDates_AllDisabled(t *testing.T) {
	week := WeeklySchedule{}
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	if dates := EnabledDates(2026, time.January, week, 30, time.UTC, now); len(dates) != 0 {
		t.Fatalf("expected no dates, got %v", dates)
	}
}

func TestEnabledDates_PastMonthEmpty(t *testing.T) {
	now := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if dates := EnabledDates(2026, time.January, weekdaysOnly(), 60, time.UTC, now); len(dates) != 0 {
		t.Fatalf("expected no dates for a fully past month, got %v", dates)
	}
}

func TestEnabledDates_OwnerZoneDecidesWeekday(t *testing.T) {
	// 23:30 UTC on a Sunday is already Monday in Auckland; the merchant zone,
	// not the caller's, decides which weekday a date falls on.
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	week := WeeklySchedule{time.Monday: DaySchedule{Enabled: true, Start: "09:00", End: "17:00"}}
	now := time.Date(2026, time.February, 1, 23, 30, 0, 0, time.UTC) // Feb 2 in Auckland, a Monday

	dates := EnabledDates(2026, time.February, week, 0, loc, now)
	if len(dates) != 1 || dates[0] != "2026-02-02" {
		t.Fatalf("expected [2026-02-02], got %v", dates)
	}
}
