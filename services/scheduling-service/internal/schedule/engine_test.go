package schedule

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

type fakeStore struct {
	intervals []availability.Interval
	err       error
	calls     int
}

func (f *fakeStore) ConfirmedIntervals(_ context.Context, _ string, _, _ time.Time) ([]availability.Interval, error) {
	f.calls++
	return f.intervals, f.err
}

type fakeFreeBusy struct {
	periods []availability.Interval
	err     error
	calls   int
}

func (f *fakeFreeBusy) FreeBusy(_ context.Context, _ string, _ model.CalendarConnection, _, _ time.Time) ([]availability.Interval, error) {
	f.calls++
	return f.periods, f.err
}

func testSettings() model.CalendarSettings {
	week := availability.WeeklySchedule{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		enabled := wd >= time.Monday && wd <= time.Friday
		week[wd] = availability.DaySchedule{Enabled: enabled, Start: "09:00", End: "17:00"}
	}
	return model.CalendarSettings{
		MerchantID: "m-1",
		Timezone:   "UTC",
		Week:       week,
		Rules: model.BookingRules{
			SlotDurationMinutes: 30,
			MinNoticeHours:      0,
			MaxDaysInAdvance:    30,
			BufferMinutes:       0,
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mondayAt(h, m int) time.Time {
	return time.Date(2026, time.February, 2, h, m, 0, 0, time.UTC)
}

var testNow = time.Date(2026, time.January, 30, 12, 0, 0, 0, time.UTC)

func TestSlotsForDate_OpenMonday(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil, discard())
	slots, err := e.SlotsForDate(context.Background(), testSettings(), "2026-02-02", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(mondayAt(9, 0)) {
		t.Fatalf("first slot = %s, want 09:00", slots[0].Start.Format(time.RFC3339))
	}
}

func TestSlotsForDate_DisabledDay(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil, discard())
	slots, err := e.SlotsForDate(context.Background(), testSettings(), "2026-02-01", testNow) // a Sunday
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a disabled day, got %d", len(slots))
	}
}

func TestSlotsForDate_BeyondHorizon(t *testing.T) {
	settings := testSettings()
	settings.Rules.MaxDaysInAdvance = 2
	e := NewEngine(&fakeStore{}, nil, discard())
	slots, err := e.SlotsForDate(context.Background(), settings, "2026-02-09", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots beyond the horizon, got %d", len(slots))
	}
}

func TestSlotsForDate_MinimumNotice(t *testing.T) {
	settings := testSettings()
	settings.Rules.MinNoticeHours = 24
	now := time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC)
	e := NewEngine(&fakeStore{}, nil, discard())

	slots, err := e.SlotsForDate(context.Background(), settings, "2026-02-02", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cutoff := now.Add(24 * time.Hour)
	if len(slots) == 0 {
		t.Fatalf("expected slots after the notice cutoff")
	}
	for _, s := range slots {
		if s.Start.Before(cutoff) {
			t.Fatalf("slot starting %s violates the 24h notice", s.Start.Format(time.RFC3339))
		}
	}
	if !slots[0].Start.Equal(cutoff) {
		t.Fatalf("first slot = %s, want %s", slots[0].Start.Format(time.RFC3339), cutoff.Format(time.RFC3339))
	}
}

func TestSlotsForDate_BufferCorrectness(t *testing.T) {
	// Booking [10:00,10:30) with a 15 minute buffer blocks [09:45,10:45) and
	// nothing else: a 15 minute slot starting exactly at 10:45 stays free.
	settings := testSettings()
	settings.Rules.SlotDurationMinutes = 15
	settings.Rules.BufferMinutes = 15
	store := &fakeStore{intervals: []availability.Interval{{Start: mondayAt(10, 0), End: mondayAt(10, 30)}}}
	e := NewEngine(store, nil, discard())

	slots, err := e.SlotsForDate(context.Background(), settings, "2026-02-02", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var has1045, has0945 bool
	for _, s := range slots {
		if s.Start.Equal(mondayAt(10, 45)) {
			has1045 = true
		}
		if s.Start.Equal(mondayAt(9, 45)) {
			has0945 = true
		}
	}
	if !has1045 {
		t.Fatalf("slot starting exactly at buffer end (10:45) must be free")
	}
	if has0945 {
		t.Fatalf("slot starting 09:45 overlaps the buffered interval and must be blocked")
	}
}

func TestSlotsForDate_ExternalCalendarFailsOpen(t *testing.T) {
	settings := testSettings()
	settings.Google = model.CalendarConnection{Connected: true, CalendarID: "primary"}
	fb := &fakeFreeBusy{err: errors.New("network down")}
	e := NewEngine(&fakeStore{}, fb, discard())

	slots, err := e.SlotsForDate(context.Background(), settings, "2026-02-02", testNow)
	if err != nil {
		t.Fatalf("external calendar failure must not surface: %v", err)
	}
	if fb.calls != 1 {
		t.Fatalf("expected one free/busy attempt, got %d", fb.calls)
	}
	if len(slots) != 16 {
		t.Fatalf("expected internal-only availability (16 slots), got %d", len(slots))
	}
}

func TestSlotsForDate_ExternalBusyUnbuffered(t *testing.T) {
	// Buffer applies to our bookings only; an external busy period is taken
	// as-is, so the 11:30 slot adjacent to it stays free.
	settings := testSettings()
	settings.Rules.BufferMinutes = 30
	settings.Google = model.CalendarConnection{Connected: true, CalendarID: "primary"}
	fb := &fakeFreeBusy{periods: []availability.Interval{{Start: mondayAt(12, 0), End: mondayAt(12, 30)}}}
	e := NewEngine(&fakeStore{}, fb, discard())

	slots, err := e.SlotsForDate(context.Background(), settings, "2026-02-02", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var has1130, has1200 bool
	for _, s := range slots {
		if s.Start.Equal(mondayAt(11, 30)) {
			has1130 = true
		}
		if s.Start.Equal(mondayAt(12, 0)) {
			has1200 = true
		}
	}
	if !has1130 {
		t.Fatalf("slot adjacent to an external busy period must stay free")
	}
	if has1200 {
		t.Fatalf("slot inside an external busy period must be blocked")
	}
}

func TestSlotsForDate_StoreErrorSurfaces(t *testing.T) {
	e := NewEngine(&fakeStore{err: errors.New("db down")}, nil, discard())
	if _, err := e.SlotsForDate(context.Background(), testSettings(), "2026-02-02", testNow); err == nil {
		t.Fatalf("booking store failure must surface")
	}
}

func TestSlotsForDate_InvalidTimezoneYieldsEmpty(t *testing.T) {
	settings := testSettings()
	settings.Timezone = "Not/AZone"
	e := NewEngine(&fakeStore{}, nil, discard())
	slots, err := e.SlotsForDate(context.Background(), settings, "2026-02-02", testNow)
	if err != nil || len(slots) != 0 {
		t.Fatalf("invalid timezone should yield empty result, got %d slots err=%v", len(slots), err)
	}
}

func TestSlotsForDate_Idempotent(t *testing.T) {
	store := &fakeStore{intervals: []availability.Interval{{Start: mondayAt(13, 0), End: mondayAt(14, 0)}}}
	e := NewEngine(store, nil, discard())

	first, err := e.SlotsForDate(context.Background(), testSettings(), "2026-02-02", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.SlotsForDate(context.Background(), testSettings(), "2026-02-02", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("same inputs produced different slot counts: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("slot %d differs between identical computations", i)
		}
	}
}

func TestDatesForMonth_IgnoresBookings(t *testing.T) {
	// The month scan is a coarse weekday filter; a store failure cannot
	// affect it because it never consults busy intervals.
	store := &fakeStore{err: errors.New("db down")}
	e := NewEngine(store, nil, discard())

	dates := e.DatesForMonth(testSettings(), 2026, time.February, testNow)
	if len(dates) == 0 {
		t.Fatalf("expected enabled dates")
	}
	if store.calls != 0 {
		t.Fatalf("month scan must not query the booking store")
	}
	loc := time.UTC
	for _, d := range dates {
		day, err := time.ParseInLocation(availability.DateFormat, d, loc)
		if err != nil {
			t.Fatalf("bad date %q: %v", d, err)
		}
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("disabled weekday %s returned: %s", wd, d)
		}
	}
}

func TestSlotStillFree(t *testing.T) {
	booking := availability.Interval{Start: mondayAt(10, 0), End: mondayAt(10, 30)}
	settings := testSettings()
	settings.Rules.BufferMinutes = 15

	e := NewEngine(&fakeStore{intervals: []availability.Interval{booking}}, nil, discard())

	free, err := e.SlotStillFree(context.Background(), settings, mondayAt(10, 30), mondayAt(11, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free {
		t.Fatalf("interval inside the buffered span must not be free")
	}

	free, err = e.SlotStillFree(context.Background(), settings, mondayAt(10, 45), mondayAt(11, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !free {
		t.Fatalf("interval starting at buffer end must be free")
	}

	if free, _ := e.SlotStillFree(context.Background(), settings, mondayAt(11, 0), mondayAt(11, 0)); free {
		t.Fatalf("degenerate interval must not be free")
	}
}

func TestSlotStillFree_ExternalFailureFailsOpen(t *testing.T) {
	settings := testSettings()
	settings.Google = model.CalendarConnection{Connected: true, CalendarID: "primary"}
	e := NewEngine(&fakeStore{}, &fakeFreeBusy{err: errors.New("timeout")}, discard())

	free, err := e.SlotStillFree(context.Background(), settings, mondayAt(9, 0), mondayAt(9, 30))
	if err != nil {
		t.Fatalf("external failure must not surface: %v", err)
	}
	if !free {
		t.Fatalf("guard should fail open to internal-only busy data")
	}
}
