package availability

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
	}{
		{"09:30", 9, 30},
		{"17:00", 17, 0},
		{"9", 9, 0},
		{"", 0, 0},
		{"ab:cd", 0, 0},
		{":45", 0, 45},
		{" 08 : 15 ", 8, 15},
		{"10:xx", 10, 0},
	}
	for _, tc := range cases {
		h, m := ParseClock(tc.in)
		if h != tc.hour || m != tc.minute {
			t.Fatalf("ParseClock(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

func TestAnchorClock_DST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2026-01-05 is EST (UTC-5); 2026-06-15 is EDT (UTC-4). The same clock
	// string must anchor to different instants.
	winter := AnchorClock(2026, time.January, 5, "09:00", loc)
	summer := AnchorClock(2026, time.June, 15, "09:00", loc)

	if got := winter.UTC().Hour(); got != 14 {
		t.Fatalf("winter 09:00 EST should be 14:00 UTC, got %d", got)
	}
	if got := summer.UTC().Hour(); got != 13 {
		t.Fatalf("summer 09:00 EDT should be 13:00 UTC, got %d", got)
	}
}

func TestAnchorClock_MalformedFallsBackToMidnight(t *testing.T) {
	got := AnchorClock(2026, time.March, 2, "not-a-time", time.UTC)
	want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected midnight fallback, got %s", got.Format(time.RFC3339))
	}
}
