package availability

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, time.February, 2, h, m, 0, 0, time.UTC) // a Monday
}

func TestSlots_FullOpenDay(t *testing.T) {
	slots := Slots(at(9, 0), at(17, 0), 30*time.Minute, 30*time.Minute, nil, time.Time{})
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) || !slots[0].End.Equal(at(9, 30)) {
		t.Fatalf("first slot = %v, want 09:00-09:30", slots[0])
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(at(16, 30)) || !last.End.Equal(at(17, 0)) {
		t.Fatalf("last slot = %v, want 16:30-17:00", last)
	}
}

func TestSlots_BufferedBookingBlocksNeighbors(t *testing.T) {
	// A confirmed 11:00-11:30 booking widened by a 10 minute buffer blocks
	// everything overlapping [10:50, 11:40).
	busy := []Interval{{Start: at(10, 50), End: at(11, 40)}}
	slots := Slots(at(9, 0), at(17, 0), 30*time.Minute, 30*time.Minute, busy, time.Time{})
	if len(slots) != 13 {
		t.Fatalf("expected 13 slots, got %d", len(slots))
	}
	for _, s := range slots {
		switch {
		case s.Start.Equal(at(10, 30)), s.Start.Equal(at(11, 0)), s.Start.Equal(at(11, 30)):
			t.Fatalf("slot starting %s should be blocked", s.Start.Format("15:04"))
		}
	}
	found := false
	for _, s := range slots {
		if s.Start.Equal(at(12, 0)) {
			found = true
		}
	}
	if !found {
		t.Fatalf("slot 12:00-12:30 should be available")
	}
}

func TestSlots_FixedGridNoPacking(t *testing.T) {
	// Busy interval only partially covers the 09:00 slot; the next candidate
	// is still 09:30, never 09:10.
	busy := []Interval{{Start: at(9, 0), End: at(9, 10)}}
	slots := Slots(at(9, 0), at(10, 0), 30*time.Minute, 30*time.Minute, busy, time.Time{})
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 30)) {
		t.Fatalf("expected 09:30 slot, got %s", slots[0].Start.Format("15:04"))
	}
}

func TestSlots_TrailingPartialDropped(t *testing.T) {
	slots := Slots(at(9, 0), at(10, 15), 30*time.Minute, 30*time.Minute, nil, time.Time{})
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	last := slots[len(slots)-1]
	if last.End.After(at(10, 15)) {
		t.Fatalf("slot end %s exceeds window end", last.End.Format("15:04"))
	}
}

func TestSlots_MinimumNoticeCutoff(t *testing.T) {
	notBefore := at(13, 10)
	slots := Slots(at(9, 0), at(17, 0), 30*time.Minute, 30*time.Minute, nil, notBefore)
	for _, s := range slots {
		if s.Start.Before(notBefore) {
			t.Fatalf("slot starting %s is before the notice cutoff", s.Start.Format("15:04"))
		}
	}
	if len(slots) != 7 {
		// 13:30 through 16:30 inclusive.
		t.Fatalf("expected 7 slots, got %d", len(slots))
	}
}

func TestSlots_DegenerateInputs(t *testing.T) {
	if got := Slots(at(9, 0), at(9, 0), 30*time.Minute, 30*time.Minute, nil, time.Time{}); got != nil {
		t.Fatalf("empty window should yield nil, got %v", got)
	}
	if got := Slots(at(9, 0), at(17, 0), 0, 30*time.Minute, nil, time.Time{}); got != nil {
		t.Fatalf("zero duration should yield nil, got %v", got)
	}
	if got := Slots(at(9, 0), at(9, 20), 30*time.Minute, 30*time.Minute, nil, time.Time{}); got != nil {
		t.Fatalf("window shorter than one slot should yield nil, got %v", got)
	}
}

func TestOverlaps_HalfOpenAdjacency(t *testing.T) {
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	if Overlaps(at(10, 30), at(11, 0), busy) {
		t.Fatalf("slot starting exactly at busy end must not overlap")
	}
	if Overlaps(at(9, 30), at(10, 0), busy) {
		t.Fatalf("slot ending exactly at busy start must not overlap")
	}
	if !Overlaps(at(9, 45), at(10, 15), busy) {
		t.Fatalf("straddling slot must overlap")
	}
}
