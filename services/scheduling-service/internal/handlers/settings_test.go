package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

// Validation failures return before any repository call, so a zero handler
// is enough to exercise the rejection paths.
func TestSettingsUpdateRejections(t *testing.T) {
	valid := `{"timezone":"America/New_York","slot_duration_minutes":30,"min_notice_hours":2,"max_days_in_advance":60,"buffer_minutes":10,"week":{"monday":{"enabled":true,"start":"09:00","end":"17:00"}}}`

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown timezone", strings.Replace(valid, "America/New_York", "Mars/Olympus", 1), http.StatusBadRequest},
		{"duration too short", strings.Replace(valid, `"slot_duration_minutes":30`, `"slot_duration_minutes":1`, 1), http.StatusBadRequest},
		{"horizon zero", strings.Replace(valid, `"max_days_in_advance":60`, `"max_days_in_advance":0`, 1), http.StatusBadRequest},
		{"negative buffer", strings.Replace(valid, `"buffer_minutes":10`, `"buffer_minutes":-5`, 1), http.StatusBadRequest},
		{"unknown weekday", strings.Replace(valid, `"monday"`, `"funday"`, 1), http.StatusBadRequest},
		{"end before start", strings.Replace(valid, `"end":"17:00"`, `"end":"08:00"`, 1), http.StatusBadRequest},
		{"garbage clock", strings.Replace(valid, `"start":"09:00"`, `"start":"9am"`, 1), http.StatusBadRequest},
	}

	h := &SettingsHandler{}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(tc.body))
		req.Header.Set("X-Merchant-Id", "m1")
		rec := httptest.NewRecorder()
		h.Update(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: got status %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestSettingsUpdateRequiresMerchantHeader(t *testing.T) {
	h := &SettingsHandler{}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.Update(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestWithinWorkingHours(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	settings := model.CalendarSettings{
		Timezone: "America/New_York",
		Week: availability.WeeklySchedule{
			time.Monday: {Enabled: true, Start: "09:00", End: "17:00"},
		},
	}

	h := &BookingHandler{}
	// 2026-03-02 is a Monday.
	day := func(hh, mm int) time.Time {
		return time.Date(2026, 3, 2, hh, mm, 0, 0, ny)
	}

	if !h.withinWorkingHours(settings, day(9, 0), day(9, 30)) {
		t.Fatal("expected slot at window start to pass")
	}
	if !h.withinWorkingHours(settings, day(16, 30), day(17, 0)) {
		t.Fatal("expected slot ending at window end to pass")
	}
	if h.withinWorkingHours(settings, day(8, 30), day(9, 0)) {
		t.Fatal("expected slot before window to fail")
	}
	if h.withinWorkingHours(settings, day(16, 45), day(17, 15)) {
		t.Fatal("expected slot crossing window end to fail")
	}
	if h.withinWorkingHours(settings, day(9, 0).AddDate(0, 0, 1), day(9, 30).AddDate(0, 0, 1)) {
		t.Fatal("expected disabled weekday to fail")
	}

	settings.Timezone = "Mars/Olympus"
	if h.withinWorkingHours(settings, day(9, 0), day(9, 30)) {
		t.Fatal("expected unknown timezone to fail")
	}
}
