package gcal

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

func TestTokenUsable(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		conn model.CalendarConnection
		want bool
	}{
		{"fresh", model.CalendarConnection{AccessToken: "tok", TokenExpiresAt: now.Add(time.Hour)}, true},
		{"expired", model.CalendarConnection{AccessToken: "tok", TokenExpiresAt: now.Add(-time.Minute)}, false},
		{"within skew", model.CalendarConnection{AccessToken: "tok", TokenExpiresAt: now.Add(10 * time.Second)}, false},
		{"no token", model.CalendarConnection{TokenExpiresAt: now.Add(time.Hour)}, false},
		{"no expiry", model.CalendarConnection{AccessToken: "tok"}, false},
	}
	for _, tc := range cases {
		if got := tokenUsable(tc.conn, now); got != tc.want {
			t.Fatalf("%s: tokenUsable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFreeBusy_ParsesBusyPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeBusy" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Fatalf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"calendars": {
				"primary": {
					"busy": [
						{"start": "2026-02-02T10:00:00Z", "end": "2026-02-02T10:30:00Z"},
						{"start": "garbage", "end": "2026-02-02T12:00:00Z"},
						{"start": "2026-02-02T13:00:00Z", "end": "2026-02-02T12:00:00Z"}
					]
				}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient("id", "secret", nil, slog.New(slog.DiscardHandler))
	c.baseURL = srv.URL

	conn := model.CalendarConnection{
		Connected:      true,
		AccessToken:    "tok-123",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
	from := time.Date(2026, time.February, 2, 9, 0, 0, 0, time.UTC)
	to := from.Add(8 * time.Hour)

	periods, err := c.FreeBusy(context.Background(), "m-1", conn, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Malformed and inverted entries are dropped.
	if len(periods) != 1 {
		t.Fatalf("expected 1 busy period, got %d", len(periods))
	}
	if got := periods[0].Start.UTC().Format(time.RFC3339); got != "2026-02-02T10:00:00Z" {
		t.Fatalf("busy start = %s", got)
	}
}

func TestFreeBusy_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("id", "secret", nil, slog.New(slog.DiscardHandler))
	c.baseURL = srv.URL

	conn := model.CalendarConnection{
		AccessToken:    "tok",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
	if _, err := c.FreeBusy(context.Background(), "m-1", conn, time.Now(), time.Now().Add(time.Hour)); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}
