package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/storage"
)

type SettingsHandler struct {
	repo   *storage.SettingsRepository
	logger *slog.Logger
}

func NewSettingsHandler(repo *storage.SettingsRepository, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{repo: repo, logger: logger}
}

type daySchedulePayload struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type settingsPayload struct {
	Timezone            string                        `json:"timezone"`
	SlotDurationMinutes int                           `json:"slot_duration_minutes"`
	MinNoticeHours      int                           `json:"min_notice_hours"`
	MaxDaysInAdvance    int                           `json:"max_days_in_advance"`
	BufferMinutes       int                           `json:"buffer_minutes"`
	Week                map[string]daySchedulePayload `json:"week"`
	GoogleConnected     bool                          `json:"google_connected"`
	GoogleCalendarID    string                        `json:"google_calendar_id,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	settings, err := h.repo.Get(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settingsToPayload(settings))
}

// Update validates and persists booking rules plus the weekly schedule.
// Tokens are never writable here; the Google connection has its own routes.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.Timezone = strings.TrimSpace(req.Timezone)
	if _, err := time.LoadLocation(req.Timezone); err != nil || req.Timezone == "" {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}
	if req.SlotDurationMinutes < 5 || req.SlotDurationMinutes > 480 {
		http.Error(w, "slot_duration_minutes must be between 5 and 480", http.StatusBadRequest)
		return
	}
	if req.MinNoticeHours < 0 || req.MinNoticeHours > 24*14 {
		http.Error(w, "min_notice_hours out of range", http.StatusBadRequest)
		return
	}
	if req.MaxDaysInAdvance < 1 || req.MaxDaysInAdvance > 365 {
		http.Error(w, "max_days_in_advance must be between 1 and 365", http.StatusBadRequest)
		return
	}
	if req.BufferMinutes < 0 || req.BufferMinutes > 240 {
		http.Error(w, "buffer_minutes out of range", http.StatusBadRequest)
		return
	}

	type weekdayUpdate struct {
		weekday time.Weekday
		ds      availability.DaySchedule
	}
	var updates []weekdayUpdate
	for name, ds := range req.Week {
		weekday, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			http.Error(w, "unknown weekday: "+name, http.StatusBadRequest)
			return
		}
		if ds.Enabled {
			start, errStart := time.Parse("15:04", ds.Start)
			end, errEnd := time.Parse("15:04", ds.End)
			if errStart != nil || errEnd != nil || !end.After(start) {
				http.Error(w, "invalid hours for "+name, http.StatusBadRequest)
				return
			}
		}
		updates = append(updates, weekdayUpdate{weekday, availability.DaySchedule{Enabled: ds.Enabled, Start: ds.Start, End: ds.End}})
	}

	ctx := r.Context()
	rules := model.BookingRules{
		SlotDurationMinutes: req.SlotDurationMinutes,
		MinNoticeHours:      req.MinNoticeHours,
		MaxDaysInAdvance:    req.MaxDaysInAdvance,
		BufferMinutes:       req.BufferMinutes,
	}
	if err := h.repo.UpdateRules(ctx, merchantID, req.Timezone, rules); err != nil {
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	for _, u := range updates {
		if err := h.repo.UpsertWeekday(ctx, merchantID, u.weekday, u.ds); err != nil {
			http.Error(w, "failed to save weekly hours", http.StatusInternalServerError)
			return
		}
	}

	settings, err := h.repo.Get(ctx, merchantID)
	if err != nil {
		http.Error(w, "failed to reload settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settingsToPayload(settings))
}

type connectGoogleRequest struct {
	CalendarID   string `json:"calendar_id"`
	RefreshToken string `json:"refresh_token"`
}

// ConnectGoogle stores the calendar link after the merchant completed the
// OAuth consent flow on the dashboard.
func (h *SettingsHandler) ConnectGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	var req connectGoogleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}
	calendarID := strings.TrimSpace(req.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}

	if err := h.repo.ConnectGoogle(r.Context(), merchantID, calendarID, req.RefreshToken); err != nil {
		http.Error(w, "failed to connect calendar", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "calendar_id": calendarID})
}

func (h *SettingsHandler) DisconnectGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DisconnectGoogle(r.Context(), merchantID); err != nil {
		http.Error(w, "failed to disconnect calendar", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": false})
}

func settingsToPayload(s model.CalendarSettings) settingsPayload {
	week := make(map[string]daySchedulePayload, len(s.Week))
	for name, weekday := range weekdayNames {
		ds, ok := s.Week[weekday]
		if !ok {
			continue
		}
		week[name] = daySchedulePayload{Enabled: ds.Enabled, Start: ds.Start, End: ds.End}
	}
	return settingsPayload{
		Timezone:            s.Timezone,
		SlotDurationMinutes: s.Rules.SlotDurationMinutes,
		MinNoticeHours:      s.Rules.MinNoticeHours,
		MaxDaysInAdvance:    s.Rules.MaxDaysInAdvance,
		BufferMinutes:       s.Rules.BufferMinutes,
		Week:                week,
		GoogleConnected:     s.Google.Connected,
		GoogleCalendarID:    s.Google.CalendarID,
	}
}
