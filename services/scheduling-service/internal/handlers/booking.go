package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/outbox"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/schedule"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/storage"
)

type BookingHandler struct {
	repo       *storage.BookingRepository
	settings   *storage.SettingsRepository
	engine     *schedule.Engine
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	now        func() time.Time
}

func NewBookingHandler(repo *storage.BookingRepository, settings *storage.SettingsRepository, engine *schedule.Engine, outboxRepo *outbox.Repository, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		settings:   settings,
		engine:     engine,
		outboxRepo: outboxRepo,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type createBookingRequest struct {
	MerchantID    string `json:"merchant_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	StartTime     string `json:"start_time"`
}

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

type listBookingItem struct {
	BookingID     string `json:"booking_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Dates serves the month view of the public booking page: the calendar
// dates a customer may click through to the slot list. A superset filter
// on purpose; fully booked days are only discovered on the slot query.
func (h *BookingHandler) Dates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.URL.Query().Get("merchant_id"))
	monthStr := strings.TrimSpace(r.URL.Query().Get("month"))
	if merchantID == "" || monthStr == "" {
		http.Error(w, "merchant_id and month are required", http.StatusBadRequest)
		return
	}
	month, err := time.Parse("2006-01", monthStr)
	if err != nil {
		http.Error(w, "invalid month (want YYYY-MM)", http.StatusBadRequest)
		return
	}

	settings, err := h.settings.Get(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "failed to load calendar settings", http.StatusInternalServerError)
		return
	}

	dates := h.engine.DatesForMonth(settings, month.Year(), month.Month(), h.now())
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// Slots serves the bookable slots for one date.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.URL.Query().Get("merchant_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if merchantID == "" || dateStr == "" {
		http.Error(w, "merchant_id and date are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(availability.DateFormat, dateStr); err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	settings, err := h.settings.Get(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "failed to load calendar settings", http.StatusInternalServerError)
		return
	}

	slots, err := h.engine.SlotsForDate(r.Context(), settings, dateStr, h.now())
	if err != nil {
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.MerchantID = strings.TrimSpace(req.MerchantID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.MerchantID == "" || req.CustomerName == "" || req.CustomerEmail == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	settings, err := h.settings.Get(ctx, req.MerchantID)
	if err != nil {
		http.Error(w, "failed to load calendar settings", http.StatusInternalServerError)
		return
	}

	// The slot length is the merchant's, never the caller's.
	endTime := startTime.Add(settings.SlotDuration())

	now := h.now()
	if startTime.Before(now.Add(settings.MinNotice())) {
		http.Error(w, "booking is inside the minimum notice period", http.StatusUnprocessableEntity)
		return
	}
	if !h.withinWorkingHours(settings, startTime, endTime) {
		http.Error(w, "requested time is outside working hours", http.StatusUnprocessableEntity)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, req.MerchantID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	// Recheck the slot against current busy intervals. This narrows the race
	// between "slot shown" and "slot reserved"; the bookings table's overlap
	// exclusion constraint has the final word.
	free, err := h.engine.SlotStillFree(ctx, settings, startTime, endTime)
	if err != nil {
		http.Error(w, "failed to verify slot", http.StatusInternalServerError)
		return
	}
	if !free {
		http.Error(w, "slot is no longer available", http.StatusConflict)
		return
	}

	if err := h.enforceMonthlyBookingLimit(ctx, tx, req.MerchantID, startTime); err != nil {
		if errors.Is(err, errPaymentRequired) {
			if idempotencyKey != "" {
				if h.finalizeIdempotencyError(ctx, tx, req.MerchantID, idempotencyKey, http.StatusPaymentRequired, err.Error()) {
					_ = tx.Commit(ctx)
					return
				}
			}
			http.Error(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		http.Error(w, "entitlements check failed", http.StatusInternalServerError)
		return
	}

	booking := &model.Booking{
		MerchantID:    req.MerchantID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		StartTime:     startTime,
		EndTime:       endTime,
		Status:        "confirmed",
	}
	id, err := h.repo.Create(ctx, tx, booking)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "slot is no longer available", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"booking_id":     id,
		"merchant_id":    req.MerchantID,
		"customer_name":  req.CustomerName,
		"customer_email": req.CustomerEmail,
		"start_time":     startTime.UTC().Format(time.RFC3339),
		"end_time":       endTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "scheduling.booking.confirmed.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{
		BookingID: id,
		StartTime: startTime.UTC().Format(time.RFC3339),
		EndTime:   endTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, req.MerchantID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

var errPaymentRequired = errors.New("monthly booking limit reached (upgrade required)")

func (h *BookingHandler) enforceMonthlyBookingLimit(ctx context.Context, tx pgx.Tx, merchantID string, start time.Time) error {
	const defaultFreeMax = 20

	ent, ok, err := h.repo.GetMerchantEntitlements(ctx, tx, merchantID)
	if err != nil {
		return err
	}
	max := defaultFreeMax
	if ok && ent.MaxMonthlyBookings > 0 {
		max = ent.MaxMonthlyBookings
	}
	if max <= 0 {
		return nil
	}

	startUTC := start.UTC()
	monthStart := time.Date(startUTC.Year(), startUTC.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	cnt, err := h.repo.CountConfirmedInRange(ctx, tx, merchantID, monthStart, monthEnd)
	if err != nil {
		return err
	}
	if cnt >= max {
		return errPaymentRequired
	}
	return nil
}

// withinWorkingHours rejects requests for times the slot generator would
// never have offered: disabled weekdays and spans outside the day's window.
func (h *BookingHandler) withinWorkingHours(settings model.CalendarSettings, start, end time.Time) bool {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return false
	}
	local := start.In(loc)
	ds := settings.Week[local.Weekday()]
	if !ds.Enabled {
		return false
	}
	windowStart := availability.AnchorClock(local.Year(), local.Month(), local.Day(), ds.Start, loc)
	windowEnd := availability.AnchorClock(local.Year(), local.Month(), local.Day(), ds.End, loc)
	return !start.Before(windowStart) && !end.After(windowEnd)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := h.repo.GetBookingForUpdate(ctx, tx, merchantID, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	if booking.Status == "cancelled" && booking.CancelledAt != nil {
		h.writeCancelResponse(w, booking.ID, booking.CancelledAt.UTC())
		return
	}
	if booking.Status != "confirmed" {
		http.Error(w, "booking cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.CancelBooking(ctx, tx, merchantID, booking.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	cancelPayload, err := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"merchant_id":  booking.MerchantID,
		"start_time":   booking.StartTime.UTC().Format(time.RFC3339),
		"end_time":     booking.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
		"reason":       req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     "scheduling.booking.cancelled.v1",
		Payload:       cancelPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.writeCancelResponse(w, booking.ID, cancelledAt.UTC())
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.repo.ListByMerchant(r.Context(), merchantID, limit)
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]listBookingItem, 0, len(bookings))
	for _, b := range bookings {
		item := listBookingItem{
			BookingID:     b.ID,
			CustomerName:  b.CustomerName,
			CustomerEmail: b.CustomerEmail,
			StartTime:     b.StartTime.UTC().Format(time.RFC3339),
			EndTime:       b.EndTime.UTC().Format(time.RFC3339),
			Status:        b.Status,
			CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if b.CancelledAt != nil {
			item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeCancelResponse(w http.ResponseWriter, bookingID string, cancelledAt time.Time) {
	writeJSON(w, http.StatusOK, cancelBookingResponse{
		BookingID:   bookingID,
		Status:      "cancelled",
		CancelledAt: cancelledAt.Format(time.RFC3339),
	})
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, merchantID, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, merchantID, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
