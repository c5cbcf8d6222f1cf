package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

// BookingStore supplies confirmed booking intervals from persistent storage.
type BookingStore interface {
	ConfirmedIntervals(ctx context.Context, merchantID string, from, to time.Time) ([]availability.Interval, error)
}

// FreeBusySource supplies busy periods from an external calendar. It may
// fail; the engine treats any error as "no external data".
type FreeBusySource interface {
	FreeBusy(ctx context.Context, merchantID string, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error)
}

// Engine computes bookable slots and dates. It is stateless: every call
// re-derives busy intervals from the store and the external calendar, so
// identical inputs yield identical output.
type Engine struct {
	store    BookingStore
	freeBusy FreeBusySource
	logger   *slog.Logger
}

func NewEngine(store BookingStore, freeBusy FreeBusySource, logger *slog.Logger) *Engine {
	return &Engine{store: store, freeBusy: freeBusy, logger: logger}
}

// SlotsForDate returns the bookable slots for a calendar date ("YYYY-MM-DD")
// under the given settings. Disabled weekdays, dates beyond the advance
// horizon, and malformed schedule config all yield an empty result rather
// than an error; only a booking-store failure is surfaced.
func (e *Engine) SlotsForDate(ctx context.Context, settings model.CalendarSettings, date string, now time.Time) ([]availability.Interval, error) {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		e.logger.Warn("invalid calendar timezone; no slots computed", "merchant_id", settings.MerchantID, "timezone", settings.Timezone)
		return nil, nil
	}

	day, err := time.ParseInLocation(availability.DateFormat, date, loc)
	if err != nil {
		return nil, nil
	}

	nowLocal := now.In(loc)
	horizon := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, settings.Rules.MaxDaysInAdvance)
	if day.After(horizon) {
		return nil, nil
	}

	// The weekday is the merchant's, not the caller's.
	ds := settings.Week[day.Weekday()]
	if !ds.Enabled {
		return nil, nil
	}

	windowStart := availability.AnchorClock(day.Year(), day.Month(), day.Day(), ds.Start, loc)
	windowEnd := availability.AnchorClock(day.Year(), day.Month(), day.Day(), ds.End, loc)
	if !windowEnd.After(windowStart) {
		return nil, nil
	}

	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)
	busy, err := e.collectBusy(ctx, settings, dayStart, dayEnd, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	dur := settings.SlotDuration()
	return availability.Slots(windowStart, windowEnd, dur, dur, busy, now.Add(settings.MinNotice())), nil
}

// DatesForMonth returns the days of a month whose weekday is enabled and
// which fall within the advance horizon. Deliberately a superset filter:
// it never consults busy intervals.
func (e *Engine) DatesForMonth(settings model.CalendarSettings, year int, month time.Month, now time.Time) []string {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		e.logger.Warn("invalid calendar timezone; no dates computed", "merchant_id", settings.MerchantID, "timezone", settings.Timezone)
		return nil
	}
	return availability.EnabledDates(year, month, settings.Week, settings.Rules.MaxDaysInAdvance, loc, now)
}

// SlotStillFree re-checks a candidate interval against the same busy sources
// at booking-commit time, closing (but not eliminating) the gap between
// "slot shown" and "slot reserved". The final word belongs to the bookings
// table's overlap exclusion constraint.
func (e *Engine) SlotStillFree(ctx context.Context, settings model.CalendarSettings, start, end time.Time) (bool, error) {
	if !end.After(start) {
		return false, nil
	}

	// Widen the store query by the buffer so bookings whose buffered span
	// reaches into the candidate are fetched.
	buf := settings.Buffer()
	busy, err := e.collectBusy(ctx, settings, start.Add(-buf), end.Add(buf), start, end)
	if err != nil {
		return false, err
	}
	return !availability.Overlaps(start, end, busy), nil
}

// collectBusy gathers confirmed bookings intersecting [queryFrom, queryTo),
// widened by the buffer on both ends, plus the external calendar's busy
// periods for [fbFrom, fbTo] when connected. External-calendar failures are
// logged and swallowed: a third-party outage must never block availability
// computed from our own data.
func (e *Engine) collectBusy(ctx context.Context, settings model.CalendarSettings, queryFrom, queryTo, fbFrom, fbTo time.Time) ([]availability.Interval, error) {
	booked, err := e.store.ConfirmedIntervals(ctx, settings.MerchantID, queryFrom, queryTo)
	if err != nil {
		return nil, err
	}

	buf := settings.Buffer()
	busy := make([]availability.Interval, 0, len(booked))
	for _, b := range booked {
		busy = append(busy, availability.Interval{Start: b.Start.Add(-buf), End: b.End.Add(buf)})
	}

	if settings.Google.Connected && e.freeBusy != nil {
		periods, err := e.freeBusy.FreeBusy(ctx, settings.MerchantID, settings.Google, fbFrom, fbTo)
		if err != nil {
			e.logger.Warn("external calendar free/busy fetch failed; continuing with internal busy periods",
				"merchant_id", settings.MerchantID, "err", err)
		} else {
			// External periods are taken as-is; the buffer applies only to
			// our own bookings.
			busy = append(busy, periods...)
		}
	}
	return busy, nil
}
