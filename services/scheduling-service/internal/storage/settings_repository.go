package storage

import (
	"context"
	"time"

	"github.com/checkoutpanda/panda/libs/db"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

// SettingsRepository owns the per-merchant calendar settings aggregate:
// booking rules, timezone, weekly hours, and the Google Calendar connection.
type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get reads the full settings aggregate, creating a default row on first
// access (keeps onboarding smooth: a fresh merchant has a usable calendar).
func (r *SettingsRepository) Get(ctx context.Context, merchantID string) (model.CalendarSettings, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_settings (merchant_id)
		VALUES ($1)
		ON CONFLICT (merchant_id) DO NOTHING
	`, merchantID); err != nil {
		return model.CalendarSettings{}, err
	}

	s := model.CalendarSettings{MerchantID: merchantID}
	var tokenExpiresAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, slot_duration_minutes, min_notice_hours, max_days_in_advance, buffer_minutes,
			gcal_connected, gcal_calendar_id, gcal_refresh_token, gcal_access_token, gcal_token_expires_at
		FROM calendar_settings
		WHERE merchant_id = $1
	`, merchantID).Scan(
		&s.Timezone,
		&s.Rules.SlotDurationMinutes,
		&s.Rules.MinNoticeHours,
		&s.Rules.MaxDaysInAdvance,
		&s.Rules.BufferMinutes,
		&s.Google.Connected,
		&s.Google.CalendarID,
		&s.Google.RefreshToken,
		&s.Google.AccessToken,
		&tokenExpiresAt,
	)
	if err != nil {
		return model.CalendarSettings{}, err
	}
	if tokenExpiresAt != nil {
		s.Google.TokenExpiresAt = *tokenExpiresAt
	}

	week, err := r.weeklySchedule(ctx, merchantID)
	if err != nil {
		return model.CalendarSettings{}, err
	}
	s.Week = week
	return s, nil
}

func (r *SettingsRepository) weeklySchedule(ctx context.Context, merchantID string) (availability.WeeklySchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, enabled, start_clock, end_clock
		FROM calendar_weekly_hours
		WHERE merchant_id = $1
		ORDER BY weekday ASC
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	week := availability.WeeklySchedule{}
	for rows.Next() {
		var weekday int
		var ds availability.DaySchedule
		if err := rows.Scan(&weekday, &ds.Enabled, &ds.Start, &ds.End); err != nil {
			return nil, err
		}
		if weekday >= 0 && weekday <= 6 {
			week[time.Weekday(weekday)] = ds
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// Default schedule when nothing was ever configured: Mon-Fri 09:00-17:00.
	if len(week) == 0 {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			enabled := wd >= time.Monday && wd <= time.Friday
			week[wd] = availability.DaySchedule{Enabled: enabled, Start: "09:00", End: "17:00"}
		}
	}
	return week, nil
}

func (r *SettingsRepository) UpdateRules(ctx context.Context, merchantID, timezone string, rules model.BookingRules) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_settings
			(merchant_id, timezone, slot_duration_minutes, min_notice_hours, max_days_in_advance, buffer_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (merchant_id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			min_notice_hours = EXCLUDED.min_notice_hours,
			max_days_in_advance = EXCLUDED.max_days_in_advance,
			buffer_minutes = EXCLUDED.buffer_minutes,
			updated_at = now()
	`, merchantID, timezone, rules.SlotDurationMinutes, rules.MinNoticeHours, rules.MaxDaysInAdvance, rules.BufferMinutes)
	return err
}

func (r *SettingsRepository) UpsertWeekday(ctx context.Context, merchantID string, weekday time.Weekday, ds availability.DaySchedule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_weekly_hours (merchant_id, weekday, enabled, start_clock, end_clock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (merchant_id, weekday) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			start_clock = EXCLUDED.start_clock,
			end_clock = EXCLUDED.end_clock
	`, merchantID, int(weekday), ds.Enabled, ds.Start, ds.End)
	return err
}

// ConnectGoogle stores the calendar link produced by the OAuth consent flow.
func (r *SettingsRepository) ConnectGoogle(ctx context.Context, merchantID, calendarID, refreshToken string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_settings
		SET gcal_connected = true,
			gcal_calendar_id = $2,
			gcal_refresh_token = $3,
			gcal_access_token = '',
			gcal_token_expires_at = NULL,
			updated_at = now()
		WHERE merchant_id = $1
	`, merchantID, calendarID, refreshToken)
	return err
}

func (r *SettingsRepository) DisconnectGoogle(ctx context.Context, merchantID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_settings
		SET gcal_connected = false,
			gcal_calendar_id = '',
			gcal_refresh_token = '',
			gcal_access_token = '',
			gcal_token_expires_at = NULL,
			updated_at = now()
		WHERE merchant_id = $1
	`, merchantID)
	return err
}

// SaveGoogleTokens persists a refreshed access token (gcal.TokenSaver).
func (r *SettingsRepository) SaveGoogleTokens(ctx context.Context, merchantID, accessToken string, expiresAt time.Time, refreshToken string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_settings
		SET gcal_access_token = $2,
			gcal_token_expires_at = $3,
			gcal_refresh_token = $4,
			updated_at = now()
		WHERE merchant_id = $1
	`, merchantID, accessToken, expiresAt, refreshToken)
	return err
}
