package model

import (
	"time"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
)

// BookingRules govern slot generation granularity and safety margins.
// All values are positive integers; defaults are applied on first read.
type BookingRules struct {
	SlotDurationMinutes int
	MinNoticeHours      int
	MaxDaysInAdvance    int
	BufferMinutes       int
}

// CalendarConnection is the merchant's external (Google) calendar link.
// RefreshToken is opaque to everything except the calendar client.
type CalendarConnection struct {
	Connected      bool
	CalendarID     string
	RefreshToken   string
	AccessToken    string
	TokenExpiresAt time.Time
}

// CalendarSettings is the per-merchant aggregate every availability
// computation takes as an explicit parameter. There is no ambient settings
// read anywhere in the core.
type CalendarSettings struct {
	MerchantID string
	Timezone   string
	Week       availability.WeeklySchedule
	Rules      BookingRules
	Google     CalendarConnection
}

func (s CalendarSettings) SlotDuration() time.Duration {
	return time.Duration(s.Rules.SlotDurationMinutes) * time.Minute
}

func (s CalendarSettings) Buffer() time.Duration {
	return time.Duration(s.Rules.BufferMinutes) * time.Minute
}

func (s CalendarSettings) MinNotice() time.Duration {
	return time.Duration(s.Rules.MinNoticeHours) * time.Hour
}
