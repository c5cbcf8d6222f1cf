package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	cases := []struct {
		tier string
		want Limits
	}{
		{"free", Limits{Tier: "free", MaxOffers: 3, MaxMonthlyBookings: 20, MaxTestimonialLinks: 1}},
		{"starter", Limits{Tier: "starter", MaxOffers: 10, MaxMonthlyBookings: 200, MaxTestimonialLinks: 10}},
		{"pro", Limits{Tier: "pro", MaxOffers: 100, MaxMonthlyBookings: 2000, MaxTestimonialLinks: 100}},
		{"", Limits{Tier: "free", MaxOffers: 3, MaxMonthlyBookings: 20, MaxTestimonialLinks: 1}},
		{"enterprise", Limits{Tier: "free", MaxOffers: 3, MaxMonthlyBookings: 20, MaxTestimonialLinks: 1}},
	}
	for _, tc := range cases {
		got := LimitsForTier(tc.tier)
		if got != tc.want {
			t.Fatalf("LimitsForTier(%q) = %+v, want %+v", tc.tier, got, tc.want)
		}
	}
}
