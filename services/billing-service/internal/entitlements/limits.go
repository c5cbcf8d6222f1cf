package entitlements

// Limits represents the entitlements derived from a subscription tier.
// Keep this small and stable: other services may rely on these limits to enforce behavior.
type Limits struct {
	Tier                string `json:"tier"`
	MaxOffers           int32  `json:"max_offers"`
	MaxMonthlyBookings  int32  `json:"max_monthly_bookings"`
	MaxTestimonialLinks int32  `json:"max_testimonial_links"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "starter":
		return Limits{
			Tier:                "starter",
			MaxOffers:           10,
			MaxMonthlyBookings:  200,
			MaxTestimonialLinks: 10,
		}
	case "pro":
		return Limits{
			Tier:                "pro",
			MaxOffers:           100,
			MaxMonthlyBookings:  2000,
			MaxTestimonialLinks: 100,
		}
	default:
		return Limits{
			Tier:                "free",
			MaxOffers:           3,
			MaxMonthlyBookings:  20,
			MaxTestimonialLinks: 1,
		}
	}
}
