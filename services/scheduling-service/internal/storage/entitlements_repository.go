package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// MerchantEntitlements is the locally cached plan limit fed by billing
// events; booking creation enforces the monthly cap against it.
type MerchantEntitlements struct {
	MerchantID         string
	Tier               string
	MaxMonthlyBookings int
	UpdatedAt          time.Time
}

func (r *BookingRepository) UpsertMerchantEntitlements(ctx context.Context, tx pgx.Tx, ent MerchantEntitlements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO merchant_entitlements (merchant_id, tier, max_monthly_bookings)
		VALUES ($1, $2, $3)
		ON CONFLICT (merchant_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              max_monthly_bookings = EXCLUDED.max_monthly_bookings,
		              updated_at = now()
	`, ent.MerchantID, ent.Tier, ent.MaxMonthlyBookings)
	return err
}

func (r *BookingRepository) GetMerchantEntitlements(ctx context.Context, tx pgx.Tx, merchantID string) (MerchantEntitlements, bool, error) {
	var ent MerchantEntitlements
	err := tx.QueryRow(ctx, `
		SELECT merchant_id::text, tier, max_monthly_bookings, updated_at
		FROM merchant_entitlements
		WHERE merchant_id = $1
	`, merchantID).Scan(&ent.MerchantID, &ent.Tier, &ent.MaxMonthlyBookings, &ent.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return MerchantEntitlements{}, false, nil
		}
		return MerchantEntitlements{}, false, err
	}
	return ent, true, nil
}
