package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// MerchantPlan is the locally cached billing tier fed by billing events;
// collection-link creation enforces the per-plan link cap against it.
type MerchantPlan struct {
	MerchantID string
	Tier       string
	UpdatedAt  time.Time
}

func (r *Repository) UpsertMerchantPlan(ctx context.Context, tx pgx.Tx, plan MerchantPlan) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO merchant_plans (merchant_id, tier)
		VALUES ($1, $2)
		ON CONFLICT (merchant_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              updated_at = now()
	`, plan.MerchantID, plan.Tier)
	return err
}

func (r *Repository) GetMerchantPlan(ctx context.Context, merchantID string) (MerchantPlan, bool, error) {
	var plan MerchantPlan
	err := r.pool.QueryRow(ctx, `
		SELECT merchant_id::text, tier, updated_at
		FROM merchant_plans
		WHERE merchant_id = $1
	`, merchantID).Scan(&plan.MerchantID, &plan.Tier, &plan.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return MerchantPlan{}, false, nil
		}
		return MerchantPlan{}, false, err
	}
	return plan, true, nil
}
