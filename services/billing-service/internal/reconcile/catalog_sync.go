package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	stripeprice "github.com/stripe/stripe-go/v79/price"
	stripeproduct "github.com/stripe/stripe-go/v79/product"

	"github.com/checkoutpanda/panda/libs/db"
	"github.com/checkoutpanda/panda/services/billing-service/internal/storage"
)

// CatalogSyncer mirrors the offer catalog into Stripe products and prices.
// Offers are edited locally and flagged dirty; this loop pushes them out.
// Stripe prices are immutable, so an amount or currency change creates a
// fresh price and deactivates the old one.
type CatalogSyncer struct {
	pool        *db.Pool
	repo        *storage.Repository
	logger      *slog.Logger
	stripeKey   string
	batchSize   int
	advisoryKey int64
}

type CatalogSyncerConfig struct {
	StripeSecretKey string
	BatchSize       int
	AdvisoryLockKey int64
}

func NewCatalogSyncer(pool *db.Pool, repo *storage.Repository, logger *slog.Logger, cfg CatalogSyncerConfig) *CatalogSyncer {
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 50
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		lockKey = 4242002
	}
	return &CatalogSyncer{
		pool:        pool,
		repo:        repo,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		batchSize:   bs,
		advisoryKey: lockKey,
	}
}

func (c *CatalogSyncer) Run(ctx context.Context, interval time.Duration) {
	if c.stripeKey == "" {
		c.logger.Warn("catalog sync disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	if !acquireAdvisoryLock(ctx, c.pool, c.logger, c.advisoryKey, "catalog sync") {
		return
	}
	defer releaseAdvisoryLock(c.pool, c.advisoryKey)

	stripe.Key = c.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.syncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncOnce(ctx)
		}
	}
}

func (c *CatalogSyncer) syncOnce(ctx context.Context) {
	tx, err := c.repo.Begin(ctx)
	if err != nil {
		c.logger.Error("catalog sync: db begin failed", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	offers, err := c.repo.ListDirtyOffers(ctx, tx, c.batchSize)
	if err != nil {
		c.logger.Error("catalog sync: failed to list dirty offers", "err", err)
		return
	}
	if len(offers) == 0 {
		_ = tx.Commit(ctx)
		return
	}

	for _, offer := range offers {
		if ctx.Err() != nil {
			return
		}
		productID, priceID, err := c.syncOffer(offer)
		if err != nil {
			// Per-offer failures never abort the batch; the row stays dirty
			// and is retried on the next pass.
			c.logger.Warn("catalog sync: offer sync failed", "err", err, "offer_id", offer.ID, "merchant_id", offer.MerchantID)
			if markErr := c.repo.MarkOfferSyncFailed(ctx, tx, offer.ID, err.Error()); markErr != nil {
				c.logger.Error("catalog sync: failed to record sync error", "err", markErr, "offer_id", offer.ID)
			}
			continue
		}
		if err := c.repo.MarkOfferSynced(ctx, tx, offer.ID, productID, priceID); err != nil {
			c.logger.Error("catalog sync: failed to mark offer synced", "err", err, "offer_id", offer.ID)
			continue
		}
		c.logger.Info("catalog sync: offer synced", "offer_id", offer.ID, "stripe_product_id", productID, "stripe_price_id", priceID)
	}

	if err := tx.Commit(ctx); err != nil {
		c.logger.Error("catalog sync: commit failed", "err", err)
	}
}

// syncOffer upserts the Stripe product and rotates the price when the amount
// or currency drifted. Returns the resulting product and price IDs.
func (c *CatalogSyncer) syncOffer(offer storage.Offer) (string, string, error) {
	productID := strings.TrimSpace(offer.StripeProductID)
	if productID == "" {
		prod, err := stripeproduct.New(&stripe.ProductParams{
			Name:        stripe.String(offer.Name),
			Description: stripe.String(offer.Description),
			Active:      stripe.Bool(offer.Active),
			Metadata: map[string]string{
				"merchant_id": offer.MerchantID,
				"offer_id":    offer.ID,
			},
		})
		if err != nil {
			return "", "", err
		}
		productID = prod.ID
	} else {
		params := &stripe.ProductParams{
			Name:   stripe.String(offer.Name),
			Active: stripe.Bool(offer.Active),
		}
		if offer.Description != "" {
			params.Description = stripe.String(offer.Description)
		}
		if _, err := stripeproduct.Update(productID, params); err != nil {
			return "", "", err
		}
	}

	priceID := strings.TrimSpace(offer.StripePriceID)
	if priceID != "" {
		current, err := stripeprice.Get(priceID, nil)
		if err != nil {
			return "", "", err
		}
		if current.UnitAmount == offer.AmountCents && strings.EqualFold(string(current.Currency), offer.Currency) {
			return productID, priceID, nil
		}
		// Amount or currency changed: retire the old price first so the
		// product never advertises two live prices.
		if _, err := stripeprice.Update(priceID, &stripe.PriceParams{Active: stripe.Bool(false)}); err != nil {
			return "", "", err
		}
	}

	created, err := stripeprice.New(&stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(offer.AmountCents),
		Currency:   stripe.String(strings.ToLower(offer.Currency)),
		Metadata: map[string]string{
			"merchant_id": offer.MerchantID,
			"offer_id":    offer.ID,
		},
	})
	if err != nil {
		return "", "", err
	}
	return productID, created.ID, nil
}
