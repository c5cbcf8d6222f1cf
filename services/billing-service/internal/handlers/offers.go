package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/checkoutpanda/panda/services/billing-service/internal/entitlements"
	"github.com/checkoutpanda/panda/services/billing-service/internal/storage"
)

type offerPayload struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Active          bool   `json:"active"`
	StripeProductID string `json:"stripe_product_id,omitempty"`
	StripePriceID   string `json:"stripe_price_id,omitempty"`
	SyncStatus      string `json:"sync_status,omitempty"`
	SyncError       string `json:"sync_error,omitempty"`
}

func offerToPayload(o storage.Offer) offerPayload {
	return offerPayload{
		ID:              o.ID,
		Name:            o.Name,
		Description:     o.Description,
		AmountCents:     o.AmountCents,
		Currency:        o.Currency,
		Active:          o.Active,
		StripeProductID: o.StripeProductID,
		StripePriceID:   o.StripePriceID,
		SyncStatus:      o.SyncStatus,
		SyncError:       o.SyncError,
	}
}

func validateOffer(p offerPayload) string {
	if strings.TrimSpace(p.Name) == "" {
		return "name is required"
	}
	if p.AmountCents < 50 {
		return "amount_cents must be at least 50"
	}
	cur := strings.ToLower(strings.TrimSpace(p.Currency))
	if len(cur) != 3 {
		return "currency must be a 3-letter ISO code"
	}
	return ""
}

// CreateOffer registers a new sellable offer. It is written dirty; the sync
// loop pushes it to Stripe out of band.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	var req offerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if msg := validateOffer(req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Offer count is capped by tier.
	tier := "free"
	if sub, err := h.repo.GetSubscription(ctx, merchantID); err == nil && sub.Status == "active" {
		tier = sub.Tier
	}
	limits := entitlements.LimitsForTier(tier)
	cnt, err := h.repo.CountOffers(ctx, tx, merchantID)
	if err != nil {
		http.Error(w, "failed to count offers", http.StatusInternalServerError)
		return
	}
	if limits.MaxOffers > 0 && cnt >= int(limits.MaxOffers) {
		http.Error(w, "offer limit reached (upgrade required)", http.StatusPaymentRequired)
		return
	}

	id, err := h.repo.CreateOffer(ctx, tx, storage.Offer{
		MerchantID:  merchantID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		AmountCents: req.AmountCents,
		Currency:    strings.ToLower(strings.TrimSpace(req.Currency)),
		Active:      req.Active,
	})
	if err != nil {
		http.Error(w, "failed to create offer", http.StatusInternalServerError)
		return
	}
	if err := h.recordAudit(ctx, tx, r, "billing.offer.created", "", merchantID, map[string]any{
		"offer_id": id,
		"name":     strings.TrimSpace(req.Name),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	req.ID = id
	req.SyncStatus = "dirty"
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	var req offerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if msg := validateOffer(req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.UpdateOffer(ctx, tx, storage.Offer{
		ID:          req.ID,
		MerchantID:  merchantID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		AmountCents: req.AmountCents,
		Currency:    strings.ToLower(strings.TrimSpace(req.Currency)),
		Active:      req.Active,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "offer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update offer", http.StatusInternalServerError)
		return
	}
	if err := h.recordAudit(ctx, tx, r, "billing.offer.updated", "", merchantID, map[string]any{
		"offer_id": req.ID,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	req.SyncStatus = "dirty"
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "merchant id required", http.StatusBadRequest)
		return
	}

	offers, err := h.repo.ListOffers(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "failed to list offers", http.StatusInternalServerError)
		return
	}
	items := make([]offerPayload, 0, len(offers))
	for _, o := range offers {
		items = append(items, offerToPayload(o))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.repo.ListOrders(r.Context(), merchantID, limit)
	if err != nil {
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	type orderItem struct {
		OrderID         string `json:"order_id"`
		OfferID         string `json:"offer_id,omitempty"`
		StripeSessionID string `json:"stripe_session_id"`
		AmountCents     int64  `json:"amount_cents"`
		Currency        string `json:"currency"`
		CustomerEmail   string `json:"customer_email,omitempty"`
		CreatedAt       string `json:"created_at"`
	}
	items := make([]orderItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, orderItem{
			OrderID:         o.ID,
			OfferID:         o.OfferID,
			StripeSessionID: o.StripeSessionID,
			AmountCents:     o.AmountCents,
			Currency:        o.Currency,
			CustomerEmail:   o.CustomerEmail,
			CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type offerCheckoutRequest struct {
	MerchantID string `json:"merchant_id"`
	OfferID    string `json:"offer_id"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// OfferCheckout is the public purchase entry point: a customer buys one of
// the merchant's offers. Requires the offer to be active and already synced
// (a Stripe price must exist).
func (h *Handler) OfferCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe checkout not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}

	var req offerCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MerchantID = strings.TrimSpace(req.MerchantID)
	req.OfferID = strings.TrimSpace(req.OfferID)
	if req.MerchantID == "" || req.OfferID == "" {
		http.Error(w, "merchant_id and offer_id are required", http.StatusBadRequest)
		return
	}

	offer, err := h.repo.GetOffer(r.Context(), req.MerchantID, req.OfferID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "offer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load offer", http.StatusInternalServerError)
		return
	}
	if !offer.Active {
		http.Error(w, "offer is not available", http.StatusConflict)
		return
	}
	if strings.TrimSpace(offer.StripePriceID) == "" {
		http.Error(w, "offer is not ready for checkout yet", http.StatusConflict)
		return
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = h.checkoutSuccessURL
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = h.checkoutCancelURL
	}
	if successURL == "" || cancelURL == "" {
		http.Error(w, "success_url and cancel_url are required (or configure default URLs)", http.StatusBadRequest)
		return
	}

	returnToken := newReturnToken()
	successURL = withQueryParam(successURL, "state", returnToken)
	cancelURL = withQueryParam(cancelURL, "state", returnToken)

	stripe.Key = h.stripeSecretKey
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.MerchantID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(offer.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"kind":        "offer",
			"merchant_id": req.MerchantID,
			"offer_id":    offer.ID,
		},
	}
	params.AddExpand("url")
	if idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("stripe offer checkout session create failed", "err", err, "offer_id", offer.ID)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()
	if err := h.repo.UpsertCheckoutSession(r.Context(), tx, storage.CheckoutSession{
		StripeSessionID: sess.ID,
		MerchantID:      req.MerchantID,
		Tier:            "",
		Status:          "created",
		URL:             sess.URL,
		ReturnToken:     returnToken,
	}); err != nil {
		http.Error(w, "failed to persist checkout session", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}
