package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/checkoutpanda/panda/services/testimonial-service/internal/outbox"
	"github.com/checkoutpanda/panda/services/testimonial-service/internal/storage"
)

const maxBodyLength = 2000

// linkLimitForTier caps the number of live collection links per plan.
func linkLimitForTier(tier string) int64 {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "starter":
		return 10
	case "pro":
		return 100
	default:
		return 1
	}
}

type TestimonialHandler struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *TestimonialHandler {
	return &TestimonialHandler{repo: repo, outboxRepo: outboxRepo, logger: logger}
}

type linkResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	// Token is only populated on creation; the hash is all we keep.
	Token string `json:"token,omitempty"`
}

// CreateLink mints a collection link for the merchant. The plaintext token is
// returned exactly once; only its bcrypt hash is persisted.
func (h *TestimonialHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "X-Merchant-Id header is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	plan, _, err := h.repo.GetMerchantPlan(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	active, err := h.repo.CountActiveLinks(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if active >= linkLimitForTier(plan.Tier) {
		http.Error(w, "collection link limit reached (upgrade required)", http.StatusPaymentRequired)
		return
	}

	token, err := newLinkToken()
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash token", http.StatusInternalServerError)
		return
	}

	link, err := h.repo.CreateLink(r.Context(), merchantID, strings.TrimSpace(req.Label), string(hash))
	if err != nil {
		http.Error(w, "failed to create link", http.StatusInternalServerError)
		return
	}

	h.logger.Info("collection link created", "merchant_id", merchantID, "link_id", link.ID)
	writeJSON(w, http.StatusCreated, linkResponse{
		ID:        link.ID,
		Label:     link.Label,
		Active:    link.Active,
		CreatedAt: link.CreatedAt,
		Token:     token,
	})
}

func (h *TestimonialHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "X-Merchant-Id header is required", http.StatusBadRequest)
		return
	}

	links, err := h.repo.ListLinks(r.Context(), merchantID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, linkResponse{ID: l.ID, Label: l.Label, Active: l.Active, CreatedAt: l.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": out})
}

func (h *TestimonialHandler) DeactivateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "X-Merchant-Id header is required", http.StatusBadRequest)
		return
	}

	var req struct {
		LinkID string `json:"link_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.LinkID) == "" {
		http.Error(w, "link_id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeactivateLink(r.Context(), merchantID, strings.TrimSpace(req.LinkID)); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "link not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

type submitRequest struct {
	LinkID       string `json:"link_id"`
	Token        string `json:"token"`
	CustomerName string `json:"customer_name"`
	Rating       int32  `json:"rating"`
	Body         string `json:"body"`
}

func validateSubmission(req submitRequest) string {
	if strings.TrimSpace(req.LinkID) == "" {
		return "link_id is required"
	}
	if strings.TrimSpace(req.Token) == "" {
		return "token is required"
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return "customer_name is required"
	}
	if req.Rating < 1 || req.Rating > 5 {
		return "rating must be between 1 and 5"
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return "body is required"
	}
	if len(body) > maxBodyLength {
		return "body is too long"
	}
	return ""
}

// Submit is the public guest endpoint. The link token is the only credential;
// a bad token gets the same 403 regardless of which check failed.
func (h *TestimonialHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg := validateSubmission(req); msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	link, err := h.repo.GetLink(r.Context(), strings.TrimSpace(req.LinkID))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid collection link", http.StatusForbidden)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if !link.Active {
		http.Error(w, "invalid collection link", http.StatusForbidden)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(link.TokenHash), []byte(strings.TrimSpace(req.Token))); err != nil {
		http.Error(w, "invalid collection link", http.StatusForbidden)
		return
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	t, err := h.repo.CreateTestimonial(r.Context(), tx, storage.Testimonial{
		MerchantID:   link.MerchantID,
		LinkID:       link.ID,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Rating:       req.Rating,
		Body:         strings.TrimSpace(req.Body),
	})
	if err != nil {
		http.Error(w, "failed to store testimonial", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"testimonial_id": t.ID,
		"merchant_id":    t.MerchantID,
		"link_id":        t.LinkID,
		"rating":         t.Rating,
		"submitted_at":   t.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err := h.outboxRepo.Insert(r.Context(), tx, outbox.Event{
		AggregateType: "testimonial",
		AggregateID:   t.ID,
		EventType:     "testimonial.submitted.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.logger.Info("testimonial submitted", "merchant_id", t.MerchantID, "testimonial_id", t.ID, "rating", t.Rating)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     t.ID,
		"status": t.Status,
	})
}

func (h *TestimonialHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "X-Merchant-Id header is required", http.StatusBadRequest)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", "pending", "approved", "rejected":
	default:
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}

	items, err := h.repo.ListTestimonials(r.Context(), merchantID, status, 50)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	type item struct {
		ID           string     `json:"id"`
		CustomerName string     `json:"customer_name"`
		Rating       int32      `json:"rating"`
		Body         string     `json:"body"`
		Status       string     `json:"status"`
		CreatedAt    time.Time  `json:"created_at"`
		ModeratedAt  *time.Time `json:"moderated_at,omitempty"`
	}
	out := make([]item, 0, len(items))
	for _, t := range items {
		out = append(out, item{
			ID:           t.ID,
			CustomerName: t.CustomerName,
			Rating:       t.Rating,
			Body:         t.Body,
			Status:       t.Status,
			CreatedAt:    t.CreatedAt,
			ModeratedAt:  t.ModeratedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"testimonials": out})
}

func (h *TestimonialHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	merchantID := strings.TrimSpace(r.Header.Get("X-Merchant-Id"))
	if merchantID == "" {
		http.Error(w, "X-Merchant-Id header is required", http.StatusBadRequest)
		return
	}

	var req struct {
		TestimonialID string `json:"testimonial_id"`
		Action        string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TestimonialID) == "" {
		http.Error(w, "testimonial_id is required", http.StatusBadRequest)
		return
	}

	var status string
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "approve":
		status = "approved"
	case "reject":
		status = "rejected"
	default:
		http.Error(w, "action must be approve or reject", http.StatusBadRequest)
		return
	}

	if err := h.repo.Moderate(r.Context(), merchantID, strings.TrimSpace(req.TestimonialID), status); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "pending testimonial not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("testimonial moderated", "merchant_id", merchantID, "testimonial_id", req.TestimonialID, "status", status)
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func newLinkToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
