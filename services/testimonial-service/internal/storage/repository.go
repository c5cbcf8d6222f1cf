package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/checkoutpanda/panda/libs/db"
)

// CollectionLink is a shareable testimonial-collection invite. Only the bcrypt
// hash of the link token is stored; the plaintext token is returned once at
// creation and never again.
type CollectionLink struct {
	ID         string
	MerchantID string
	Label      string
	TokenHash  string
	Active     bool
	CreatedAt  time.Time
}

type Testimonial struct {
	ID           string
	MerchantID   string
	LinkID       string
	CustomerName string
	Rating       int32
	Body         string
	Status       string
	CreatedAt    time.Time
	ModeratedAt  *time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) CreateLink(ctx context.Context, merchantID, label, tokenHash string) (CollectionLink, error) {
	link := CollectionLink{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Label:      label,
		TokenHash:  tokenHash,
		Active:     true,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO testimonial_links (id, merchant_id, label, token_hash, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING created_at
	`, link.ID, link.MerchantID, link.Label, link.TokenHash).Scan(&link.CreatedAt)
	if err != nil {
		return CollectionLink{}, err
	}
	return link, nil
}

func (r *Repository) GetLink(ctx context.Context, linkID string) (CollectionLink, error) {
	var link CollectionLink
	err := r.pool.QueryRow(ctx, `
		SELECT id, merchant_id, label, token_hash, active, created_at
		FROM testimonial_links
		WHERE id = $1
	`, linkID).Scan(&link.ID, &link.MerchantID, &link.Label, &link.TokenHash, &link.Active, &link.CreatedAt)
	if err != nil {
		return CollectionLink{}, err
	}
	return link, nil
}

func (r *Repository) ListLinks(ctx context.Context, merchantID string) ([]CollectionLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, label, token_hash, active, created_at
		FROM testimonial_links
		WHERE merchant_id = $1
		ORDER BY created_at DESC
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []CollectionLink
	for rows.Next() {
		var link CollectionLink
		if err := rows.Scan(&link.ID, &link.MerchantID, &link.Label, &link.TokenHash, &link.Active, &link.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (r *Repository) CountActiveLinks(ctx context.Context, merchantID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM testimonial_links
		WHERE merchant_id = $1 AND active
	`, merchantID).Scan(&n)
	return n, err
}

func (r *Repository) DeactivateLink(ctx context.Context, merchantID, linkID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE testimonial_links
		SET active = FALSE
		WHERE id = $1 AND merchant_id = $2
	`, linkID, merchantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CreateTestimonial(ctx context.Context, tx pgx.Tx, t Testimonial) (Testimonial, error) {
	t.ID = uuid.NewString()
	t.Status = "pending"
	err := tx.QueryRow(ctx, `
		INSERT INTO testimonials (id, merchant_id, link_id, customer_name, rating, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING created_at
	`, t.ID, t.MerchantID, t.LinkID, t.CustomerName, t.Rating, t.Body).Scan(&t.CreatedAt)
	if err != nil {
		return Testimonial{}, err
	}
	return t, nil
}

func (r *Repository) ListTestimonials(ctx context.Context, merchantID, status string, limit int32) ([]Testimonial, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, merchant_id, link_id, customer_name, rating, body, status, created_at, moderated_at
		FROM testimonials
		WHERE merchant_id = $1
	`
	args := []any{merchantID}
	if status != "" {
		query += ` AND status = $2 ORDER BY created_at DESC LIMIT $3`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Testimonial
	for rows.Next() {
		var t Testimonial
		if err := rows.Scan(&t.ID, &t.MerchantID, &t.LinkID, &t.CustomerName, &t.Rating, &t.Body, &t.Status, &t.CreatedAt, &t.ModeratedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Moderate moves a pending testimonial to approved or rejected. Decisions are
// final; re-moderation of an already-decided testimonial is a no-op miss.
func (r *Repository) Moderate(ctx context.Context, merchantID, testimonialID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE testimonials
		SET status = $1, moderated_at = now()
		WHERE id = $2 AND merchant_id = $3 AND status = 'pending'
	`, status, testimonialID, merchantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
