package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/checkoutpanda/panda/libs/db"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	MerchantID      string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, merchantID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, merchantID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (merchant_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (merchant_id, idempotency_key) DO NOTHING
	`, merchantID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, merchantID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, merchantID, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE merchant_id = $1 AND idempotency_key = $2
	`, merchantID, key, bookingID, statusCode, response)
	return err
}

// Create inserts a confirmed booking. The bookings table carries an overlap
// exclusion constraint per merchant, so a concurrent booking of the same
// span fails here with a conflict (IsConflict), not a double booking.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(merchant_id, customer_name, customer_email, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, b.MerchantID, b.CustomerName, b.CustomerEmail, b.StartTime, b.EndTime, b.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetBookingForUpdate(ctx context.Context, tx pgx.Tx, merchantID, bookingID string) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, merchant_id, customer_name, customer_email,
			start_time, end_time, status, cancelled_at, COALESCE(cancel_reason, ''), created_at
		FROM bookings
		WHERE id = $1 AND merchant_id = $2
		FOR UPDATE
	`, bookingID, merchantID).Scan(
		&b.ID,
		&b.MerchantID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}

func (r *BookingRepository) CancelBooking(ctx context.Context, tx pgx.Tx, merchantID, bookingID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $3
		WHERE id = $1 AND merchant_id = $2
		RETURNING cancelled_at
	`, bookingID, merchantID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

// ConfirmedIntervals returns the spans of confirmed bookings intersecting
// [from, to). Cancelled bookings never block availability.
func (r *BookingRepository) ConfirmedIntervals(ctx context.Context, merchantID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE merchant_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, merchantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

func (r *BookingRepository) ListByMerchant(ctx context.Context, merchantID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, customer_name, customer_email,
			start_time, end_time, status, cancelled_at, COALESCE(cancel_reason, ''), created_at
		FROM bookings
		WHERE merchant_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, merchantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		var cancelledAt *time.Time
		if err := rows.Scan(
			&b.ID,
			&b.MerchantID,
			&b.CustomerName,
			&b.CustomerEmail,
			&b.StartTime,
			&b.EndTime,
			&b.Status,
			&cancelledAt,
			&b.CancelReason,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		b.CancelledAt = cancelledAt
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func (r *BookingRepository) CountConfirmedInRange(ctx context.Context, tx pgx.Tx, merchantID string, startInclusive, endExclusive time.Time) (int, error) {
	var cnt int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE merchant_id = $1
		  AND status = 'confirmed'
		  AND start_time >= $2
		  AND start_time < $3
	`, merchantID, startInclusive, endExclusive).Scan(&cnt)
	return cnt, err
}

// IsConflict reports a Postgres exclusion-constraint violation (23P01), the
// signal that a concurrent transaction reserved an overlapping span first.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, merchantID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT merchant_id::text,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE merchant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, merchantID, key).Scan(
		&rec.MerchantID,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
