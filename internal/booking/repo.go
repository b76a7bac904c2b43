package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	DB     *pgxpool.Pool
	Ledger Ledger
}

// CreateBookingTx: reserve slot + insert booking + redeem kupon dalam SATU
// transaksi. Gagal di langkah mana pun -> rollback semuanya: slot tidak
// berkurang, usage_count tidak naik.
func (r *Repo) CreateBookingTx(ctx context.Context, b *Booking, applied []Evaluation) (*Offering, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := r.Ledger.Reserve(ctx, tx, b.OfferingID, b.Qty)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, offering_id, qty, start_date, end_date, notes, total_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.UserID, b.OfferingID, b.Qty, b.StartDate, b.EndDate, b.Notes, b.TotalCents, b.Status, b.CreatedAt); err != nil {
		return nil, mapPgErr(err)
	}

	for _, ev := range applied {
		if err := redeemTx(ctx, tx, b.ID, ev); err != nil {
			return nil, mapPgErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgErr(err)
	}
	return o, nil
}

// CancelBookingTx: update status + release slot dalam satu transaksi.
// Semua guard (owner, terminal state) dicek di bawah lock row booking supaya
// double-cancel concurrent hanya satu yang menang.
func (r *Repo) CancelBookingTx(ctx context.Context, bookingID, userID string) (*Booking, *Offering, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, mapPgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, nil, mapPgErr(err)
	}
	if b.UserID != userID {
		return nil, nil, ErrForbidden
	}
	if b.Status == StatusCanceled {
		return nil, nil, ErrAlreadyCanceled
	}
	if !CanTransition(b.Status, StatusCanceled) {
		return nil, nil, ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`,
		bookingID, StatusCanceled); err != nil {
		return nil, nil, mapPgErr(err)
	}
	b.Status = StatusCanceled

	o, err := r.Ledger.Release(ctx, tx, b.OfferingID, b.Qty)
	if err != nil {
		return nil, nil, mapPgErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, mapPgErr(err)
	}
	return b, o, nil
}

// CompleteBookingTx: CONFIRMED -> COMPLETED. Tidak menyentuh slot.
func (r *Repo) CompleteBookingTx(ctx context.Context, bookingID string) (*Booking, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	if !CanTransition(b.Status, StatusCompleted) {
		return nil, ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`,
		bookingID, StatusCompleted); err != nil {
		return nil, mapPgErr(err)
	}
	b.Status = StatusCompleted

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgErr(err)
	}
	return b, nil
}

func lockBooking(ctx context.Context, tx pgx.Tx, bookingID string) (*Booking, error) {
	var b Booking
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, offering_id, qty, start_date, end_date, notes, total_cents, status, created_at
		FROM bookings WHERE id = $1 FOR UPDATE`, bookingID).
		Scan(&b.ID, &b.UserID, &b.OfferingID, &b.Qty, &b.StartDate, &b.EndDate,
			&b.Notes, &b.TotalCents, &b.Status, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetOffering(ctx context.Context, offeringID string) (*Offering, error) {
	var o Offering
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, price_cents, capacity, available_slots, status, created_at, updated_at
		FROM offerings WHERE id = $1`, offeringID).
		Scan(&o.ID, &o.Name, &o.PriceCents, &o.Capacity, &o.AvailableSlots,
			&o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOfferingNotFound
	}
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &o, nil
}

func (r *Repo) ListOfferings(ctx context.Context) ([]Offering, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, price_cents, capacity, available_slots, status, created_at, updated_at
		FROM offerings ORDER BY name`)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []Offering
	for rows.Next() {
		var o Offering
		if err := rows.Scan(&o.ID, &o.Name, &o.PriceCents, &o.Capacity,
			&o.AvailableSlots, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) CreateOffering(ctx context.Context, name string, priceCents int64, capacity int) (*Offering, error) {
	o := Offering{
		ID:             uuid.NewString(),
		Name:           name,
		PriceCents:     priceCents,
		Capacity:       capacity,
		AvailableSlots: capacity,
		Status:         OfferingOpen,
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO offerings (id, name, price_cents, capacity, available_slots, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		o.ID, o.Name, o.PriceCents, o.Capacity, o.AvailableSlots, o.Status).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &o, nil
}

// SetOfferingCapacity: edit kapasitas eksplisit. available_slots ikut bergeser
// sebesar delta; kapasitas di bawah slot yang sudah terpakai ditolak supaya
// booking yang sudah confirmed tidak pernah melebihi capacity.
func (r *Repo) SetOfferingCapacity(ctx context.Context, offeringID string, capacity int) (*Offering, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOffering(ctx, tx, offeringID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	avail, err := ResizeSlots(o.Capacity, o.AvailableSlots, capacity)
	if err != nil {
		return nil, err
	}
	o.Capacity = capacity
	o.AvailableSlots = avail

	if _, err := tx.Exec(ctx, `
		UPDATE offerings SET capacity = $2, available_slots = $3, updated_at = now()
		WHERE id = $1`, offeringID, o.Capacity, o.AvailableSlots); err != nil {
		return nil, mapPgErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgErr(err)
	}
	return o, nil
}

func (r *Repo) CreateCoupon(ctx context.Context, c *Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO coupons (id, code, offering_id, percent_off, amount_off_cents, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		c.ID, c.Code, c.OfferingID, c.PercentOff, c.AmountOffCents, c.UsageLimit, c.IsActive).
		Scan(&c.CreatedAt)
	return mapPgErr(err)
}

func (r *Repo) GetBookingView(ctx context.Context, bookingID string) (*BookingView, error) {
	var v BookingView
	err := r.DB.QueryRow(ctx, `
		SELECT b.id, b.user_id, b.offering_id, o.name, b.created_at,
		       b.start_date, b.end_date, b.qty, b.total_cents, b.notes, b.status
		FROM bookings b JOIN offerings o ON o.id = b.offering_id
		WHERE b.id = $1`, bookingID).
		Scan(&v.ID, &v.UserID, &v.OfferingID, &v.OfferingName, &v.BookingDate,
			&v.StartDate, &v.EndDate, &v.Qty, &v.TotalCents, &v.Notes, &v.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &v, nil
}

func (r *Repo) ListBookingViews(ctx context.Context, userID string) ([]BookingView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT b.id, b.user_id, b.offering_id, o.name, b.created_at,
		       b.start_date, b.end_date, b.qty, b.total_cents, b.notes, b.status
		FROM bookings b JOIN offerings o ON o.id = b.offering_id
		WHERE b.user_id = $1 ORDER BY b.created_at DESC`, userID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []BookingView
	for rows.Next() {
		var v BookingView
		if err := rows.Scan(&v.ID, &v.UserID, &v.OfferingID, &v.OfferingName, &v.BookingDate,
			&v.StartDate, &v.EndDate, &v.Qty, &v.TotalCents, &v.Notes, &v.Status); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// mapPgErr membungkus failure transient (serialization/deadlock) jadi
// ErrUnavailable supaya workflow bisa retry sekali sebelum menyerah.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}
