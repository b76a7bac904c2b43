package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Ledger: satu-satunya jalur mutasi available_slots. Semua method berjalan di
// dalam transaksi pemanggil supaya check-and-decrement dan insert booking
// commit (atau rollback) bareng-bareng.
type Ledger struct{}

// Reserve: lock row offering (FOR UPDATE) -> cek status & sisa slot -> kurangi.
// Dua create concurrent pada offering yang sama antri di lock ini, jadi tidak
// mungkin dua-duanya lolos saat slot tinggal satu.
func (Ledger) Reserve(ctx context.Context, tx pgx.Tx, offeringID string, qty int) (*Offering, error) {
	o, err := lockOffering(ctx, tx, offeringID)
	if err != nil {
		return nil, err
	}
	if !o.Status.Bookable() {
		return nil, ErrOfferingNotOpen
	}
	if o.AvailableSlots < qty {
		return nil, ErrInsufficientCapacity
	}
	if _, err := tx.Exec(ctx, `
		UPDATE offerings SET available_slots = available_slots - $2, updated_at = now()
		WHERE id = $1`, offeringID, qty); err != nil {
		return nil, err
	}
	o.AvailableSlots -= qty
	return o, nil
}

// Release: kembalikan slot, clamp di capacity (tahan double-release).
func (Ledger) Release(ctx context.Context, tx pgx.Tx, offeringID string, qty int) (*Offering, error) {
	o, err := lockOffering(ctx, tx, offeringID)
	if err != nil {
		return nil, err
	}
	next := o.AvailableSlots + qty
	if next > o.Capacity {
		next = o.Capacity
	}
	if _, err := tx.Exec(ctx, `
		UPDATE offerings SET available_slots = $2, updated_at = now()
		WHERE id = $1`, offeringID, next); err != nil {
		return nil, err
	}
	o.AvailableSlots = next
	return o, nil
}

// ResizeSlots: hitung available_slots baru saat capacity diedit. Slot yang
// sudah terpakai dipertahankan; capacity di bawah konsumsi ditolak supaya
// booking yang sudah confirmed tidak pernah melebihi capacity.
func ResizeSlots(capacity, available, newCapacity int) (int, error) {
	consumed := capacity - available
	if newCapacity < consumed {
		return 0, fmt.Errorf("%w: %d slots already consumed", ErrInvalidState, consumed)
	}
	return newCapacity - consumed, nil
}

func lockOffering(ctx context.Context, tx pgx.Tx, offeringID string) (*Offering, error) {
	var o Offering
	err := tx.QueryRow(ctx, `
		SELECT id, name, price_cents, capacity, available_slots, status
		FROM offerings WHERE id = $1 FOR UPDATE`, offeringID).
		Scan(&o.ID, &o.Name, &o.PriceCents, &o.Capacity, &o.AvailableSlots, &o.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOfferingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
