package booking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Evaluator: pricing kupon yang deterministik dan bebas side effect.
// Redeem adalah langkah terpisah (redeemTx) yang hanya jalan di dalam
// transaksi create booking.
type Evaluator struct {
	DB *pgxpool.Pool
}

func (e *Evaluator) Evaluate(ctx context.Context, code, offeringID string, baseCents int64) (Evaluation, error) {
	c, err := e.getByCode(ctx, code, offeringID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Evaluation{Code: code, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Evaluation{}, err
	}
	return EvaluateSnapshot(c, offeringID, baseCents), nil
}

// Kode unik per offering; kupon scoped menang atas kupon global dgn kode sama.
func (e *Evaluator) getByCode(ctx context.Context, code, offeringID string) (*Coupon, error) {
	var c Coupon
	err := e.DB.QueryRow(ctx, `
		SELECT id, code, offering_id, percent_off, amount_off_cents,
		       usage_limit, usage_count, is_active, created_at
		FROM coupons
		WHERE code = $1 AND (offering_id = $2 OR offering_id IS NULL)
		ORDER BY offering_id NULLS LAST LIMIT 1`, code, offeringID).
		Scan(&c.ID, &c.Code, &c.OfferingID, &c.PercentOff, &c.AmountOffCents,
			&c.UsageLimit, &c.UsageCount, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// redeemTx: increment usage_count dengan guard di WHERE. Nol row berarti kupon
// sudah habis / nonaktif saat commit — kalah race terhadap evaluate.
// Baris booking_coupons unik per (booking_id, coupon_id), jadi satu attempt
// tidak mungkin me-redeem kupon yang sama dua kali.
func redeemTx(ctx context.Context, tx pgx.Tx, bookingID string, ev Evaluation) error {
	ct, err := tx.Exec(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND is_active AND usage_count < usage_limit`, ev.CouponID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &CouponExhaustedError{Code: ev.Code}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO booking_coupons (booking_id, coupon_id, discount_cents)
		VALUES ($1, $2, $3)`, bookingID, ev.CouponID, ev.DiscountCents)
	return err
}
