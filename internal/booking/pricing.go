package booking

// Evaluation: hasil evaluasi satu kode kupon terhadap calon booking.
// Murni baca; redeem (increment usage_count) terjadi terpisah di dalam
// transaksi create.
type Evaluation struct {
	Code          string `json:"code"`
	CouponID      string `json:"-"`
	Applicable    bool   `json:"applicable"`
	DiscountCents int64  `json:"discount_cents,omitempty"`
	Reason        string `json:"reason,omitempty"` // terisi hanya jika !Applicable
}

const (
	ReasonNotFound      = "coupon_not_found"
	ReasonInactive      = "coupon_inactive"
	ReasonExhausted     = "usage_limit_reached"
	ReasonWrongOffering = "not_valid_for_offering"
	ReasonDuplicate     = "duplicate_code"
)

// DiscountCents menghitung potongan satu kupon terhadap baseCents.
// Persen: base*percent/100. Nominal: min(amount, base) — potongan satu kupon
// tidak pernah melebihi base.
func DiscountCents(c *Coupon, baseCents int64) int64 {
	switch {
	case c.PercentOff != nil:
		return baseCents * int64(*c.PercentOff) / 100
	case c.AmountOffCents != nil:
		if *c.AmountOffCents > baseCents {
			return baseCents
		}
		return *c.AmountOffCents
	}
	return 0
}

// EvaluateSnapshot menerapkan aturan applicability terhadap snapshot kupon:
// aktif, belum mencapai limit, dan (kalau scoped) offering-nya cocok.
func EvaluateSnapshot(c *Coupon, offeringID string, baseCents int64) Evaluation {
	ev := Evaluation{Code: c.Code, CouponID: c.ID}
	switch {
	case !c.IsActive:
		ev.Reason = ReasonInactive
	case c.UsageCount >= c.UsageLimit:
		ev.Reason = ReasonExhausted
	case c.OfferingID != nil && *c.OfferingID != offeringID:
		ev.Reason = ReasonWrongOffering
	default:
		ev.Applicable = true
		ev.DiscountCents = DiscountCents(c, baseCents)
	}
	return ev
}

// TotalCents menjumlahkan diskon yang applicable dan clamp total di nol.
func TotalCents(baseCents int64, applied []Evaluation) int64 {
	total := baseCents
	for _, ev := range applied {
		total -= ev.DiscountCents
	}
	if total < 0 {
		return 0
	}
	return total
}
