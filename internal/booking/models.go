package booking

import "time"

type Offering struct {
	ID             string
	Name           string
	PriceCents     int64
	Capacity       int
	AvailableSlots int
	Status         OfferingStatus // lihat status.go
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Booking struct {
	ID         string
	UserID     string
	OfferingID string
	Qty        int
	StartDate  time.Time
	EndDate    time.Time
	Notes      string
	TotalCents int64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Coupon struct {
	ID             string
	Code           string
	OfferingID     *string // nil = berlaku utk semua offering
	PercentOff     *int    // exclusive dengan AmountOffCents
	AmountOffCents *int64
	UsageLimit     int
	UsageCount     int
	IsActive       bool
	CreatedAt      time.Time
}

// Baris junction booking<->coupon; immutable setelah redeem.
type BookingCoupon struct {
	BookingID     string
	CouponID      string
	Code          string
	DiscountCents int64
	CreatedAt     time.Time
}

// BookingView: representasi baca utk API (nama offering sudah di-resolve).
type BookingView struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	OfferingID   string    `json:"offering_id"`
	OfferingName string    `json:"offering_name"`
	BookingDate  time.Time `json:"booking_date"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Qty          int       `json:"qty"`
	TotalCents   int64     `json:"total_cents"`
	Notes        string    `json:"notes,omitempty"`
	Status       Status    `json:"status"`
}
