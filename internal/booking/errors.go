package booking

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated      = errors.New("caller identity missing")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrOfferingNotFound     = errors.New("offering not found")
	ErrOfferingNotOpen      = errors.New("offering not open for booking")
	ErrInsufficientCapacity = errors.New("not enough available slots")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrForbidden            = errors.New("booking belongs to another user")
	ErrAlreadyCanceled      = errors.New("booking already canceled")
	ErrInvalidState         = errors.New("transition not allowed from current status")
	ErrUnavailable          = errors.New("storage temporarily unavailable")
)

// CouponExhaustedError: redeem kalah race — usage_count keburu mencapai limit
// di antara evaluate dan commit. Transaksi create di-abort; workflow menurunkan
// kode tsb jadi skipped lalu coba ulang, bukan menggagalkan booking.
type CouponExhaustedError struct {
	Code string
}

func (e *CouponExhaustedError) Error() string {
	return fmt.Sprintf("coupon %s: usage limit reached", e.Code)
}
