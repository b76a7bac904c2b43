package redisx

import "time"

const (
	// Cache BookingView utk GET /bookings/{id}: booking_view:{booking_id} -> JSON view
	KeyBookingView = "booking_view:%s"

	// Dedup event di sisi consumer: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLViewCache = 5 * time.Minute
	TTLDedup     = 48 * time.Hour
)
