package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BookingsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Total number of booking create attempts",
		},
		[]string{"result"}, // ok | insufficient_capacity | not_open | error
	)
	BookingsCanceledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_canceled_total",
			Help: "Total number of successful cancellations",
		},
	)
	BookingCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "booking_create_duration_seconds",
			Help: "Duration of the booking create pipeline in seconds",
		},
	)
	CouponsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupons_skipped_total",
			Help: "Coupon codes skipped during booking creation",
		},
		[]string{"reason"},
	)
	NotificationsStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_stored_total",
			Help: "Booking events persisted as notifications",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		BookingsCreatedTotal,
		BookingsCanceledTotal,
		BookingCreateDuration,
		CouponsSkippedTotal,
		NotificationsStoredTotal,
	)
}
