package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
	"github.com/ariefcatur/go-tour-bookings.git/internal/metrics"
	"github.com/ariefcatur/go-tour-bookings.git/internal/redisx"
)

type BookingsHandler struct {
	Svc      *booking.Service
	Redis    *redis.Client
	Validate *validator.Validate
}

type CreateBookingReq struct {
	OfferingID  string    `json:"offering_id" validate:"required"`
	Qty         int       `json:"qty" validate:"required,min=1"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	Notes       string    `json:"notes"`
	CouponCodes []string  `json:"coupon_codes" validate:"max=10,dive,required"`
}

type CreateBookingResp struct {
	Booking        booking.BookingView  `json:"booking"`
	SkippedCoupons []booking.Evaluation `json:"skipped_coupons,omitempty"`
}

func (h *BookingsHandler) Register(r *chi.Mux) {
	r.Post("/bookings", h.createBooking)
	r.Get("/bookings", h.listBookings)
	r.Get("/bookings/{id}", h.getBooking)
	r.Post("/bookings/{id}/cancel", h.cancelBooking)
	r.Post("/bookings/{id}/complete", h.completeBooking)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// Identitas caller datang dari gateway sebagai header tepercaya; issuance &
// verifikasi token bukan urusan service ini.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, booking.ErrOfferingNotFound),
		errors.Is(err, booking.ErrCouponNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrOfferingNotOpen),
		errors.Is(err, booking.ErrInsufficientCapacity),
		errors.Is(err, booking.ErrAlreadyCanceled),
		errors.Is(err, booking.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, booking.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func createResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, booking.ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, booking.ErrOfferingNotOpen):
		return "not_open"
	default:
		return "error"
	}
}

func (h *BookingsHandler) createBooking(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)
	if user == "" {
		writeErr(w, booking.ErrUnauthenticated)
		return
	}

	var req CreateBookingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	res, err := h.Svc.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:      user,
		OfferingID:  req.OfferingID,
		Qty:         req.Qty,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Notes:       req.Notes,
		CouponCodes: req.CouponCodes,
		TraceID:     r.Header.Get("X-Request-Id"),
	})
	metrics.BookingCreateDuration.Observe(time.Since(start).Seconds())
	metrics.BookingsCreatedTotal.WithLabelValues(createResult(err)).Inc()
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, ev := range res.Skipped {
		metrics.CouponsSkippedTotal.WithLabelValues(ev.Reason).Inc()
	}

	h.cacheView(ctx, &res.Booking)
	writeJSON(w, http.StatusCreated, CreateBookingResp{Booking: res.Booking, SkippedCoupons: res.Skipped})
}

func (h *BookingsHandler) getBooking(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)
	if user == "" {
		writeErr(w, booking.ErrUnauthenticated)
		return
	}
	bookingID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache; ownership tetap dicek di view yang ter-cache
	key := fmt.Sprintf(redisx.KeyBookingView, bookingID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		var v booking.BookingView
		if json.Unmarshal([]byte(s), &v) == nil {
			if v.UserID != user {
				writeErr(w, booking.ErrForbidden)
				return
			}
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	// 2) fallback DB
	v, err := h.Svc.GetBooking(ctx, user, bookingID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheView(ctx, v)
	writeJSON(w, http.StatusOK, v)
}

func (h *BookingsHandler) listBookings(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)
	if user == "" {
		writeErr(w, booking.ErrUnauthenticated)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	views, err := h.Svc.ListBookings(ctx, user)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *BookingsHandler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)
	if user == "" {
		writeErr(w, booking.ErrUnauthenticated)
		return
	}
	bookingID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.CancelBooking(ctx, user, bookingID, r.Header.Get("X-Request-Id")); err != nil {
		writeErr(w, err)
		return
	}
	metrics.BookingsCanceledTotal.Inc()
	h.dropView(ctx, bookingID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(booking.StatusCanceled)})
}

func (h *BookingsHandler) completeBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.CompleteBooking(ctx, bookingID); err != nil {
		writeErr(w, err)
		return
	}
	h.dropView(ctx, bookingID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(booking.StatusCompleted)})
}

func (h *BookingsHandler) cacheView(ctx context.Context, v *booking.BookingView) {
	key := fmt.Sprintf(redisx.KeyBookingView, v.ID)
	_ = h.Redis.Set(ctx, key, string(mustJSON(v)), redisx.TTLViewCache).Err()
}

func (h *BookingsHandler) dropView(ctx context.Context, bookingID string) {
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBookingView, bookingID)).Err()
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
