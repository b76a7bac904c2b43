package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
)

// CatalogHandler: sisi host/admin — kelola offering & kupon.
type CatalogHandler struct {
	Repo     *booking.Repo
	Validate *validator.Validate
}

type CreateOfferingReq struct {
	Name       string `json:"name" validate:"required"`
	PriceCents int64  `json:"price_cents" validate:"required,min=1"`
	Capacity   int    `json:"capacity" validate:"required,min=1"`
}

type SetCapacityReq struct {
	Capacity int `json:"capacity" validate:"min=0"`
}

type CreateCouponReq struct {
	Code           string  `json:"code" validate:"required"`
	OfferingID     *string `json:"offering_id"` // nil = berlaku semua offering
	PercentOff     *int    `json:"percent_off" validate:"omitempty,min=1,max=100"`
	AmountOffCents *int64  `json:"amount_off_cents" validate:"omitempty,min=1"`
	UsageLimit     int     `json:"usage_limit" validate:"required,min=1"`
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Get("/offerings", h.listOfferings)
	r.Get("/offerings/{id}", h.getOffering)
	r.Post("/offerings", h.createOffering)
	r.Put("/offerings/{id}/capacity", h.setCapacity)
	r.Post("/coupons", h.createCoupon)
}

func (h *CatalogHandler) listOfferings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	offs, err := h.Repo.ListOfferings(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offs)
}

func (h *CatalogHandler) getOffering(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOffering(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CatalogHandler) createOffering(w http.ResponseWriter, r *http.Request) {
	var req CreateOfferingReq
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

	o, err := h.Repo.CreateOffering(ctx, req.Name, req.PriceCents, req.Capacity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *CatalogHandler) setCapacity(w http.ResponseWriter, r *http.Request) {
	var req SetCapacityReq
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

	o, err := h.Repo.SetOfferingCapacity(ctx, chi.URLParam(r, "id"), req.Capacity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CatalogHandler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// diskon harus persen ATAU nominal, tepat salah satu
	if (req.PercentOff == nil) == (req.AmountOffCents == nil) {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "exactly one of percent_off / amount_off_cents required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c := &booking.Coupon{
		Code:           req.Code,
		OfferingID:     req.OfferingID,
		PercentOff:     req.PercentOff,
		AmountOffCents: req.AmountOffCents,
		UsageLimit:     req.UsageLimit,
		IsActive:       true,
	}
	if err := h.Repo.CreateCoupon(ctx, c); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": c.ID, "code": c.Code})
}
