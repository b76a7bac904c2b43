package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
	"github.com/ariefcatur/go-tour-bookings.git/internal/notify"
)

type NotificationsHandler struct {
	Repo *notify.Repo
}

func (h *NotificationsHandler) Register(r *chi.Mux) {
	r.Get("/notifications", h.list)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)
	if user == "" {
		writeErr(w, booking.ErrUnauthenticated)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ns, err := h.Repo.ListForUser(ctx, user)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}
