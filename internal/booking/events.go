package booking

import (
	"encoding/json"
	"time"
)

const (
	EventBookingConfirmed = "BookingConfirmed"
	EventBookingCanceled  = "BookingCanceled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "booking-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // booking_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload per event ----

type BookingConfirmedPayload struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	OfferingID   string    `json:"offering_id"`
	OfferingName string    `json:"offering_name"`
	Qty          int       `json:"qty"`
	TotalCents   int64     `json:"total_cents"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

type BookingCanceledPayload struct {
	BookingID  string `json:"booking_id"`
	UserID     string `json:"user_id"`
	OfferingID string `json:"offering_id"`
	Qty        int    `json:"qty"`
	SlotsAfter int    `json:"slots_after"` // sisa slot offering setelah release
}
