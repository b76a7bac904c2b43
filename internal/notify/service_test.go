package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
)

func TestPayloadUserID(t *testing.T) {
	got, err := payloadUserID(json.RawMessage(`{"booking_id":"b1","user_id":"u-7"}`))
	if err != nil || got != "u-7" {
		t.Fatalf("payloadUserID = %q, %v", got, err)
	}
	if _, err := payloadUserID(json.RawMessage(`{`)); err == nil {
		t.Fatal("malformed payload must error")
	}
}

// Event asing dan pesan rusak harus di-ack tanpa menyentuh DB/Redis.
func TestHandleBookingEventIgnoresNoise(t *testing.T) {
	s := &Service{}

	env := booking.Envelope{
		EventID:    "ev-1",
		EventType:  "SomethingElse",
		OccurredAt: time.Now().UTC(),
		Payload:    json.RawMessage(`{}`),
	}
	raw, _ := json.Marshal(env)
	if err := s.HandleBookingEvent(context.Background(), kafkago.Message{Value: raw}); err != nil {
		t.Errorf("foreign event: %v", err)
	}

	if err := s.HandleBookingEvent(context.Background(), kafkago.Message{Value: []byte("not-json")}); err != nil {
		t.Errorf("malformed event: %v", err)
	}
}
