package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
	"github.com/ariefcatur/go-tour-bookings.git/internal/metrics"
	"github.com/ariefcatur/go-tour-bookings.git/internal/redisx"
)

// Service mengkonsumsi event booking dan mempersistennya sebagai notifikasi
// per user. Push ke device/channel eksternal berada di luar service ini;
// baris notifications adalah outbox-nya.
type Service struct {
	Repo        *Repo
	Redis       *redis.Client
	ServiceName string
}

// HandleBookingEvent: dipasang sebagai handler consumer utk kedua topic
// booking. Return non-nil hanya utk error yang layak di-retry (insert gagal).
func (s *Service) HandleBookingEvent(ctx context.Context, m kafkago.Message) error {
	var env booking.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// payload rusak tidak akan membaik kalau diulang; log lalu commit
		log.Printf("notify: drop malformed event: %v", err)
		return nil
	}

	switch env.EventType {
	case booking.EventBookingConfirmed, booking.EventBookingCanceled:
	default:
		return nil // ignore
	}

	// dedup via Redis (pakai event_id) — consumer at-least-once
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}

	userID, err := payloadUserID(env.Payload)
	if err != nil || userID == "" {
		log.Printf("notify: drop event %s without user_id: %v", env.EventID, err)
		return nil
	}

	n := &Notification{
		ID:        env.EventID, // id notifikasi = event_id, insert jadi idempotent
		UserID:    userID,
		Kind:      env.EventType,
		Payload:   env.Payload,
		CreatedAt: env.OccurredAt,
	}
	if err := s.Repo.Insert(ctx, n); err != nil {
		return err
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	metrics.NotificationsStoredTotal.Inc()

	log.Printf("notify: user=%s kind=%s booking=%s", userID, env.EventType, env.CorrelationID)
	return nil
}

func payloadUserID(payload json.RawMessage) (string, error) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", err
	}
	return p.UserID, nil
}
