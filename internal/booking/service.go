package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-tour-bookings.git/internal/kafka"
)

// Store: operasi persistence yang dibutuhkan workflow. Interface supaya bisa
// dipasangi fake in-memory di test.
type Store interface {
	GetOffering(ctx context.Context, offeringID string) (*Offering, error)
	GetBookingView(ctx context.Context, bookingID string) (*BookingView, error)
	ListBookingViews(ctx context.Context, userID string) ([]BookingView, error)
	CreateBookingTx(ctx context.Context, b *Booking, applied []Evaluation) (*Offering, error)
	CancelBookingTx(ctx context.Context, bookingID, userID string) (*Booking, *Offering, error)
	CompleteBookingTx(ctx context.Context, bookingID string) (*Booking, error)
}

type CouponSource interface {
	Evaluate(ctx context.Context, code, offeringID string, baseCents int64) (Evaluation, error)
}

// Publisher: boundary dispatch notifikasi. Best-effort dan dipanggil HANYA
// setelah transaksi commit — gagal publish tidak pernah membatalkan booking.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store             Store
	Coupons           CouponSource
	ProducerConfirmed Publisher // topic booking.confirmed
	ProducerCanceled  Publisher // topic booking.canceled
	ServiceName       string
}

type CreateBookingInput struct {
	UserID      string
	OfferingID  string
	Qty         int
	StartDate   time.Time
	EndDate     time.Time
	Notes       string
	CouponCodes []string
	TraceID     string
}

type CreateBookingResult struct {
	Booking BookingView
	Skipped []Evaluation // kode yang tidak terpakai, beserta alasannya
}

func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error) {
	if in.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if in.Qty < 1 {
		return nil, fmt.Errorf("%w: qty must be >= 1", ErrInvalidArgument)
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidArgument)
	}

	off, err := s.Store.GetOffering(ctx, in.OfferingID)
	if err != nil {
		return nil, err
	}
	if !off.Status.Bookable() {
		return nil, ErrOfferingNotOpen
	}
	if off.AvailableSlots < in.Qty {
		return nil, ErrInsufficientCapacity
	}
	base := off.PriceCents * int64(in.Qty)

	// Kode yang kalah race redeem tidak dievaluasi ulang di attempt berikutnya.
	exhausted := map[string]bool{}
	retriedTransient := false

	// Setiap race kupon menggugurkan satu kode, jadi attempt terbatas.
	for attempt := 0; attempt < len(in.CouponCodes)+2; attempt++ {
		applied, skipped, err := s.evaluateCodes(ctx, in.CouponCodes, in.OfferingID, base, exhausted)
		if err != nil {
			return nil, err
		}

		b := &Booking{
			ID:         uuid.NewString(),
			UserID:     in.UserID,
			OfferingID: in.OfferingID,
			Qty:        in.Qty,
			StartDate:  in.StartDate,
			EndDate:    in.EndDate,
			Notes:      in.Notes,
			TotalCents: TotalCents(base, applied),
			Status:     StatusConfirmed, // tidak ada step konfirmasi pembayaran terpisah
			CreatedAt:  time.Now().UTC(),
		}

		offAfter, err := s.Store.CreateBookingTx(ctx, b, applied)
		var exh *CouponExhaustedError
		switch {
		case err == nil:
			view := viewOf(b, offAfter.Name)
			s.publishConfirmed(view, in.TraceID)
			return &CreateBookingResult{Booking: *view, Skipped: skipped}, nil
		case errors.As(err, &exh):
			exhausted[exh.Code] = true
		case errors.Is(err, ErrUnavailable) && !retriedTransient:
			retriedTransient = true
		default:
			return nil, err
		}
	}
	return nil, ErrUnavailable
}

func (s *Service) evaluateCodes(ctx context.Context, codes []string, offeringID string, baseCents int64, exhausted map[string]bool) (applied, skipped []Evaluation, err error) {
	seen := map[string]bool{}
	for _, code := range codes {
		if code == "" {
			continue
		}
		if seen[code] {
			skipped = append(skipped, Evaluation{Code: code, Reason: ReasonDuplicate})
			continue
		}
		seen[code] = true
		if exhausted[code] {
			skipped = append(skipped, Evaluation{Code: code, Reason: ReasonExhausted})
			continue
		}
		ev, evalErr := s.Coupons.Evaluate(ctx, code, offeringID, baseCents)
		if evalErr != nil {
			return nil, nil, evalErr
		}
		if !ev.Applicable {
			skipped = append(skipped, ev)
			continue
		}
		applied = append(applied, ev)
	}
	return applied, skipped, nil
}

// CancelBooking membatalkan booking milik userID dan mengembalikan slotnya.
// usage_count kupon sengaja TIDAK dikembalikan: kebijakan anti-abuse supaya
// kode berbatas pakai tidak bisa di-cancel lalu di-apply ulang.
func (s *Service) CancelBooking(ctx context.Context, userID, bookingID, trace string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	b, o, err := s.Store.CancelBookingTx(ctx, bookingID, userID)
	if errors.Is(err, ErrUnavailable) {
		b, o, err = s.Store.CancelBookingTx(ctx, bookingID, userID)
	}
	if err != nil {
		return err
	}
	s.publishCanceled(b, o, trace)
	return nil
}

// CompleteBooking: aksi operator, bukan pemilik; hanya cek state.
func (s *Service) CompleteBooking(ctx context.Context, bookingID string) error {
	_, err := s.Store.CompleteBookingTx(ctx, bookingID)
	if errors.Is(err, ErrUnavailable) {
		_, err = s.Store.CompleteBookingTx(ctx, bookingID)
	}
	return err
}

func (s *Service) GetBooking(ctx context.Context, userID, bookingID string) (*BookingView, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	v, err := s.Store.GetBookingView(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, ErrForbidden
	}
	return v, nil
}

func (s *Service) ListBookings(ctx context.Context, userID string) ([]BookingView, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.Store.ListBookingViews(ctx, userID)
}

func viewOf(b *Booking, offeringName string) *BookingView {
	return &BookingView{
		ID:           b.ID,
		UserID:       b.UserID,
		OfferingID:   b.OfferingID,
		OfferingName: offeringName,
		BookingDate:  b.CreatedAt,
		StartDate:    b.StartDate,
		EndDate:      b.EndDate,
		Qty:          b.Qty,
		TotalCents:   b.TotalCents,
		Notes:        b.Notes,
		Status:       b.Status,
	}
}

func (s *Service) publishConfirmed(v *BookingView, trace string) {
	if s.ProducerConfirmed == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventBookingConfirmed,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: v.ID,
		Payload: kafkax.MustMarshal(BookingConfirmedPayload{
			BookingID:    v.ID,
			UserID:       v.UserID,
			OfferingID:   v.OfferingID,
			OfferingName: v.OfferingName,
			Qty:          v.Qty,
			TotalCents:   v.TotalCents,
			StartDate:    v.StartDate,
			EndDate:      v.EndDate,
		}),
	}
	s.ProducerConfirmed.Publish(PartitionKey(v.UserID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventBookingConfirmed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishCanceled(b *Booking, o *Offering, trace string) {
	if s.ProducerCanceled == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventBookingCanceled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: b.ID,
		Payload: kafkax.MustMarshal(BookingCanceledPayload{
			BookingID:  b.ID,
			UserID:     b.UserID,
			OfferingID: b.OfferingID,
			Qty:        b.Qty,
			SlotsAfter: o.AvailableSlots,
		}),
	}
	s.ProducerCanceled.Publish(PartitionKey(b.UserID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventBookingCanceled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
