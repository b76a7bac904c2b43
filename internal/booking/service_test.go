package booking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-tour-bookings.git/internal/kafka"
)

// memStore: fake in-memory utk Store + CouponSource. Mutex menggantikan row
// lock database, jadi property concurrency bisa diuji dengan goroutine asli.
type memStore struct {
	mu          sync.Mutex
	offerings   map[string]*Offering
	bookings    map[string]*Booking
	coupons     map[string]*Coupon // key: code
	failCreates int                // CreateBookingTx balas ErrUnavailable selama > 0
}

func newMemStore() *memStore {
	return &memStore{
		offerings: map[string]*Offering{},
		bookings:  map[string]*Booking{},
		coupons:   map[string]*Coupon{},
	}
}

func (m *memStore) addOffering(o Offering) { m.offerings[o.ID] = &o }
func (m *memStore) addCoupon(c Coupon)     { m.coupons[c.Code] = &c }

func (m *memStore) slots(offeringID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offerings[offeringID].AvailableSlots
}

func (m *memStore) usage(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coupons[code].UsageCount
}

func (m *memStore) GetOffering(_ context.Context, id string) (*Offering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offerings[id]
	if !ok {
		return nil, ErrOfferingNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) Evaluate(_ context.Context, code, offeringID string, base int64) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return Evaluation{Code: code, Reason: ReasonNotFound}, nil
	}
	return EvaluateSnapshot(c, offeringID, base), nil
}

func (m *memStore) CreateBookingTx(_ context.Context, b *Booking, applied []Evaluation) (*Offering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreates > 0 {
		m.failCreates--
		return nil, ErrUnavailable
	}
	o, ok := m.offerings[b.OfferingID]
	if !ok {
		return nil, ErrOfferingNotFound
	}
	if !o.Status.Bookable() {
		return nil, ErrOfferingNotOpen
	}
	if o.AvailableSlots < b.Qty {
		return nil, ErrInsufficientCapacity
	}
	// semua guard dicek dulu sebelum mutasi apa pun (ekuivalen rollback)
	for _, ev := range applied {
		c := m.coupons[ev.Code]
		if c == nil || !c.IsActive || c.UsageCount >= c.UsageLimit {
			return nil, &CouponExhaustedError{Code: ev.Code}
		}
	}
	o.AvailableSlots -= b.Qty
	for _, ev := range applied {
		m.coupons[ev.Code].UsageCount++
	}
	cp := *b
	m.bookings[b.ID] = &cp
	ocp := *o
	return &ocp, nil
}

func (m *memStore) CancelBookingTx(_ context.Context, bookingID, userID string) (*Booking, *Offering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, nil, ErrBookingNotFound
	}
	if b.UserID != userID {
		return nil, nil, ErrForbidden
	}
	if b.Status == StatusCanceled {
		return nil, nil, ErrAlreadyCanceled
	}
	if !CanTransition(b.Status, StatusCanceled) {
		return nil, nil, ErrInvalidState
	}
	b.Status = StatusCanceled
	o := m.offerings[b.OfferingID]
	o.AvailableSlots += b.Qty
	if o.AvailableSlots > o.Capacity {
		o.AvailableSlots = o.Capacity
	}
	bc, oc := *b, *o
	return &bc, &oc, nil
}

func (m *memStore) CompleteBookingTx(_ context.Context, bookingID string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if !CanTransition(b.Status, StatusCompleted) {
		return nil, ErrInvalidState
	}
	b.Status = StatusCompleted
	bc := *b
	return &bc, nil
}

func (m *memStore) GetBookingView(_ context.Context, bookingID string) (*BookingView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return viewOf(b, m.offeringName(b.OfferingID)), nil
}

func (m *memStore) ListBookingViews(_ context.Context, userID string) ([]BookingView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BookingView
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, *viewOf(b, m.offeringName(b.OfferingID)))
		}
	}
	return out, nil
}

func (m *memStore) offeringName(id string) string {
	if o := m.offerings[id]; o != nil {
		return o.Name
	}
	return ""
}

type capturePublisher struct {
	mu     sync.Mutex
	keys   [][]byte
	values [][]byte
}

func (p *capturePublisher) Publish(key, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}

func (p *capturePublisher) last() (key, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.values)
	if n == 0 {
		return nil, nil
	}
	return p.keys[n-1], p.values[n-1]
}

func newTestService(ms *memStore) (*Service, *capturePublisher, *capturePublisher) {
	pc, px := &capturePublisher{}, &capturePublisher{}
	return &Service{
		Store:             ms,
		Coupons:           ms,
		ProducerConfirmed: pc,
		ProducerCanceled:  px,
		ServiceName:       "booking-test",
	}, pc, px
}

func openOffering(id string, price int64, capacity int) Offering {
	return Offering{
		ID:             id,
		Name:           "Paket Bromo 3D2N",
		PriceCents:     price,
		Capacity:       capacity,
		AvailableSlots: capacity,
		Status:         OfferingOpen,
	}
}

func createInput(user, offering string, qty int) CreateBookingInput {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return CreateBookingInput{
		UserID:     user,
		OfferingID: offering,
		Qty:        qty,
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 2),
	}
}

func TestCreateBookingReservesSlotsAndPrices(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, pc, _ := newTestService(ms)

	res, err := svc.CreateBooking(context.Background(), createInput("user-1", "off-1", 3))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if res.Booking.TotalCents != 300000 {
		t.Errorf("total = %d, want 300000", res.Booking.TotalCents)
	}
	if res.Booking.Status != StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", res.Booking.Status)
	}
	if res.Booking.OfferingName == "" {
		t.Error("offering name must be resolved in the view")
	}
	if got := ms.slots("off-1"); got != 7 {
		t.Errorf("available slots = %d, want 7", got)
	}
	if pc.count() != 1 {
		t.Errorf("confirmed events = %d, want 1", pc.count())
	}
}

func TestConfirmedEnvelopeRoundTrips(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, pc, _ := newTestService(ms)

	res, err := svc.CreateBooking(context.Background(), createInput("user-7", "off-1", 2))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	key, value := pc.last()
	if string(key) != "user-7" {
		t.Errorf("partition key = %q, want user id", key)
	}
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != EventBookingConfirmed {
		t.Errorf("event_type = %q, want %q", env.EventType, EventBookingConfirmed)
	}
	if env.EventVersion != 1 {
		t.Errorf("event_version = %d, want 1", env.EventVersion)
	}
	if env.CorrelationID != res.Booking.ID {
		t.Errorf("correlation_id = %q, want booking id %q", env.CorrelationID, res.Booking.ID)
	}
	if env.EventID == "" || env.Producer != "booking-test" {
		t.Errorf("event_id/producer not filled: %q / %q", env.EventID, env.Producer)
	}

	p, err := kafkax.UnwrapPayload[BookingConfirmedPayload](env.Payload)
	if err != nil {
		t.Fatalf("unwrap payload: %v", err)
	}
	if p.BookingID != res.Booking.ID || p.UserID != "user-7" {
		t.Errorf("payload ids = %q/%q, want %q/user-7", p.BookingID, p.UserID, res.Booking.ID)
	}
	if p.Qty != 2 || p.TotalCents != 200000 {
		t.Errorf("payload qty/total = %d/%d, want 2/200000", p.Qty, p.TotalCents)
	}
	if p.OfferingName != "Paket Bromo 3D2N" {
		t.Errorf("payload offering_name = %q", p.OfferingName)
	}
}

func TestCanceledEnvelopeCarriesSlotsAfter(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, _, px := newTestService(ms)

	res, err := svc.CreateBooking(context.Background(), createInput("user-7", "off-1", 4))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if err := svc.CancelBooking(context.Background(), "user-7", res.Booking.ID, "trace-1"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	key, value := px.last()
	if string(key) != "user-7" {
		t.Errorf("partition key = %q, want user id", key)
	}
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != EventBookingCanceled {
		t.Errorf("event_type = %q, want %q", env.EventType, EventBookingCanceled)
	}
	if env.TraceID != "trace-1" {
		t.Errorf("trace_id = %q, want trace-1", env.TraceID)
	}
	p, err := kafkax.UnwrapPayload[BookingCanceledPayload](env.Payload)
	if err != nil {
		t.Fatalf("unwrap payload: %v", err)
	}
	if p.BookingID != res.Booking.ID || p.Qty != 4 {
		t.Errorf("payload = %+v", p)
	}
	if p.SlotsAfter != 10 {
		t.Errorf("slots_after = %d, want 10", p.SlotsAfter)
	}
}

func TestCreateBookingInsufficientCapacity(t *testing.T) {
	ms := newMemStore()
	o := openOffering("off-1", 100000, 10)
	o.AvailableSlots = 2
	ms.addOffering(o)
	svc, pc, _ := newTestService(ms)

	_, err := svc.CreateBooking(context.Background(), createInput("user-2", "off-1", 3))
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("err = %v, want ErrInsufficientCapacity", err)
	}
	if got := ms.slots("off-1"); got != 2 {
		t.Errorf("available slots changed to %d on failed booking", got)
	}
	if pc.count() != 0 {
		t.Error("no event may be published for a failed booking")
	}
}

func TestCreateBookingOfferingGuards(t *testing.T) {
	ms := newMemStore()
	closed := openOffering("off-closed", 100000, 5)
	closed.Status = OfferingClosed
	ms.addOffering(closed)
	svc, _, _ := newTestService(ms)

	if _, err := svc.CreateBooking(context.Background(), createInput("u", "off-closed", 1)); !errors.Is(err, ErrOfferingNotOpen) {
		t.Errorf("closed offering: err = %v, want ErrOfferingNotOpen", err)
	}
	if _, err := svc.CreateBooking(context.Background(), createInput("u", "off-missing", 1)); !errors.Is(err, ErrOfferingNotFound) {
		t.Errorf("missing offering: err = %v, want ErrOfferingNotFound", err)
	}
}

func TestCreateBookingInputGuards(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 5))
	svc, _, _ := newTestService(ms)

	in := createInput("", "off-1", 1)
	if _, err := svc.CreateBooking(context.Background(), in); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("missing user: err = %v", err)
	}

	in = createInput("u", "off-1", 0)
	if _, err := svc.CreateBooking(context.Background(), in); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("qty 0: err = %v", err)
	}

	in = createInput("u", "off-1", 1)
	in.EndDate = in.StartDate.AddDate(0, 0, -1)
	if _, err := svc.CreateBooking(context.Background(), in); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("end before start: err = %v", err)
	}
}

func TestCouponAppliedThenExhausted(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-x", 100000, 10))
	ms.addCoupon(Coupon{ID: "c1", Code: "SAVE10", OfferingID: strp("off-x"),
		PercentOff: intp(10), UsageLimit: 1, IsActive: true})
	svc, _, _ := newTestService(ms)

	in := createInput("user-1", "off-x", 1)
	in.CouponCodes = []string{"SAVE10"}
	res, err := svc.CreateBooking(context.Background(), in)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if res.Booking.TotalCents != 90000 {
		t.Errorf("discounted total = %d, want 90000", res.Booking.TotalCents)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", res.Skipped)
	}
	if ms.usage("SAVE10") != 1 {
		t.Errorf("usage_count = %d, want 1", ms.usage("SAVE10"))
	}

	// kupon habis: booking kedua tetap sukses tanpa diskon
	in2 := createInput("user-2", "off-x", 1)
	in2.CouponCodes = []string{"SAVE10"}
	res2, err := svc.CreateBooking(context.Background(), in2)
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}
	if res2.Booking.TotalCents != 100000 {
		t.Errorf("total = %d, want 100000 (no discount)", res2.Booking.TotalCents)
	}
	if len(res2.Skipped) != 1 || res2.Skipped[0].Reason != ReasonExhausted {
		t.Errorf("skipped = %+v, want one entry with usage_limit_reached", res2.Skipped)
	}
	if ms.usage("SAVE10") != 1 {
		t.Errorf("usage_count = %d, must stay 1", ms.usage("SAVE10"))
	}
}

func TestUnknownAndDuplicateCouponsSkipped(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	ms.addCoupon(Coupon{ID: "c1", Code: "SAVE10", PercentOff: intp(10), UsageLimit: 5, IsActive: true})
	svc, _, _ := newTestService(ms)

	in := createInput("u", "off-1", 1)
	in.CouponCodes = []string{"SAVE10", "NOPE", "SAVE10"}
	res, err := svc.CreateBooking(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if res.Booking.TotalCents != 90000 {
		t.Errorf("total = %d, want 90000", res.Booking.TotalCents)
	}
	reasons := map[string]string{}
	for _, ev := range res.Skipped {
		reasons[ev.Reason] = ev.Code
	}
	if reasons[ReasonNotFound] != "NOPE" || reasons[ReasonDuplicate] != "SAVE10" {
		t.Errorf("skipped = %+v", res.Skipped)
	}
	if ms.usage("SAVE10") != 1 {
		t.Errorf("usage_count = %d, want 1", ms.usage("SAVE10"))
	}
}

func TestAmountCouponNeverNegative(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 50000, 10))
	ms.addCoupon(Coupon{ID: "c1", Code: "BIG", AmountOffCents: int64p(80000), UsageLimit: 5, IsActive: true})
	svc, _, _ := newTestService(ms)

	in := createInput("u", "off-1", 1)
	in.CouponCodes = []string{"BIG"}
	res, err := svc.CreateBooking(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if res.Booking.TotalCents != 0 {
		t.Errorf("total = %d, want 0", res.Booking.TotalCents)
	}
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, _, _ := newTestService(ms)

	ms.failCreates = 1
	if _, err := svc.CreateBooking(context.Background(), createInput("u", "off-1", 1)); err != nil {
		t.Fatalf("one transient failure must be retried: %v", err)
	}

	ms.failCreates = 2
	if _, err := svc.CreateBooking(context.Background(), createInput("u", "off-1", 1)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("persistent failure: err = %v, want ErrUnavailable", err)
	}
}

func TestCancelRestoresCapacityOnce(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, _, px := newTestService(ms)

	res, err := svc.CreateBooking(context.Background(), createInput("user-1", "off-1", 3))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if got := ms.slots("off-1"); got != 7 {
		t.Fatalf("slots after create = %d", got)
	}

	if err := svc.CancelBooking(context.Background(), "user-1", res.Booking.ID, ""); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if got := ms.slots("off-1"); got != 10 {
		t.Errorf("slots after cancel = %d, want 10", got)
	}
	if px.count() != 1 {
		t.Errorf("canceled events = %d, want 1", px.count())
	}

	// cancel kedua: AlreadyCanceled, slot tidak naik lagi
	err = svc.CancelBooking(context.Background(), "user-1", res.Booking.ID, "")
	if !errors.Is(err, ErrAlreadyCanceled) {
		t.Fatalf("second cancel: err = %v, want ErrAlreadyCanceled", err)
	}
	if got := ms.slots("off-1"); got != 10 {
		t.Errorf("slots after double cancel = %d, want 10", got)
	}
	if px.count() != 1 {
		t.Errorf("canceled events after double cancel = %d, want 1", px.count())
	}
}

func TestCancelGuards(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, _, _ := newTestService(ms)

	res, err := svc.CreateBooking(context.Background(), createInput("owner", "off-1", 2))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	if err := svc.CancelBooking(context.Background(), "intruder", res.Booking.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("wrong owner: err = %v, want ErrForbidden", err)
	}
	if err := svc.CancelBooking(context.Background(), "owner", "missing", ""); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("missing booking: err = %v, want ErrBookingNotFound", err)
	}

	// booking completed tidak bisa dibatalkan, slot tidak berubah
	if err := svc.CompleteBooking(context.Background(), res.Booking.ID); err != nil {
		t.Fatalf("CompleteBooking: %v", err)
	}
	if err := svc.CancelBooking(context.Background(), "owner", res.Booking.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancel completed: err = %v, want ErrInvalidState", err)
	}
	if got := ms.slots("off-1"); got != 8 {
		t.Errorf("slots = %d, want 8 (unchanged)", got)
	}
}

func TestGetBookingOwnership(t *testing.T) {
	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 10))
	svc, _, _ := newTestService(ms)

	res, err := svc.CreateBooking(context.Background(), createInput("owner", "off-1", 1))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if _, err := svc.GetBooking(context.Background(), "owner", res.Booking.ID); err != nil {
		t.Errorf("owner read: %v", err)
	}
	if _, err := svc.GetBooking(context.Background(), "intruder", res.Booking.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("intruder read: err = %v, want ErrForbidden", err)
	}
}

func TestConcurrentCreateNeverOversells(t *testing.T) {
	const capacity = 10
	const attempts = 25

	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, capacity))
	svc, pc, _ := newTestService(ms)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), createInput("user", "off-1", 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientCapacity):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != capacity {
		t.Errorf("succeeded = %d, want exactly %d", succeeded, capacity)
	}
	if rejected != attempts-capacity {
		t.Errorf("rejected = %d, want %d", rejected, attempts-capacity)
	}
	if got := ms.slots("off-1"); got != 0 {
		t.Errorf("remaining slots = %d, want 0", got)
	}
	if pc.count() != capacity {
		t.Errorf("confirmed events = %d, want %d", pc.count(), capacity)
	}
}

func TestConcurrentCouponNeverOverRedeemed(t *testing.T) {
	const limit = 3
	const attempts = 10

	ms := newMemStore()
	ms.addOffering(openOffering("off-1", 100000, 100))
	ms.addCoupon(Coupon{ID: "c1", Code: "LIMITED", PercentOff: intp(50), UsageLimit: limit, IsActive: true})
	svc, _, _ := newTestService(ms)

	var wg sync.WaitGroup
	var mu sync.Mutex
	discounted, full := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := createInput("user", "off-1", 1)
			in.CouponCodes = []string{"LIMITED"}
			res, err := svc.CreateBooking(context.Background(), in)
			if err != nil {
				t.Errorf("booking must not fail on coupon race: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Booking.TotalCents == 50000 {
				discounted++
			} else {
				full++
			}
		}()
	}
	wg.Wait()

	if ms.usage("LIMITED") != limit {
		t.Errorf("usage_count = %d, want %d", ms.usage("LIMITED"), limit)
	}
	if discounted != limit {
		t.Errorf("discounted bookings = %d, want %d", discounted, limit)
	}
	if full != attempts-limit {
		t.Errorf("full-price bookings = %d, want %d", full, attempts-limit)
	}
}
