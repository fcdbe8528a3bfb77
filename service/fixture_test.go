package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"cinema_booking/database"
	"cinema_booking/mailer"
	"cinema_booking/model"
	"cinema_booking/payment"
	"cinema_booking/reports"
	"cinema_booking/ticketing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu            sync.Mutex
	confirmations []mailer.Confirmation
	refunds       []mailer.RefundNotice
}

func (m *recordingMailer) SendBookingConfirmation(_ context.Context, c mailer.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, c)
	return nil
}

func (m *recordingMailer) SendRefundNotice(_ context.Context, n mailer.RefundNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, n)
	return nil
}

func (m *recordingMailer) confirmationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.confirmations)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx      context.Context
	repo     *database.MemoryRepository
	gateway  *payment.SandboxGateway
	signer   *ticketing.Signer
	mail     *recordingMailer
	events   *recordingPublisher
	reports  *reports.RepositoryStore
	clock    *clock
	svc      *BookingService
	customer *model.Customer
	staff    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		repo:    database.NewMemoryRepository(),
		gateway: payment.NewSandboxGateway("whsec_sandbox", "http://localhost:8002"),
		mail:    &recordingMailer{},
		events:  &recordingPublisher{},
		clock:   &clock{now: time.Now()},
		staff:   Actor{Staff: true},
	}
	f.reports = reports.NewRepositoryStore(f.repo)

	signer, err := ticketing.NewSigner("ticket-secret")
	require.NoError(t, err)
	f.signer = signer
	f.useGateway(f.gateway)

	f.customer = f.newCustomer(t, "jane@example.com")
	return f
}

// useGateway rebuilds the service on top of g, keeping repository and clock.
func (f *fixture) useGateway(g payment.Gateway) {
	f.rebuild(f.repo, g)
}

func (f *fixture) rebuild(repo database.Repository, g payment.Gateway) {
	f.svc = NewBookingService(repo, g, f.signer, Options{
		PaymentTimeout:       5 * time.Minute,
		Currency:             "usd",
		LoyaltyCentsPerPoint: 100,
		AppURL:               "http://localhost:3000",
	},
		WithMailer(f.mail),
		WithEvents(f.events),
		WithReports(f.reports),
		WithClock(f.clock.Now),
	)
}

func (f *fixture) newCustomer(t *testing.T, email string) *model.Customer {
	t.Helper()
	c := &model.Customer{Email: email, FullName: "Jane Doe"}
	require.NoError(t, f.repo.CreateCustomer(f.ctx, c))
	return c
}

func (f *fixture) actor() Actor {
	return Actor{CustomerID: f.customer.ID}
}

// newSession creates a rows x cols session starting startIn from the fixture clock.
func (f *fixture) newSession(t *testing.T, rows, cols int, startIn time.Duration) *model.Session {
	t.Helper()
	start := f.clock.Now().Add(startIn)
	s, err := f.svc.CreateSession(f.ctx, model.CreateSessionInput{
		MovieTitle: "Heat",
		RoomName:   "Room 1",
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		Price:      1000,
		Currency:   "usd",
		Rows:       rows,
		Columns:    cols,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) reserve(t *testing.T, sessionID uint, seats ...string) *model.ReservationResult {
	t.Helper()
	res, err := f.svc.Reserve(f.ctx, sessionID, f.customer.ID, model.CreateBookingInput{Seats: seats})
	require.NoError(t, err)
	return res
}

// pay settles the booking's payment intent and delivers the webhook.
func (f *fixture) pay(t *testing.T, bookingID uint) (payload []byte, signature string) {
	t.Helper()
	b, err := f.repo.GetBooking(f.ctx, bookingID)
	require.NoError(t, err)
	payload, signature, err = f.gateway.Succeed(b.PaymentIntentID)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))
	return payload, signature
}

func (f *fixture) booking(t *testing.T, id uint) *model.Booking {
	t.Helper()
	b, err := f.repo.GetBooking(f.ctx, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) session(t *testing.T, id uint) *model.Session {
	t.Helper()
	s, err := f.repo.GetSession(f.ctx, id)
	require.NoError(t, err)
	return s
}

func (f *fixture) seatStatus(t *testing.T, sessionID uint, label string) model.SeatStatus {
	t.Helper()
	seats, err := f.repo.ListSeats(f.ctx, sessionID)
	require.NoError(t, err)
	for _, s := range seats {
		if s.Label == label {
			return s.Status
		}
	}
	t.Fatalf("seat %s not found", label)
	return ""
}

// assertSeatsConserved checks that no seat was lost or duplicated.
func (f *fixture) assertSeatsConserved(t *testing.T, session *model.Session) {
	t.Helper()
	seats, err := f.repo.ListSeats(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Capacity(), model.CountSeats(seats).Total())
	assert.Len(t, seats, session.Capacity())
}
