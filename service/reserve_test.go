package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/model"
	"cinema_booking/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve_TwoSeatScenario(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)

	first := f.reserve(t, session.ID, "A1")
	assert.Equal(t, model.PaymentPending, first.Booking.PaymentStatus)
	assert.Equal(t, model.BookingActive, first.Booking.Status)
	assert.Equal(t, int64(1000), first.Booking.TotalAmount)
	assert.NotEmpty(t, first.PaymentRedirectURL)
	assert.Equal(t, model.SeatReserved, f.seatStatus(t, session.ID, "A1"))
	assert.Equal(t, model.SessionAvailable, f.session(t, session.ID).Status)

	f.reserve(t, session.ID, "A2")
	assert.Equal(t, model.SessionSoldOut, f.session(t, session.ID).Status)

	_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"A1"}})
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, []string{"A1"}, apperror.DetailsOf(err))

	f.assertSeatsConserved(t, session)
}

func TestReserve_ConcurrentRequestsForSameSeat(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 2, 2, 3*time.Hour)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"B2", "A1"}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperror.Is(err, apperror.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
	reserved, err := f.repo.CountSeats(f.ctx, session.ID, model.SeatReserved)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reserved)
	f.assertSeatsConserved(t, session)
}

func TestReserve_Rejections(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 2, 2, 3*time.Hour)

	t.Run("unknown session", func(t *testing.T) {
		_, err := f.svc.Reserve(f.ctx, 9999, f.customer.ID, model.CreateBookingInput{Seats: []string{"A1"}})
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	})

	t.Run("unknown seat", func(t *testing.T) {
		_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"A1", "Z9"}})
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		assert.Equal(t, []string{"Z9"}, apperror.DetailsOf(err))
	})

	t.Run("duplicate seat", func(t *testing.T) {
		_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"a1", "A1"}})
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("inactive product", func(t *testing.T) {
		p := &model.Product{Name: "Old popcorn", Price: 300, Active: false}
		require.NoError(t, f.repo.CreateProduct(f.ctx, p))
		_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{
			Seats:    []string{"A1"},
			Products: []model.ProductLineInput{{ProductID: p.ID, Quantity: 1}},
		})
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	})

	t.Run("session started", func(t *testing.T) {
		f.clock.Advance(4 * time.Hour)
		defer f.clock.Advance(-4 * time.Hour)
		_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"A1"}})
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	})

	// nothing was persisted by the rejected attempts
	available, err := f.repo.CountSeats(f.ctx, session.ID, model.SeatAvailable)
	require.NoError(t, err)
	assert.Equal(t, int64(4), available)
}

func TestReserve_TotalIncludesProducts(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 3, 3*time.Hour)
	popcorn := &model.Product{Name: "Popcorn", Price: 450, Active: true}
	soda := &model.Product{Name: "Soda", Price: 250, Active: true}
	require.NoError(t, f.repo.CreateProduct(f.ctx, popcorn))
	require.NoError(t, f.repo.CreateProduct(f.ctx, soda))

	res, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{
		Seats: []string{"A1", "A2"},
		Products: []model.ProductLineInput{
			{ProductID: popcorn.ID, Quantity: 1},
			{ProductID: soda.ID, Quantity: 2},
			{ProductID: popcorn.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2*1000+2*450+2*250), res.Booking.TotalAmount)
	require.Len(t, res.Booking.Products, 2)
	assert.Equal(t, 2, res.Booking.Products[0].Quantity)
}

func TestReserve_GatewayFailureLeavesBookingForSweep(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)
	f.gateway.FailOn(payment.OpOpenSession, errors.New("connection refused"))

	_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"A1"}})
	require.Error(t, err)
	assert.Equal(t, apperror.KindServiceUnavailable, apperror.KindOf(err))
	assert.Equal(t, model.SeatReserved, f.seatStatus(t, session.ID, "A1"))

	f.clock.Advance(6 * time.Minute)
	n, err := f.svc.SweepPending(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A1"))
	assert.Equal(t, 0, f.gateway.Calls(payment.OpCancel))
}
