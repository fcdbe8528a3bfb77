package service

import (
	"testing"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/model"
	"cinema_booking/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBooking_ReadModel(t *testing.T) {
	f := newFixture(t)
	_, b := paidBooking(t, f, 3*time.Hour, "A1", "A2")

	view, err := f.svc.GetBooking(f.ctx, b.ID, f.actor())
	require.NoError(t, err)
	assert.Equal(t, b.ID, view.ID)
	assert.Equal(t, b.Code, view.Code)
	assert.Equal(t, "Heat", view.Session.MovieTitle)
	assert.Equal(t, []string{"A1", "A2"}, view.Seats)
	require.Len(t, view.Tickets, 2)
	assert.NotZero(t, view.Tickets[0].ID)
	assert.Equal(t, model.PaymentPaid, view.PaymentStatus)

	staffView, err := f.svc.GetBooking(f.ctx, b.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, view.ID, staffView.ID)

	other := f.newCustomer(t, "other@example.com")
	_, err = f.svc.GetBooking(f.ctx, b.ID, Actor{CustomerID: other.ID})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestAssembleBookingView_WithoutSession(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	b := &model.Booking{
		Code:           "BK-1",
		CustomerID:     3,
		SessionID:      9,
		Seats:          []string{"B2"},
		SeatPrice:      1200,
		TotalAmount:    1200,
		RefundedAmount: 600,
		Currency:       "usd",
		Status:         model.BookingActive,
		PaymentStatus:  model.PaymentPaid,
		PaidAt:         &paidAt,
		Tickets:        []model.Ticket{{Code: "TKT-1", SeatLabel: "B2", Price: 1200, Status: model.TicketRefunded}},
	}
	b.ID = 4

	view := AssembleBookingView(b, nil)
	assert.Equal(t, uint(4), view.ID)
	assert.Equal(t, uint(9), view.Session.ID)
	assert.Equal(t, "BK-1", view.Code)
	assert.Equal(t, int64(600), view.RefundedAmount)
	assert.Equal(t, model.PaymentPaid, view.PaymentStatus)
	assert.Equal(t, &paidAt, view.PaidAt)
	assert.NotNil(t, view.Products)
	require.Len(t, view.Tickets, 1)
	assert.Equal(t, "TKT-1", view.Tickets[0].Code)
	assert.Equal(t, model.TicketRefunded, view.Tickets[0].Status)
}

func TestUpdateBooking_ReplaceProductsReopensCheckout(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)
	popcorn := &model.Product{Name: "Popcorn", Price: 450, Active: true}
	require.NoError(t, f.repo.CreateProduct(f.ctx, popcorn))
	res := f.reserve(t, session.ID, "A1")
	old := f.booking(t, res.Booking.ID)
	oldIntent, oldSession := old.PaymentIntentID, old.PaymentSessionID

	products := []model.ProductLineInput{{ProductID: popcorn.ID, Quantity: 2}}
	updated, err := f.svc.UpdateBooking(f.ctx, res.Booking.ID, f.actor(), model.UpdateBookingInput{Products: &products})
	require.NoError(t, err)
	assert.Equal(t, int64(1000+900), updated.Booking.TotalAmount)
	assert.NotEmpty(t, updated.PaymentRedirectURL)
	assert.NotEqual(t, res.PaymentRedirectURL, updated.PaymentRedirectURL)
	assert.Equal(t, payment.SessionExpired, f.gateway.CheckoutStatus(oldSession))

	b := f.booking(t, res.Booking.ID)
	assert.NotEqual(t, oldIntent, b.PaymentIntentID)
	require.Len(t, b.Products, 1)

	// paying the new checkout confirms with the new total
	f.pay(t, b.ID)
	assert.Equal(t, model.PaymentPaid, f.booking(t, b.ID).PaymentStatus)

	_, err = f.svc.UpdateBooking(f.ctx, b.ID, f.actor(), model.UpdateBookingInput{Products: &products})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestUpdateBooking_StaffCompletes(t *testing.T) {
	f := newFixture(t)
	_, b := paidBooking(t, f, 3*time.Hour, "A1")
	completed := model.BookingCompleted

	_, err := f.svc.UpdateBooking(f.ctx, b.ID, f.actor(), model.UpdateBookingInput{Status: &completed})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	res, err := f.svc.UpdateBooking(f.ctx, b.ID, f.staff, model.UpdateBookingInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, res.Booking.Status)

	_, err = f.svc.Cancel(f.ctx, b.ID, f.actor())
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestRemoveBooking(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)

	t.Run("pending booking releases seats", func(t *testing.T) {
		res := f.reserve(t, session.ID, "A1")
		checkout := f.booking(t, res.Booking.ID).PaymentSessionID
		require.NoError(t, f.svc.RemoveBooking(f.ctx, res.Booking.ID, f.actor()))

		_, err := f.svc.GetBooking(f.ctx, res.Booking.ID, f.actor())
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
		assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A1"))
		assert.Equal(t, payment.SessionExpired, f.gateway.CheckoutStatus(checkout))

		// the expiry task was closed with the booking
		f.clock.Advance(10 * time.Minute)
		n, err := f.svc.SweepPending(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("paid booking is kept", func(t *testing.T) {
		res := f.reserve(t, session.ID, "A2")
		f.pay(t, res.Booking.ID)
		err := f.svc.RemoveBooking(f.ctx, res.Booking.ID, f.actor())
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		assert.Equal(t, model.PaymentPaid, f.booking(t, res.Booking.ID).PaymentStatus)
	})
	f.assertSeatsConserved(t, session)
}
