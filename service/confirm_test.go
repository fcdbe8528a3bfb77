package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/model"
	"cinema_booking/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmPayment_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 2, 2, 3*time.Hour)
	res := f.reserve(t, session.ID, "A1", "A2")

	payload, signature := f.pay(t, res.Booking.ID)
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))

	b := f.booking(t, res.Booking.ID)
	assert.Equal(t, model.PaymentPaid, b.PaymentStatus)
	assert.NotNil(t, b.PaidAt)
	require.Len(t, b.Tickets, 2)
	for _, ticket := range b.Tickets {
		assert.Equal(t, model.TicketBooked, ticket.Status)
		assert.NotEmpty(t, ticket.QRPayload)
		assert.Equal(t, int64(1000), ticket.Price)
	}
	assert.Equal(t, model.SeatOccupied, f.seatStatus(t, session.ID, "A1"))
	assert.Equal(t, model.SeatOccupied, f.seatStatus(t, session.ID, "A2"))

	assert.Equal(t, 1, f.mail.confirmationCount())
	assert.Len(t, f.mail.confirmations[0].Tickets, 2)

	customer, err := f.repo.GetCustomer(f.ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), customer.LoyaltyPoints)

	rows, err := f.reports.List(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ReportPayment, rows[0].Kind)
	assert.Equal(t, int64(2000), rows[0].Amount)
	assert.Equal(t, []string{constants.EVENT_BOOKING_CONFIRMED}, f.events.keys)

	f.assertSeatsConserved(t, session)
}

func TestConfirmPayment_DistinctEventsForSamePayment(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)
	res := f.reserve(t, session.ID, "A1")
	f.pay(t, res.Booking.ID)

	// a checkout-completed event for the same payment arrives with its own id
	b := f.booking(t, res.Booking.ID)
	_, err := f.svc.ConfirmPayment(f.ctx, b.ID, PaymentSucceeded{
		EventID:         "evt_other",
		PaymentIntentID: b.PaymentIntentID,
		Amount:          b.TotalAmount,
		Currency:        "usd",
	})
	require.NoError(t, err)

	assert.Len(t, f.booking(t, b.ID).Tickets, 1)
	assert.Equal(t, 1, f.mail.confirmationCount())
}

func TestConfirmPayment_AmountMismatchKeepsBookingPending(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)
	res := f.reserve(t, session.ID, "A1")
	b := f.booking(t, res.Booking.ID)

	payload, err := json.Marshal(map[string]any{
		"id":              "evt_short",
		"type":            payment.EventIntentSucceeded,
		"bookingId":       b.ID,
		"paymentIntentId": b.PaymentIntentID,
		"amount":          1,
		"currency":        "usd",
	})
	require.NoError(t, err)

	err = f.svc.HandleGatewayEvent(f.ctx, payload, f.gateway.Sign(payload))
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	b = f.booking(t, b.ID)
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)
	assert.Empty(t, b.Tickets)
	assert.Equal(t, model.SeatReserved, f.seatStatus(t, session.ID, "A1"))
	assert.Equal(t, 0, f.mail.confirmationCount())
}

func TestHandleGatewayEvent_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	err := f.svc.HandleGatewayEvent(f.ctx, []byte(`{"id":"evt_1"}`), "deadbeef")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestHandleGatewayEvent_UnknownBookingIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	payload, err := json.Marshal(map[string]any{
		"id":        "evt_ghost",
		"type":      payment.EventIntentSucceeded,
		"bookingId": 4242,
		"amount":    1000,
		"currency":  "usd",
	})
	require.NoError(t, err)
	assert.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, f.gateway.Sign(payload)))
}

func TestConfirmPayment_LateSuccessAfterExpiryIsRefunded(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 2, 3*time.Hour)
	res := f.reserve(t, session.ID, "A1")
	intentID := f.booking(t, res.Booking.ID).PaymentIntentID

	f.clock.Advance(6 * time.Minute)
	n, err := f.svc.SweepPending(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	payload, signature, err := f.gateway.Succeed(intentID)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))

	b := f.booking(t, res.Booking.ID)
	assert.Equal(t, model.PaymentCancelled, b.PaymentStatus)
	assert.Empty(t, b.Tickets)
	assert.Equal(t, int64(1000), f.gateway.Refunded(intentID))
	assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A1"))

	rows, err := f.reports.List(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.ReportRefund, rows[1].Kind)

	// replaying the late event does not refund twice
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))
	assert.Equal(t, int64(1000), f.gateway.Refunded(intentID))
}

// expireAfterRead runs expire right after the first booking read, the window between
// the unlocked status check and the confirmation transaction.
type expireAfterRead struct {
	*database.MemoryRepository
	once   sync.Once
	expire func()
}

func (r *expireAfterRead) GetBooking(ctx context.Context, id uint) (*model.Booking, error) {
	b, err := r.MemoryRepository.GetBooking(ctx, id)
	r.once.Do(r.expire)
	return b, err
}

func TestConfirmPayment_ExpiryBetweenReadAndLockIsRefunded(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 4, 3*time.Hour)
	res := f.reserve(t, session.ID, "A1", "A2")
	intentID := f.booking(t, res.Booking.ID).PaymentIntentID

	sweeper := f.svc
	repo := &expireAfterRead{
		MemoryRepository: f.repo,
		expire: func() {
			released, err := sweeper.releasePending(f.ctx, res.Booking.ID, f.clock.Now())
			require.NoError(t, err)
			require.NotNil(t, released)
		},
	}
	f.rebuild(repo, f.gateway)

	payload, signature, err := f.gateway.Succeed(intentID)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))

	b := f.booking(t, res.Booking.ID)
	assert.Equal(t, model.PaymentCancelled, b.PaymentStatus)
	assert.Equal(t, model.BookingCancelled, b.Status)
	assert.Empty(t, b.Tickets)
	assert.Equal(t, int64(2000), f.gateway.Refunded(intentID))
	assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A1"))
	assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A2"))

	// the redelivery takes the unlocked path and refunds nothing more
	require.NoError(t, f.svc.HandleGatewayEvent(f.ctx, payload, signature))
	assert.Equal(t, int64(2000), f.gateway.Refunded(intentID))
}
