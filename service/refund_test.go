package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/model"
	"cinema_booking/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		startIn time.Duration
		percent int
		refused bool
	}{
		{"three hours", 3 * time.Hour, 100, false},
		{"just over two hours", 2*time.Hour + time.Second, 100, false},
		{"exactly two hours", 2 * time.Hour, 50, false},
		{"one hour", time.Hour, 50, false},
		{"thirty one minutes", 31 * time.Minute, 50, false},
		{"exactly thirty minutes", 30 * time.Minute, 0, true},
		{"ten minutes", 10 * time.Minute, 0, true},
		{"already started", -time.Minute, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			percent, err := RefundPolicy(now.Add(tc.startIn), now)
			if tc.refused {
				require.Error(t, err)
				assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
				assert.Equal(t, constants.REFUND_WINDOW_CLOSED, apperror.MessageOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.percent, percent)
		})
	}
}

func TestRefundAmount(t *testing.T) {
	assert.Equal(t, int64(1000), refundAmount(4000, 0, 1, 4, 100))
	assert.Equal(t, int64(3000), refundAmount(4000, 0, 3, 4, 100))
	assert.Equal(t, int64(500), refundAmount(4000, 0, 1, 4, 50))
	assert.Equal(t, int64(323), refundAmount(1940, 0, 1, 3, 50))
	assert.Equal(t, int64(0), refundAmount(4000, 0, 1, 0, 100))
	assert.Equal(t, int64(0), refundAmount(4000, 3, 2, 4, 100))

	// one seat at a time adds up to the whole net amount
	var sum int64
	for before, want := range []int64{333, 334, 334} {
		got := refundAmount(1001, before, 1, 3, 100)
		assert.Equal(t, want, got)
		sum += got
	}
	assert.Equal(t, int64(1001), sum)
	assert.Equal(t, refundAmount(1001, 0, 3, 3, 100), sum)
}

// paidBooking reserves and pays for seats on a session starting startIn from now.
func paidBooking(t *testing.T, f *fixture, startIn time.Duration, seats ...string) (*model.Session, *model.Booking) {
	t.Helper()
	session := f.newSession(t, 1, 4, startIn)
	res := f.reserve(t, session.ID, seats...)
	f.pay(t, res.Booking.ID)
	return session, f.booking(t, res.Booking.ID)
}

func TestCancel_PolicyWindows(t *testing.T) {
	t.Run("three hours ahead refunds the full net amount", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.SetFee(300)
		session, b := paidBooking(t, f, 3*time.Hour, "A1", "A2")

		res, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
		require.NoError(t, err)
		assert.Equal(t, 100, res.Percent)
		assert.Equal(t, int64(1940), res.Amount)
		assert.Equal(t, model.BookingCancelled, res.BookingStatus)
		assert.Equal(t, model.PaymentRefunded, res.PaymentStatus)
		assert.Len(t, res.RefundedTickets, 2)
		assert.Equal(t, int64(1940), f.gateway.Refunded(b.PaymentIntentID))

		assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A1"))
		assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, "A2"))
		for _, ticket := range f.booking(t, b.ID).Tickets {
			assert.Equal(t, model.TicketRefunded, ticket.Status)
		}
		require.Len(t, f.mail.refunds, 1)
		f.assertSeatsConserved(t, session)
	})

	t.Run("one hour ahead refunds half", func(t *testing.T) {
		f := newFixture(t)
		_, b := paidBooking(t, f, time.Hour, "A1", "A2")

		res, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
		require.NoError(t, err)
		assert.Equal(t, 50, res.Percent)
		assert.Equal(t, int64(1000), res.Amount)
		assert.Equal(t, model.PaymentRefunded, res.PaymentStatus)
	})

	t.Run("ten minutes ahead is refused without changes", func(t *testing.T) {
		f := newFixture(t)
		session, b := paidBooking(t, f, 10*time.Minute, "A1")

		_, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
		require.Error(t, err)
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		assert.Equal(t, constants.REFUND_WINDOW_CLOSED, apperror.MessageOf(err))

		after := f.booking(t, b.ID)
		assert.Equal(t, model.PaymentPaid, after.PaymentStatus)
		assert.Equal(t, model.BookingActive, after.Status)
		assert.Equal(t, model.SeatOccupied, f.seatStatus(t, session.ID, "A1"))
		assert.Equal(t, 0, f.gateway.Calls(payment.OpRefund))
	})
}

func TestCancel_StateGate(t *testing.T) {
	f := newFixture(t)
	session := f.newSession(t, 1, 4, 3*time.Hour)
	pending := f.reserve(t, session.ID, "A1")

	_, err := f.svc.Cancel(f.ctx, pending.Booking.ID, f.actor())
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, constants.BOOKING_NOT_PAID, apperror.MessageOf(err))

	_, b := paidBooking(t, f, 3*time.Hour, "A1")
	_, err = f.svc.Cancel(f.ctx, b.ID, f.actor())
	require.NoError(t, err)

	_, err = f.svc.Cancel(f.ctx, b.ID, f.actor())
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	other := f.newCustomer(t, "mallory@example.com")
	_, err = f.svc.Cancel(f.ctx, pending.Booking.ID, Actor{CustomerID: other.ID})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestRefundTickets_PartialThenRest(t *testing.T) {
	f := newFixture(t)
	session, b := paidBooking(t, f, 3*time.Hour, "A1", "A2", "A3", "A4")
	require.Equal(t, int64(4000), b.TotalAmount)
	require.Len(t, b.Tickets, 4)

	res, err := f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{b.Tickets[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Amount)
	assert.Equal(t, model.BookingActive, res.BookingStatus)
	assert.Equal(t, model.PaymentPaid, res.PaymentStatus)
	assert.Equal(t, model.SeatAvailable, f.seatStatus(t, session.ID, b.Tickets[0].SeatLabel))
	assert.Equal(t, model.SeatOccupied, f.seatStatus(t, session.ID, b.Tickets[1].SeatLabel))

	// the refunded ticket cannot be refunded again
	_, err = f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{b.Tickets[0].ID})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	rest := []uint{b.Tickets[1].ID, b.Tickets[2].ID, b.Tickets[3].ID}
	res, err = f.svc.RefundTickets(f.ctx, b.ID, f.actor(), rest)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.Amount)
	assert.Equal(t, model.BookingCancelled, res.BookingStatus)
	assert.Equal(t, model.PaymentRefunded, res.PaymentStatus)

	after := f.booking(t, b.ID)
	assert.Equal(t, int64(4000), after.RefundedAmount)
	assert.Equal(t, int64(4000), f.gateway.Refunded(b.PaymentIntentID))
	assert.Equal(t, model.SessionAvailable, f.session(t, session.ID).Status)
	f.assertSeatsConserved(t, session)
}

func TestRefundTickets_UnknownTicket(t *testing.T) {
	f := newFixture(t)
	_, b := paidBooking(t, f, 3*time.Hour, "A1")

	_, err := f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{b.Tickets[0].ID, 987654})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Equal(t, []string{"987654"}, apperror.DetailsOf(err))
}

func TestRefund_GatewayFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	session, b := paidBooking(t, f, 3*time.Hour, "A1", "A2")
	f.gateway.FailOn(payment.OpRefund, errors.New("card network down"))

	_, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
	require.Error(t, err)
	assert.Equal(t, apperror.KindServiceUnavailable, apperror.KindOf(err))

	_, err = f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{b.Tickets[0].ID})
	assert.Equal(t, apperror.KindServiceUnavailable, apperror.KindOf(err))

	after := f.booking(t, b.ID)
	assert.Equal(t, model.PaymentPaid, after.PaymentStatus)
	assert.Equal(t, model.BookingActive, after.Status)
	assert.Zero(t, after.RefundedAmount)
	for _, ticket := range after.Tickets {
		assert.Equal(t, model.TicketBooked, ticket.Status)
	}
	assert.Equal(t, model.SeatOccupied, f.seatStatus(t, session.ID, "A1"))
	assert.Equal(t, model.SeatOccupied, f.seatStatus(t, session.ID, "A2"))
	assert.Zero(t, f.gateway.Refunded(b.PaymentIntentID))
}

func TestRefundTickets_OneByOneRefundsWholeNet(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetFee(17)
	_, b := paidBooking(t, f, 3*time.Hour, "A1", "A2", "A3")
	require.Equal(t, int64(3000), b.TotalAmount)

	var amounts []int64
	for _, ticket := range b.Tickets {
		res, err := f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{ticket.ID})
		require.NoError(t, err)
		amounts = append(amounts, res.Amount)
	}
	assert.Equal(t, []int64{998, 998, 999}, amounts)

	after := f.booking(t, b.ID)
	assert.Equal(t, int64(2995), after.RefundedAmount)
	assert.Equal(t, int64(2995), f.gateway.Refunded(b.PaymentIntentID))
	assert.Equal(t, model.PaymentRefunded, after.PaymentStatus)
}

// heldRefunds parks the first CreateRefund call until release is closed.
type heldRefunds struct {
	*payment.SandboxGateway
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func holdRefunds(g *payment.SandboxGateway) *heldRefunds {
	return &heldRefunds{
		SandboxGateway: g,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (g *heldRefunds) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.SandboxGateway.CreateRefund(ctx, req)
}

type refundOutcome struct {
	res *model.RefundResult
	err error
}

func TestRefund_CancelInFlightBlocksPartialRefund(t *testing.T) {
	f := newFixture(t)
	held := holdRefunds(f.gateway)
	f.useGateway(held)
	session, b := paidBooking(t, f, 3*time.Hour, "A1", "A2")

	done := make(chan refundOutcome, 1)
	go func() {
		res, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
		done <- refundOutcome{res, err}
	}()
	<-held.entered

	for _, ticket := range f.booking(t, b.ID).Tickets {
		assert.Equal(t, model.TicketRefunding, ticket.Status)
	}
	_, err := f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{b.Tickets[0].ID})
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	close(held.release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, int64(2000), out.res.Amount)

	after := f.booking(t, b.ID)
	assert.Equal(t, int64(2000), after.RefundedAmount)
	assert.Equal(t, after.RefundedAmount, f.gateway.Refunded(b.PaymentIntentID))
	assert.Equal(t, 1, f.gateway.Calls(payment.OpRefund))
	assert.Equal(t, model.PaymentRefunded, after.PaymentStatus)
	f.assertSeatsConserved(t, session)
}

func TestRefund_PartialInFlightBlocksCancel(t *testing.T) {
	f := newFixture(t)
	held := holdRefunds(f.gateway)
	f.useGateway(held)
	_, b := paidBooking(t, f, 3*time.Hour, "A1", "A2")

	done := make(chan refundOutcome, 1)
	go func() {
		res, err := f.svc.RefundTickets(f.ctx, b.ID, f.actor(), []uint{b.Tickets[0].ID})
		done <- refundOutcome{res, err}
	}()
	<-held.entered

	_, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, constants.REFUND_IN_PROGRESS, apperror.MessageOf(err))

	close(held.release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, int64(1000), out.res.Amount)

	res, err := f.svc.Cancel(f.ctx, b.ID, f.actor())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Amount)

	after := f.booking(t, b.ID)
	assert.Equal(t, int64(2000), after.RefundedAmount)
	assert.Equal(t, after.RefundedAmount, f.gateway.Refunded(b.PaymentIntentID))
}

func TestClaimTickets_FullCancelWaitsForPendingClaim(t *testing.T) {
	f := newFixture(t)
	_, b := paidBooking(t, f, 3*time.Hour, "A1", "A2")

	before, remaining, err := f.svc.claimTickets(f.ctx, b.ID, b.Tickets[:1], false)
	require.NoError(t, err)
	assert.Zero(t, before)
	assert.Equal(t, int64(2000), remaining)

	// a cancel that read the booking before the claim still loses under the lock
	_, _, err = f.svc.claimTickets(f.ctx, b.ID, b.Tickets[1:], true)
	assert.Equal(t, constants.REFUND_IN_PROGRESS, apperror.MessageOf(err))

	_, _, err = f.svc.claimTickets(f.ctx, b.ID, b.Tickets[:1], false)
	assert.Equal(t, constants.TICKET_NOT_REFUNDABLE, apperror.MessageOf(err))

	before, _, err = f.svc.claimTickets(f.ctx, b.ID, b.Tickets[1:], false)
	require.NoError(t, err)
	assert.Equal(t, 1, before)

	f.svc.releaseClaim(f.ctx, b.ID, b.Tickets)
	for _, ticket := range f.booking(t, b.ID).Tickets {
		assert.Equal(t, model.TicketBooked, ticket.Status)
	}
}
