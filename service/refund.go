package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/logger"
	"cinema_booking/mailer"
	"cinema_booking/model"
	"cinema_booking/payment"
	"cinema_booking/queue"

	"go.uber.org/zap"
)

const (
	fullRefundBefore    = 2 * time.Hour
	partialRefundBefore = 30 * time.Minute
)

// RefundPolicy returns the refundable percentage of the net amount for a session
// starting at start, evaluated at now:
//
//	more than 2h ahead        100
//	more than 30min, up to 2h  50
//	30min or less             refused
func RefundPolicy(start, now time.Time) (int, error) {
	delta := start.Sub(now)
	switch {
	case delta > fullRefundBefore:
		return 100, nil
	case delta > partialRefundBefore:
		return 50, nil
	default:
		return 0, apperror.Conflict(constants.REFUND_WINDOW_CLOSED,
			fmt.Sprintf("session starts in %s", delta.Round(time.Minute)))
	}
}

// refundAmount is the share of net for count seats after before seats were already
// refunded, times percent / 100, in minor units. Shares are taken as differences of
// rounded-down cumulative shares, so refunding every seat one by one at a single
// percentage pays back exactly what one full refund would.
func refundAmount(net int64, before, count, total, percent int) int64 {
	if total <= 0 || count <= 0 || before < 0 || before+count > total {
		return 0
	}
	share := func(k int) int64 { return net * int64(k) / int64(total) }
	return (share(before+count) - share(before)) * int64(percent) / 100
}

func refundable(b *model.Booking) error {
	switch {
	case b.Closed():
		return apperror.Conflict(constants.BOOKING_ALREADY_CLOSED, string(b.Status))
	case b.PaymentStatus == model.PaymentRefunded:
		return apperror.Conflict(constants.BOOKING_REFUNDED)
	case b.PaymentStatus != model.PaymentPaid:
		return apperror.Conflict(constants.BOOKING_NOT_PAID, string(b.PaymentStatus))
	}
	return nil
}

// Cancel refunds every remaining ticket of a paid booking under the time policy and
// closes the booking.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint, actor Actor) (*model.RefundResult, error) {
	booking, err := s.ownedBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if err := refundable(booking); err != nil {
		return nil, err
	}
	var selected []model.Ticket
	for _, t := range booking.Tickets {
		switch t.Status {
		case model.TicketUsed:
			return nil, apperror.Conflict(constants.TICKET_ALREADY_USED, t.Code)
		case model.TicketRefunding:
			return nil, apperror.Conflict(constants.REFUND_IN_PROGRESS, t.Code)
		case model.TicketBooked:
			selected = append(selected, t)
		}
	}
	return s.refund(ctx, booking, selected, true)
}

// RefundTickets refunds selected tickets of a paid booking. The booking closes once no
// ticket is left to refund.
func (s *BookingService) RefundTickets(ctx context.Context, bookingID uint, actor Actor, ticketIDs []uint) (*model.RefundResult, error) {
	if len(ticketIDs) == 0 {
		return nil, apperror.Validation(constants.ERROR_INPUT, "ticketIds must not be empty")
	}
	booking, err := s.ownedBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if err := refundable(booking); err != nil {
		return nil, err
	}

	byID := make(map[uint]model.Ticket, len(booking.Tickets))
	for _, t := range booking.Tickets {
		byID[t.ID] = t
	}
	seen := map[uint]bool{}
	var (
		selected   []model.Ticket
		missing    []string
		ineligible []string
	)
	for _, id := range ticketIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		t, ok := byID[id]
		if !ok {
			missing = append(missing, strconv.FormatUint(uint64(id), 10))
			continue
		}
		if !t.Refundable() {
			ineligible = append(ineligible, fmt.Sprintf("%s (%s)", t.Code, t.Status))
			continue
		}
		selected = append(selected, t)
	}
	if len(missing) > 0 {
		return nil, apperror.Validation(constants.TICKET_NOT_FOUND, missing...)
	}
	if len(ineligible) > 0 {
		return nil, apperror.Conflict(constants.TICKET_NOT_REFUNDABLE, ineligible...)
	}
	return s.refund(ctx, booking, selected, false)
}

func refundKey(bookingID uint, tickets []model.Ticket, percent int) string {
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, strconv.FormatUint(uint64(t.ID), 10))
	}
	sort.Strings(ids)
	return fmt.Sprintf("refund-%d-%s-p%d", bookingID, strings.Join(ids, "."), percent)
}

// refund claims the tickets under the booking lock before any money moves, so two
// refunds can never pay out for the same ticket. The gateway is called next; a failed
// call hands the tickets back and leaves seats and booking untouched.
func (s *BookingService) refund(ctx context.Context, booking *model.Booking, tickets []model.Ticket, closeBooking bool) (*model.RefundResult, error) {
	if len(tickets) == 0 {
		return nil, apperror.Conflict(constants.TICKET_NOT_REFUNDABLE)
	}
	session, err := s.repo.GetSession(ctx, booking.SessionID)
	if err != nil {
		return nil, dbErr("get session", err, constants.SESSION_NOT_FOUND)
	}
	now := s.now()
	percent, err := RefundPolicy(session.StartTime, now)
	if err != nil {
		return nil, err
	}

	net, err := s.gateway.RetrieveChargeNetAmount(ctx, booking.PaymentIntentID)
	if err != nil {
		logger.Error("Retrieve net amount failed",
			zap.Uint("booking_id", booking.ID),
			zap.String("payment_intent_id", booking.PaymentIntentID),
			zap.Error(err))
		return nil, err
	}

	before, remaining, err := s.claimTickets(ctx, booking.ID, tickets, closeBooking)
	if err != nil {
		return nil, err
	}
	// past the claim, state changes must land even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	amount := refundAmount(net, before, len(tickets), len(booking.Seats), percent)
	if amount > remaining {
		amount = remaining
	}
	if amount <= 0 {
		s.releaseClaim(ctx, booking.ID, tickets)
		return nil, apperror.Conflict(constants.TICKET_NOT_REFUNDABLE, "nothing left to refund")
	}

	refund, err := s.gateway.CreateRefund(ctx, payment.RefundRequest{
		PaymentIntentID: booking.PaymentIntentID,
		Amount:          amount,
		IdempotencyKey:  refundKey(booking.ID, tickets, percent),
		Reason:          "requested_by_customer",
	})
	if err != nil {
		logger.Error("Create refund failed",
			zap.Uint("booking_id", booking.ID),
			zap.Int64("amount", amount),
			zap.Error(err))
		s.releaseClaim(ctx, booking.ID, tickets)
		return nil, err
	}

	labels := make([]string, 0, len(tickets))
	for _, t := range tickets {
		labels = append(labels, t.SeatLabel)
	}

	var updated *model.Booking
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		b, err := tx.LockBooking(ctx, booking.ID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		for _, t := range tickets {
			ok, err := tx.UpdateTicketStatus(ctx, t.ID, model.TicketRefunding, model.TicketRefunded, now)
			if err != nil {
				return dbErr("refund ticket", err, constants.TICKET_NOT_FOUND)
			}
			if !ok {
				return apperror.Database("finalize refund", fmt.Errorf("ticket %s lost its refund claim", t.Code))
			}
		}
		if _, err := tx.TransitionSeats(ctx, b.SessionID, labels, model.SeatOccupied, model.SeatAvailable); err != nil {
			return dbErr("release seats", err, "")
		}
		if err := syncSessionStatus(ctx, tx, b.SessionID); err != nil {
			return err
		}

		b.RefundedAmount += refund.Amount
		if !closeBooking {
			all, err := tx.ListTickets(ctx, b.ID)
			if err != nil {
				return dbErr("list tickets", err, "")
			}
			closeBooking = true
			for _, t := range all {
				if t.Status != model.TicketRefunded && t.Status != model.TicketCancelled {
					closeBooking = false
					break
				}
			}
		}
		if closeBooking {
			cancelledAt := now
			b.Status = model.BookingCancelled
			b.PaymentStatus = model.PaymentRefunded
			b.CancelledAt = &cancelledAt
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return dbErr("update booking", err, "")
		}
		updated = b
		return nil
	})
	if err != nil {
		// money went out; the tickets stay claimed so no second refund can be issued for them
		logger.Error("Refund issued but booking update failed",
			zap.Uint("booking_id", booking.ID),
			zap.String("refund_id", refund.ID),
			zap.Int64("amount", refund.Amount),
			zap.Error(err))
		return nil, err
	}

	kind := "partial"
	if updated.PaymentStatus == model.PaymentRefunded {
		kind = "cancel"
	}
	s.metrics.Refund(kind, updated.Currency, refund.Amount)
	logger.Info("Refund issued",
		zap.Uint("booking_id", updated.ID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", refund.Amount),
		zap.Int("percent", percent),
		zap.Strings("seats", labels))

	s.seats.SeatsChanged(ctx, updated.SessionID, labels, model.SeatAvailable)
	customer := s.customerOrEmpty(ctx, updated.CustomerID)
	s.record(ctx, &model.FinancialReport{
		Kind:              model.ReportRefund,
		ProviderPaymentID: updated.PaymentIntentID,
		ProviderRefundID:  refund.ID,
		BookingID:         updated.ID,
		CustomerID:        updated.CustomerID,
		CustomerEmail:     customer.Email,
		Amount:            refund.Amount,
		Currency:          updated.Currency,
		Method:            "refund",
		OccurredAt:        now,
	})
	if customer.Email != "" {
		reason := "Partial refund"
		if kind == "cancel" {
			reason = "Booking cancelled"
		}
		if err := s.mailer.SendRefundNotice(ctx, mailer.RefundNotice{
			To:          customer.Email,
			BookingCode: updated.Code,
			MovieTitle:  session.MovieTitle,
			Seats:       labels,
			Amount:      refund.Amount,
			Currency:    updated.Currency,
			Percent:     percent,
			Reason:      reason,
		}); err != nil {
			logger.Error("Send refund notice failed", zap.Uint("booking_id", updated.ID), zap.Error(err))
		}
	}
	s.publish(ctx, constants.EVENT_BOOKING_REFUNDED, queue.NewBookingEvent(constants.EVENT_BOOKING_REFUNDED, now, bookingEventData(updated, refund.Amount)))

	refunded := make([]model.Ticket, len(tickets))
	for i, t := range tickets {
		t.Status = model.TicketRefunded
		at := now
		t.RefundedAt = &at
		refunded[i] = t
	}
	full, err := s.repo.GetBooking(ctx, updated.ID)
	if err != nil {
		full = updated
	}
	view := AssembleBookingView(full, session)
	return &model.RefundResult{
		BookingID:       updated.ID,
		RefundID:        refund.ID,
		Amount:          refund.Amount,
		Percent:         percent,
		RefundedTickets: ticketViews(refunded),
		BookingStatus:   updated.Status,
		PaymentStatus:   updated.PaymentStatus,
		Booking:         &view,
	}, nil
}

// claimTickets moves the tickets from booked to refunding under the booking lock. It
// returns how many seats of the booking were refunded or claimed before, and how much
// of the booking total is still unrefunded. A full cancellation must cover every
// ticket that is still live, so it fails while any other refund is in flight.
func (s *BookingService) claimTickets(ctx context.Context, bookingID uint, tickets []model.Ticket, closeBooking bool) (int, int64, error) {
	claiming := make(map[uint]bool, len(tickets))
	for _, t := range tickets {
		claiming[t.ID] = true
	}
	var (
		before    int
		remaining int64
	)
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		if err := refundable(b); err != nil {
			return err
		}
		all, err := tx.ListTickets(ctx, bookingID)
		if err != nil {
			return dbErr("list tickets", err, "")
		}
		before = 0
		for _, t := range all {
			if claiming[t.ID] {
				continue
			}
			switch t.Status {
			case model.TicketRefunded:
				before++
			case model.TicketRefunding:
				if closeBooking {
					return apperror.Conflict(constants.REFUND_IN_PROGRESS, t.Code)
				}
				before++
			case model.TicketUsed:
				if closeBooking {
					return apperror.Conflict(constants.TICKET_ALREADY_USED, t.Code)
				}
			case model.TicketBooked:
				if closeBooking {
					return apperror.Conflict(constants.REFUND_IN_PROGRESS, t.Code)
				}
			}
		}
		for _, t := range tickets {
			ok, err := tx.UpdateTicketStatus(ctx, t.ID, model.TicketBooked, model.TicketRefunding, s.now())
			if err != nil {
				return dbErr("claim ticket", err, constants.TICKET_NOT_FOUND)
			}
			if !ok {
				return apperror.Conflict(constants.TICKET_NOT_REFUNDABLE, t.Code)
			}
		}
		remaining = b.TotalAmount - b.RefundedAmount
		return nil
	})
	return before, remaining, err
}

// releaseClaim hands claimed tickets back after the gateway refused the refund.
func (s *BookingService) releaseClaim(ctx context.Context, bookingID uint, tickets []model.Ticket) {
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		for _, t := range tickets {
			if _, err := tx.UpdateTicketStatus(ctx, t.ID, model.TicketRefunding, model.TicketBooked, s.now()); err != nil {
				return dbErr("release ticket claim", err, "")
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Release refund claim failed", zap.Uint("booking_id", bookingID), zap.Error(err))
	}
}
