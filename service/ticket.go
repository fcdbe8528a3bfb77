package service

import (
	"context"
	"errors"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/logger"
	"cinema_booking/model"
	"cinema_booking/ticketing"

	"go.uber.org/zap"
)

// VerifyTicket checks a scanned code and admits the ticket exactly once.
// Rejections are reported in the result, not as errors.
func (s *BookingService) VerifyTicket(ctx context.Context, code string) (*model.TicketVerification, error) {
	result, err := s.verifyTicket(ctx, code)
	if err != nil {
		return nil, err
	}
	s.metrics.Verification(result.Valid)
	return result, nil
}

func (s *BookingService) verifyTicket(ctx context.Context, code string) (*model.TicketVerification, error) {
	reject := func(reason string, t *model.Ticket) *model.TicketVerification {
		out := &model.TicketVerification{Valid: false, Reason: reason}
		if t != nil {
			out.Ticket = TicketView(t)
			out.Ticket.QRPayload = ""
		}
		return out
	}

	payload, err := s.signer.Verify(code)
	if err != nil {
		return reject(constants.TICKET_NOT_VALID, nil), nil
	}
	ticket, err := s.repo.GetTicketByCode(ctx, payload.TicketCode)
	if errors.Is(err, database.ErrNotFound) {
		return reject(constants.TICKET_NOT_FOUND, nil), nil
	}
	if err != nil {
		return nil, dbErr("get ticket", err, "")
	}
	// a validly signed code must also be the one stored for this ticket
	if ticket.QRPayload != code || ticket.BookingID != payload.BookingID || ticket.SeatLabel != payload.Seat {
		return reject(constants.TICKET_NOT_VALID, nil), nil
	}

	switch ticket.Status {
	case model.TicketUsed:
		return reject(constants.TICKET_ALREADY_USED, ticket), nil
	case model.TicketCancelled, model.TicketRefunded, model.TicketRefunding:
		return reject(constants.TICKET_NOT_VALID, ticket), nil
	}

	booking, err := s.repo.GetBooking(ctx, ticket.BookingID)
	if err != nil {
		return nil, dbErr("get booking", err, constants.BOOKING_NOT_FOUND)
	}
	if booking.PaymentStatus != model.PaymentPaid {
		return reject(constants.BOOKING_NOT_PAID, ticket), nil
	}

	now := s.now()
	ok, err := s.repo.UpdateTicketStatus(ctx, ticket.ID, model.TicketBooked, model.TicketUsed, now)
	if err != nil {
		return nil, dbErr("check in ticket", err, constants.TICKET_NOT_FOUND)
	}
	if !ok {
		// another scanner won the race
		return reject(constants.TICKET_ALREADY_USED, ticket), nil
	}
	ticket.Status = model.TicketUsed
	ticket.UsedAt = &now

	logger.Info("Ticket checked in",
		zap.String("ticket", ticket.Code),
		zap.Uint("booking_id", ticket.BookingID),
		zap.String("seat", ticket.SeatLabel))
	view := TicketView(ticket)
	view.QRPayload = ""
	return &model.TicketVerification{Valid: true, Ticket: view}, nil
}

// TicketQRCode renders the PNG for a ticket its owner may still present.
func (s *BookingService) TicketQRCode(ctx context.Context, ticketID uint, actor Actor) ([]byte, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, dbErr("get ticket", err, constants.TICKET_NOT_FOUND)
	}
	if !actor.Staff && ticket.CustomerID != actor.CustomerID {
		return nil, apperror.NotFound(constants.TICKET_NOT_FOUND)
	}
	if ticket.Status == model.TicketCancelled || ticket.Status == model.TicketRefunded || ticket.Status == model.TicketRefunding {
		return nil, apperror.Conflict(constants.TICKET_NOT_VALID, string(ticket.Status))
	}
	png, err := ticketing.GenerateQRCode(ticket.QRPayload, ticketing.DefaultQRSize)
	if err != nil {
		return nil, err
	}
	return png, nil
}
