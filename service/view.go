package service

import (
	"cinema_booking/logger"
	"cinema_booking/model"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// AssembleBookingView builds the booking read model from stored rows. session may be nil.
func AssembleBookingView(booking *model.Booking, session *model.Session) model.BookingView {
	var view model.BookingView
	if err := copier.Copy(&view, booking); err != nil {
		logger.Error("Copy booking view failed", zap.Uint("booking_id", booking.ID), zap.Error(err))
	}
	view.ID = booking.ID
	view.CreatedAt = booking.CreatedAt
	if view.Products == nil {
		view.Products = []model.BookingProduct{}
	}

	view.Tickets = make([]model.TicketView, 0, len(booking.Tickets))
	for i := range booking.Tickets {
		view.Tickets = append(view.Tickets, TicketView(&booking.Tickets[i]))
	}

	if session != nil {
		view.Session = model.SessionSummary{
			ID:         session.ID,
			MovieTitle: session.MovieTitle,
			RoomName:   session.RoomName,
			StartTime:  session.StartTime,
			EndTime:    session.EndTime,
			Status:     session.Status,
		}
	} else {
		view.Session.ID = booking.SessionID
	}
	return view
}

func TicketView(t *model.Ticket) model.TicketView {
	var view model.TicketView
	if err := copier.Copy(&view, t); err != nil {
		logger.Error("Copy ticket view failed", zap.Uint("ticket_id", t.ID), zap.Error(err))
	}
	view.ID = t.ID
	return view
}

func ticketViews(tickets []model.Ticket) []model.TicketView {
	out := make([]model.TicketView, 0, len(tickets))
	for i := range tickets {
		out = append(out, TicketView(&tickets[i]))
	}
	return out
}
