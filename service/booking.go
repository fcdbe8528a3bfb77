package service

import (
	"context"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/logger"
	"cinema_booking/model"

	"go.uber.org/zap"
)

func (s *BookingService) GetBooking(ctx context.Context, id uint, actor Actor) (*model.BookingView, error) {
	booking, err := s.ownedBooking(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	session, err := s.repo.GetSession(ctx, booking.SessionID)
	if err != nil {
		return nil, dbErr("get session", err, constants.SESSION_NOT_FOUND)
	}
	view := AssembleBookingView(booking, session)
	return &view, nil
}

// UpdateBooking replaces the product lines of a pending booking, or lets staff mark a
// paid booking completed. Replacing products reopens the payment session for the new
// total; the result then carries the new redirect URL.
func (s *BookingService) UpdateBooking(ctx context.Context, id uint, actor Actor, in model.UpdateBookingInput) (*model.ReservationResult, error) {
	if in.Products == nil && in.Status == nil {
		return nil, apperror.Validation(constants.ERROR_INPUT, "nothing to update")
	}
	if in.Products != nil && in.Status != nil {
		return nil, apperror.Validation(constants.ERROR_INPUT, "products and status cannot change together")
	}
	booking, err := s.ownedBooking(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if in.Status != nil {
		return s.completeBooking(ctx, booking, actor, *in.Status)
	}
	return s.replaceProducts(ctx, booking, *in.Products)
}

func (s *BookingService) completeBooking(ctx context.Context, booking *model.Booking, actor Actor, status model.BookingStatus) (*model.ReservationResult, error) {
	if !actor.Staff {
		return nil, apperror.Forbidden(constants.NOT_STAFF)
	}
	if status != model.BookingCompleted {
		return nil, apperror.Validation(constants.ERROR_INPUT, "status may only be set to completed")
	}
	var updated *model.Booking
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		b, err := tx.LockBooking(ctx, booking.ID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		if err := refundable(b); err != nil {
			return err
		}
		b.Status = model.BookingCompleted
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return dbErr("complete booking", err, "")
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	view, err := s.GetBooking(ctx, updated.ID, actor)
	if err != nil {
		return nil, err
	}
	return &model.ReservationResult{Booking: *view}, nil
}

func (s *BookingService) replaceProducts(ctx context.Context, booking *model.Booking, items []model.ProductLineInput) (*model.ReservationResult, error) {
	if booking.PaymentStatus != model.PaymentPending {
		return nil, apperror.Conflict(constants.BOOKING_NOT_PENDING, string(booking.PaymentStatus))
	}
	// the open checkout is for the old total and must not be payable any more
	if booking.PaymentIntentID != "" || booking.PaymentSessionID != "" {
		if err := s.cancelOpenCheckout(ctx, booking); err != nil {
			return nil, err
		}
	}

	var session *model.Session
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		b, err := tx.LockBooking(ctx, booking.ID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		if b.PaymentStatus != model.PaymentPending {
			return apperror.Conflict(constants.BOOKING_NOT_PENDING, string(b.PaymentStatus))
		}
		if b.PaymentIntentID != booking.PaymentIntentID {
			return apperror.Conflict(constants.PAYMENT_SESSION_OPEN)
		}
		lines, err := productLines(ctx, tx, items)
		if err != nil {
			return err
		}
		if err := tx.ReplaceBookingProducts(ctx, b.ID, lines); err != nil {
			return dbErr("replace products", err, "")
		}
		b.Products = lines
		b.TotalAmount = b.SeatsTotal() + b.ProductsTotal()
		b.PaymentIntentID = ""
		b.PaymentSessionID = ""
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return dbErr("update booking", err, "")
		}
		session, err = tx.GetSession(ctx, b.SessionID)
		if err != nil {
			return dbErr("get session", err, constants.SESSION_NOT_FOUND)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	customer, err := s.repo.GetCustomer(ctx, booking.CustomerID)
	if err != nil {
		return nil, dbErr("get customer", err, constants.CUSTOMER_NOT_FOUND)
	}
	url, err := s.openPaymentSession(ctx, booking, session, customer)
	if err != nil {
		return nil, err
	}
	logger.Info("Booking products replaced",
		zap.Uint("booking_id", booking.ID),
		zap.Int64("total", booking.TotalAmount))
	return &model.ReservationResult{
		Booking:            AssembleBookingView(booking, session),
		PaymentRedirectURL: url,
	}, nil
}

// cancelOpenCheckout closes the checkout of a pending booking. It refuses when the
// customer has already paid, since the webhook is about to confirm the booking.
func (s *BookingService) cancelOpenCheckout(ctx context.Context, booking *model.Booking) error {
	intent, err := s.closeCheckout(ctx, booking)
	if err != nil {
		return err
	}
	if intent != nil {
		return apperror.Conflict(constants.PAYMENT_COMPLETED)
	}
	return nil
}

// RemoveBooking deletes a booking that never got paid. A pending booking has its
// checkout cancelled and its seats released first.
func (s *BookingService) RemoveBooking(ctx context.Context, id uint, actor Actor) error {
	booking, err := s.ownedBooking(ctx, id, actor)
	if err != nil {
		return err
	}
	switch booking.PaymentStatus {
	case model.PaymentPending:
		if booking.PaymentIntentID != "" || booking.PaymentSessionID != "" {
			if err := s.cancelOpenCheckout(ctx, booking); err != nil {
				return err
			}
		}
	case model.PaymentCancelled:
	default:
		return apperror.Conflict(constants.BOOKING_NOT_REMOVABLE, string(booking.PaymentStatus))
	}

	now := s.now()
	var released []string
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		switch b.PaymentStatus {
		case model.PaymentPending:
			if _, err := tx.TransitionSeats(ctx, b.SessionID, b.Seats, model.SeatReserved, model.SeatAvailable); err != nil {
				return dbErr("release seats", err, "")
			}
			if err := syncSessionStatus(ctx, tx, b.SessionID); err != nil {
				return err
			}
			released = b.Seats
		case model.PaymentCancelled:
		default:
			return apperror.Conflict(constants.BOOKING_NOT_REMOVABLE, string(b.PaymentStatus))
		}
		if err := tx.CompleteBookingTasks(ctx, b.ID, now); err != nil {
			return dbErr("complete expiry task", err, "")
		}
		return dbErr("delete booking", tx.DeleteBooking(ctx, b.ID), constants.BOOKING_NOT_FOUND)
	})
	if err != nil {
		return err
	}

	logger.Info("Booking removed", zap.Uint("booking_id", id), zap.Strings("released", released))
	s.seats.SeatsChanged(ctx, booking.SessionID, released, model.SeatAvailable)
	return nil
}
