package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/logger"
	"cinema_booking/model"
	"cinema_booking/payment"
	"cinema_booking/queue"

	"go.uber.org/zap"
)

const (
	sweepBatch = 50
	// after this many failed attempts the seats are released even if the gateway
	// could not be reached; a late payment is then refunded on arrival
	maxSweepAttempts = 10
)

func retryBackoff(attempts int) time.Duration {
	d := 15 * time.Second << uint(attempts)
	if d > 10*time.Minute || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// SweepPending expires bookings whose payment window has passed. Each due task is
// re-checked against current state, so a booking paid in the meantime is left alone.
func (s *BookingService) SweepPending(ctx context.Context) (int, error) {
	now := s.now()
	tasks, err := s.repo.DueTasks(ctx, model.TaskExpirePendingBooking, now, sweepBatch)
	if err != nil {
		return 0, dbErr("load due tasks", err, "")
	}

	handled := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if err := s.expire(ctx, task); err != nil {
			s.metrics.Sweep("retry")
			logger.Warn("Expire pending booking failed",
				zap.Uint("booking_id", task.BookingID),
				zap.Int("attempts", task.Attempts+1),
				zap.Error(err))
			if rerr := s.repo.RetryTask(ctx, task.ID, err.Error(), now.Add(retryBackoff(task.Attempts))); rerr != nil {
				logger.Error("Reschedule expiry task failed", zap.Uint("task_id", task.ID), zap.Error(rerr))
			}
			continue
		}
		handled++
	}
	return handled, nil
}

func (s *BookingService) expire(ctx context.Context, task model.ScheduledTask) error {
	now := s.now()
	booking, err := s.repo.GetBooking(ctx, task.BookingID)
	if errors.Is(err, database.ErrNotFound) {
		return s.repo.CompleteTask(ctx, task.ID, now)
	}
	if err != nil {
		return err
	}
	if booking.PaymentStatus != model.PaymentPending {
		return s.repo.CompleteTask(ctx, task.ID, now)
	}

	if booking.PaymentIntentID != "" || booking.PaymentSessionID != "" {
		err := s.settleOrCloseCheckout(ctx, booking)
		if errors.Is(err, errPaidMeanwhile) {
			s.metrics.Sweep("confirmed")
			return nil
		}
		if err != nil {
			if task.Attempts+1 < maxSweepAttempts {
				return err
			}
			logger.Error("Releasing seats without closing checkout",
				zap.Uint("booking_id", booking.ID),
				zap.String("payment_intent_id", booking.PaymentIntentID),
				zap.String("payment_session_id", booking.PaymentSessionID),
				zap.Error(err))
		}
	}

	released, err := s.releasePending(ctx, booking.ID, now)
	if err != nil {
		return err
	}
	if released == nil {
		return s.repo.CompleteTask(ctx, task.ID, now)
	}

	s.metrics.Sweep("expired")
	logger.Info("Pending booking expired",
		zap.Uint("booking_id", released.ID),
		zap.Strings("seats", released.Seats))
	s.seats.SeatsChanged(ctx, released.SessionID, released.Seats, model.SeatAvailable)
	s.publish(ctx, constants.EVENT_BOOKING_EXPIRED, queue.NewBookingEvent(constants.EVENT_BOOKING_EXPIRED, now, bookingEventData(released, 0)))
	return nil
}

var errPaidMeanwhile = errors.New("payment completed before expiry")

// settleOrCloseCheckout confirms the booking when the customer already paid and
// closes the checkout otherwise.
func (s *BookingService) settleOrCloseCheckout(ctx context.Context, booking *model.Booking) error {
	intent, err := s.closeCheckout(ctx, booking)
	if err != nil || intent == nil {
		return err
	}
	if _, err := s.ConfirmPayment(ctx, booking.ID, PaymentSucceeded{
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Method:          intent.Method,
	}); err != nil {
		return err
	}
	return errPaidMeanwhile
}

// closeCheckout stops the booking's checkout from taking money: the checkout session
// is expired and a still pending intent cancelled. It returns the succeeded intent
// when the customer paid before the checkout could be closed.
func (s *BookingService) closeCheckout(ctx context.Context, booking *model.Booking) (*payment.PaymentIntent, error) {
	intentID := booking.PaymentIntentID
	if booking.PaymentSessionID != "" {
		cs, err := s.gateway.ExpireCheckoutSession(ctx, booking.PaymentSessionID)
		if err != nil {
			return nil, err
		}
		if intentID == "" {
			intentID = cs.PaymentIntentID
		}
		if intentID == "" {
			if cs.Status == payment.SessionComplete {
				return nil, apperror.Unavailable("close checkout",
					fmt.Errorf("checkout %s completed without a payment intent", cs.ID))
			}
			return nil, nil
		}
	}
	if intentID == "" {
		return nil, nil
	}

	intent, err := s.gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	switch intent.Status {
	case payment.IntentSucceeded:
		return intent, nil
	case payment.IntentCanceled:
		return nil, nil
	}
	return nil, s.gateway.CancelPaymentIntent(ctx, intent.ID)
}

// releasePending cancels a still-pending booking and frees its seats. It returns nil
// when the booking left the pending state in the meantime.
func (s *BookingService) releasePending(ctx context.Context, bookingID uint, now time.Time) (*model.Booking, error) {
	var released *model.Booking
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		booking, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		if booking.PaymentStatus != model.PaymentPending {
			return nil
		}
		if _, err := tx.TransitionSeats(ctx, booking.SessionID, booking.Seats, model.SeatReserved, model.SeatAvailable); err != nil {
			return dbErr("release seats", err, "")
		}
		if err := syncSessionStatus(ctx, tx, booking.SessionID); err != nil {
			return err
		}
		cancelledAt := now
		booking.Status = model.BookingCancelled
		booking.PaymentStatus = model.PaymentCancelled
		booking.CancelledAt = &cancelledAt
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return dbErr("cancel booking", err, "")
		}
		if err := tx.CompleteBookingTasks(ctx, booking.ID, now); err != nil {
			return dbErr("complete expiry task", err, "")
		}
		released = booking
		return nil
	})
	return released, err
}
