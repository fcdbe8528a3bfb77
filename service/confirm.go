package service

import (
	"context"
	"errors"
	"fmt"
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
	"cinema_booking/ticketing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentSucceeded is a settled payment reported by the gateway.
type PaymentSucceeded struct {
	EventID         string
	EventType       string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Method          string
}

// errBookingCancelled rolls back a confirmation that found its booking cancelled
// under the lock.
var errBookingCancelled = errors.New("booking cancelled before payment landed")

// WebhookSignatureHeader names the header the configured gateway signs deliveries with.
func (s *BookingService) WebhookSignatureHeader() string {
	return s.gateway.SignatureHeader()
}

// HandleGatewayEvent authenticates a raw webhook delivery and dispatches it.
// Events for unknown bookings are logged and acknowledged so the provider stops retrying.
func (s *BookingService) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(ctx, payload, signature)
	if err != nil {
		logger.Warn("Rejected webhook", zap.String("gateway", s.gateway.Name()), zap.Error(err))
		return err
	}
	log := logger.Get().With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.ProviderType),
		zap.Uint("booking_id", ev.BookingID),
		zap.String("payment_intent_id", ev.PaymentIntentID))

	switch ev.Type {
	case payment.EventIntentCreated:
		log.Debug("Payment intent created")
		return s.attachIntent(ctx, ev)
	case payment.EventCheckoutCompleted, payment.EventIntentSucceeded:
		bookingID := ev.BookingID
		if bookingID == 0 && ev.PaymentIntentID != "" {
			if b, err := s.repo.FindBookingByPaymentIntent(ctx, ev.PaymentIntentID); err == nil {
				bookingID = b.ID
			}
		}
		if bookingID == 0 {
			log.Error("Payment event does not reference a booking")
			return nil
		}
		_, err := s.ConfirmPayment(ctx, bookingID, PaymentSucceeded{
			EventID:         ev.ID,
			EventType:       ev.ProviderType,
			PaymentIntentID: ev.PaymentIntentID,
			Amount:          ev.Amount,
			Currency:        ev.Currency,
			Method:          ev.Method,
		})
		if apperror.Is(err, apperror.KindNotFound) {
			log.Error("Payment event for unknown booking", zap.Error(err))
			return nil
		}
		return err
	case payment.EventIntentFailed:
		// the booking stays pending until the customer retries or the sweep expires it
		log.Info("Payment attempt failed")
		return nil
	default:
		log.Debug("Ignored webhook event")
		return nil
	}
}

func (s *BookingService) attachIntent(ctx context.Context, ev *payment.Event) error {
	if ev.BookingID == 0 || ev.PaymentIntentID == "" {
		return nil
	}
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		b, err := tx.LockBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		if b.PaymentIntentID != "" {
			return nil
		}
		b.PaymentIntentID = ev.PaymentIntentID
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		logger.Warn("Attach payment intent failed", zap.Uint("booking_id", ev.BookingID), zap.Error(err))
	}
	return nil
}

// ConfirmPayment marks a pending booking paid and issues its tickets. Repeated
// deliveries of the same payment are no-ops. A payment that lands on a booking the
// expiry sweep already cancelled is refunded in full.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID uint, p PaymentSucceeded) (*model.Booking, error) {
	current, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, dbErr("get booking", err, constants.BOOKING_NOT_FOUND)
	}
	// cancelled is terminal for the payment status, so this read needs no lock
	if current.PaymentStatus == model.PaymentCancelled {
		return current, s.compensateLatePayment(ctx, current, p)
	}

	now := s.now()
	var (
		booking   *model.Booking
		session   *model.Session
		tickets   []model.Ticket
		duplicate bool
	)
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		if p.EventID != "" {
			fresh, err := tx.MarkEventProcessed(ctx, p.EventID, p.EventType)
			if err != nil {
				return dbErr("record event", err, "")
			}
			if !fresh {
				duplicate = true
				return nil
			}
		}

		var err error
		booking, err = tx.LockBooking(ctx, bookingID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		if booking.PaymentStatus == model.PaymentCancelled {
			return errBookingCancelled
		}
		if booking.PaymentStatus != model.PaymentPending {
			duplicate = true
			return nil
		}
		if p.Amount != booking.TotalAmount || !strings.EqualFold(p.Currency, booking.Currency) {
			return apperror.Conflict(constants.AMOUNT_MISMATCH,
				fmt.Sprintf("expected %d %s, received %d %s", booking.TotalAmount, booking.Currency, p.Amount, strings.ToLower(p.Currency)))
		}

		session, err = tx.GetSession(ctx, booking.SessionID)
		if err != nil {
			return dbErr("get session", err, constants.SESSION_NOT_FOUND)
		}

		tickets, err = s.issueTickets(booking, now)
		if err != nil {
			return err
		}
		if err := tx.CreateTickets(ctx, tickets); err != nil {
			return dbErr("create tickets", err, "")
		}

		n, err := tx.TransitionSeats(ctx, booking.SessionID, booking.Seats, model.SeatReserved, model.SeatOccupied)
		if err != nil {
			return dbErr("occupy seats", err, "")
		}
		if n != int64(len(booking.Seats)) {
			logger.Warn("Confirmed booking had seats outside reserved state",
				zap.Uint("booking_id", booking.ID),
				zap.Int64("occupied", n),
				zap.Int("seats", len(booking.Seats)))
		}

		paidAt := now
		booking.PaymentStatus = model.PaymentPaid
		booking.PaidAt = &paidAt
		if booking.PaymentIntentID == "" {
			booking.PaymentIntentID = p.PaymentIntentID
		}
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return dbErr("mark booking paid", err, "")
		}

		if points := booking.TotalAmount / s.opts.LoyaltyCentsPerPoint; points > 0 {
			if err := tx.AddLoyaltyPoints(ctx, booking.CustomerID, points); err != nil {
				return dbErr("award loyalty points", err, "")
			}
		}
		return dbErr("complete expiry task", tx.CompleteBookingTasks(ctx, booking.ID, now), "")
	})
	if errors.Is(err, errBookingCancelled) {
		// the sweep won the race after the unlocked read above
		return booking, s.compensateLatePayment(ctx, booking, p)
	}
	if err != nil {
		if apperror.Is(err, apperror.KindConflict) {
			s.metrics.Payment("amount_mismatch")
		} else {
			s.metrics.Payment("error")
		}
		logger.Error("Confirm payment failed",
			zap.Uint("booking_id", bookingID),
			zap.String("payment_intent_id", p.PaymentIntentID),
			zap.Error(err))
		return nil, err
	}
	if duplicate {
		s.metrics.Payment("duplicate")
		logger.Info("Duplicate payment confirmation ignored",
			zap.Uint("booking_id", bookingID),
			zap.String("event_id", p.EventID))
		return s.repo.GetBooking(ctx, bookingID)
	}

	s.metrics.Payment("confirmed")
	logger.Info("Booking paid",
		zap.Uint("booking_id", booking.ID),
		zap.String("payment_intent_id", booking.PaymentIntentID),
		zap.Int("tickets", len(tickets)))
	booking.Tickets = tickets

	// the payment is final from here on; side effects only log their failures
	s.seats.SeatsChanged(ctx, booking.SessionID, booking.Seats, model.SeatOccupied)
	customer := s.customerOrEmpty(ctx, booking.CustomerID)
	s.sendConfirmation(ctx, booking, session, customer)
	s.record(ctx, &model.FinancialReport{
		Kind:              model.ReportPayment,
		ProviderPaymentID: booking.PaymentIntentID,
		BookingID:         booking.ID,
		CustomerID:        booking.CustomerID,
		CustomerEmail:     customer.Email,
		Amount:            booking.TotalAmount,
		Currency:          booking.Currency,
		Method:            p.Method,
		OccurredAt:        now,
	})
	s.publish(ctx, constants.EVENT_BOOKING_CONFIRMED, queue.NewBookingEvent(constants.EVENT_BOOKING_CONFIRMED, now, bookingEventData(booking, booking.TotalAmount)))
	return booking, nil
}

func newTicketCode() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// issueTickets builds one signed ticket per booked seat.
func (s *BookingService) issueTickets(booking *model.Booking, now time.Time) ([]model.Ticket, error) {
	tickets := make([]model.Ticket, 0, len(booking.Seats))
	for _, seat := range booking.Seats {
		code := newTicketCode()
		signed, err := s.signer.Sign(ticketing.Payload{
			TicketCode: code,
			BookingID:  booking.ID,
			CustomerID: booking.CustomerID,
			SessionID:  booking.SessionID,
			Seat:       seat,
			IssuedAt:   now,
		})
		if err != nil {
			return nil, fmt.Errorf("sign ticket %s: %w", seat, err)
		}
		tickets = append(tickets, model.Ticket{
			Code:       code,
			BookingID:  booking.ID,
			CustomerID: booking.CustomerID,
			SessionID:  booking.SessionID,
			SeatLabel:  seat,
			Price:      booking.SeatPrice,
			Status:     model.TicketBooked,
			QRPayload:  signed,
			IssuedAt:   now,
		})
	}
	return tickets, nil
}

func (s *BookingService) customerOrEmpty(ctx context.Context, id uint) *model.Customer {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		logger.Warn("Load customer failed", zap.Uint("customer_id", id), zap.Error(err))
		return &model.Customer{}
	}
	return customer
}

func (s *BookingService) sendConfirmation(ctx context.Context, booking *model.Booking, session *model.Session, customer *model.Customer) {
	if customer.Email == "" {
		return
	}
	attachments := make([]mailer.TicketAttachment, 0, len(booking.Tickets))
	for _, t := range booking.Tickets {
		png, err := ticketing.GenerateQRCode(t.QRPayload, ticketing.DefaultQRSize)
		if err != nil {
			logger.Warn("Render ticket QR failed", zap.String("ticket", t.Code), zap.Error(err))
			continue
		}
		attachments = append(attachments, mailer.TicketAttachment{
			Code:     t.Code,
			Seat:     t.SeatLabel,
			FileName: ticketing.AttachmentName(session.MovieTitle, t.SeatLabel),
			PNG:      png,
		})
	}

	err := s.mailer.SendBookingConfirmation(ctx, mailer.Confirmation{
		To:           customer.Email,
		CustomerName: customer.FullName,
		BookingCode:  booking.Code,
		MovieTitle:   session.MovieTitle,
		RoomName:     session.RoomName,
		StartTime:    session.StartTime,
		Seats:        booking.Seats,
		TotalAmount:  booking.TotalAmount,
		Currency:     booking.Currency,
		DetailLink:   fmt.Sprintf("%s/bookings/%d", strings.TrimRight(s.opts.AppURL, "/"), booking.ID),
		Tickets:      attachments,
	})
	if err != nil {
		logger.Error("Send booking confirmation failed", zap.Uint("booking_id", booking.ID), zap.Error(err))
	}
}

// compensateLatePayment refunds a payment that settled after its booking expired.
func (s *BookingService) compensateLatePayment(ctx context.Context, booking *model.Booking, p PaymentSucceeded) error {
	intentID := p.PaymentIntentID
	if intentID == "" {
		intentID = booking.PaymentIntentID
	}
	if intentID == "" {
		logger.Error("Late payment without payment intent", zap.Uint("booking_id", booking.ID))
		return nil
	}

	refund, err := s.gateway.CreateRefund(ctx, payment.RefundRequest{
		PaymentIntentID: intentID,
		IdempotencyKey:  "late-" + intentID,
		Reason:          "booking expired before payment completed",
	})
	if err != nil {
		s.metrics.Payment("error")
		logger.Error("Compensating refund failed",
			zap.Uint("booking_id", booking.ID),
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		return err
	}

	if p.EventID != "" {
		fresh, err := s.repo.MarkEventProcessed(ctx, p.EventID, p.EventType)
		if err != nil {
			return dbErr("record event", err, "")
		}
		if !fresh {
			return nil
		}
	}

	s.metrics.Payment("late_refund")
	logger.Warn("Refunded payment for expired booking",
		zap.Uint("booking_id", booking.ID),
		zap.String("payment_intent_id", intentID),
		zap.Int64("amount", refund.Amount))

	now := s.now()
	customer := s.customerOrEmpty(ctx, booking.CustomerID)
	s.record(ctx, &model.FinancialReport{
		Kind:              model.ReportPayment,
		ProviderPaymentID: intentID,
		BookingID:         booking.ID,
		CustomerID:        booking.CustomerID,
		CustomerEmail:     customer.Email,
		Amount:            p.Amount,
		Currency:          strings.ToLower(p.Currency),
		Method:            p.Method,
		OccurredAt:        now,
	})
	s.record(ctx, &model.FinancialReport{
		Kind:              model.ReportRefund,
		ProviderPaymentID: intentID,
		ProviderRefundID:  refund.ID,
		BookingID:         booking.ID,
		CustomerID:        booking.CustomerID,
		CustomerEmail:     customer.Email,
		Amount:            refund.Amount,
		Currency:          refund.Currency,
		Method:            p.Method,
		OccurredAt:        now,
	})
	return nil
}

func bookingEventData(b *model.Booking, amount int64) queue.BookingEventData {
	return queue.BookingEventData{
		BookingID:       b.ID,
		BookingCode:     b.Code,
		CustomerID:      b.CustomerID,
		SessionID:       b.SessionID,
		Seats:           b.Seats,
		Amount:          amount,
		Currency:        b.Currency,
		PaymentIntentID: b.PaymentIntentID,
	}
}
