package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/logger"
	"cinema_booking/model"
	"cinema_booking/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newBookingCode() string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func normalizeSeats(labels []string) ([]string, error) {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	var dups []string
	for _, l := range labels {
		label := strings.ToUpper(strings.TrimSpace(l))
		if label == "" {
			continue
		}
		if seen[label] {
			dups = append(dups, label)
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	if len(dups) > 0 {
		return nil, apperror.Validation(constants.DUPLICATE_SEATS, dups...)
	}
	if len(out) == 0 {
		return nil, apperror.Validation(constants.ERROR_INPUT, "seats must not be empty")
	}
	return out, nil
}

// productLines prices the requested products from the catalog; repeated ids are merged.
func productLines(ctx context.Context, repo database.Repository, items []model.ProductLineInput) ([]model.BookingProduct, error) {
	if len(items) == 0 {
		return []model.BookingProduct{}, nil
	}
	quantities := map[uint]int{}
	var ids []uint
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, apperror.Validation(constants.ERROR_INPUT, fmt.Sprintf("quantity of product %d must be positive", item.ProductID))
		}
		if _, ok := quantities[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, dbErr("get products", err, "")
	}
	byID := make(map[uint]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]model.BookingProduct, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || !p.Active {
			return nil, apperror.NotFound(fmt.Sprintf("%s: %d", constants.PRODUCT_NOT_FOUND, id))
		}
		lines = append(lines, model.BookingProduct{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  quantities[id],
		})
	}
	return lines, nil
}

// Reserve holds the requested seats for a customer and opens a payment session for them.
// Seat validation and the seat flip happen in one unit of work; the gateway is only
// called after it commits.
func (s *BookingService) Reserve(ctx context.Context, sessionID, customerID uint, in model.CreateBookingInput) (*model.ReservationResult, error) {
	labels, err := normalizeSeats(in.Seats)
	if err != nil {
		return nil, err
	}
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, dbErr("get customer", err, constants.CUSTOMER_NOT_FOUND)
	}

	now := s.now()
	var (
		booking *model.Booking
		session *model.Session
	)
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		var err error
		session, err = tx.LockSession(ctx, sessionID)
		if err != nil {
			return dbErr("lock session", err, constants.SESSION_NOT_FOUND)
		}
		if !session.StartTime.After(now) {
			return apperror.Conflict(constants.SESSION_ALREADY_START)
		}
		// a sold out session falls through so the caller gets the itemized seat list
		switch session.Status {
		case model.SessionCancelled, model.SessionFinished, model.SessionInProgress:
			return apperror.Conflict(constants.SESSION_NOT_BOOKABLE, string(session.Status))
		}

		seats, err := tx.LockSeats(ctx, sessionID, labels)
		if err != nil {
			return dbErr("lock seats", err, "")
		}
		byLabel := make(map[string]model.SessionSeat, len(seats))
		for _, seat := range seats {
			byLabel[seat.Label] = seat
		}
		var unknown, taken []string
		for _, label := range labels {
			seat, ok := byLabel[label]
			switch {
			case !ok:
				unknown = append(unknown, label)
			case seat.Status != model.SeatAvailable:
				taken = append(taken, label)
			}
		}
		if len(unknown) > 0 {
			return apperror.Validation(constants.UNKNOWN_SEATS, unknown...)
		}
		if len(taken) > 0 {
			return apperror.SeatConflict(taken)
		}

		lines, err := productLines(ctx, tx, in.Products)
		if err != nil {
			return err
		}

		currency := session.Currency
		if currency == "" {
			currency = s.opts.Currency
		}
		booking = &model.Booking{
			Code:          newBookingCode(),
			CustomerID:    customerID,
			SessionID:     sessionID,
			Seats:         labels,
			SeatPrice:     session.Price,
			Currency:      currency,
			Status:        model.BookingActive,
			PaymentStatus: model.PaymentPending,
			Products:      lines,
		}
		booking.TotalAmount = booking.SeatsTotal() + booking.ProductsTotal()
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return dbErr("create booking", err, "")
		}

		n, err := tx.TransitionSeats(ctx, sessionID, labels, model.SeatAvailable, model.SeatReserved)
		if err != nil {
			return dbErr("reserve seats", err, "")
		}
		if n != int64(len(labels)) {
			return apperror.SeatConflict(labels)
		}
		if err := syncSessionStatus(ctx, tx, sessionID); err != nil {
			return err
		}

		return dbErr("schedule expiry", tx.CreateTask(ctx, &model.ScheduledTask{
			Kind:      model.TaskExpirePendingBooking,
			BookingID: booking.ID,
			DueAt:     now.Add(s.opts.PaymentTimeout),
		}), "")
	})
	if err != nil {
		s.metrics.Reservation(reservationOutcome(err))
		return nil, err
	}

	s.seats.SeatsChanged(ctx, sessionID, labels, model.SeatReserved)
	logger.Info("Seats reserved",
		zap.Uint("booking_id", booking.ID),
		zap.Uint("session_id", sessionID),
		zap.Strings("seats", labels))

	url, err := s.openPaymentSession(ctx, booking, session, customer)
	if err != nil {
		// the booking stays pending and the expiry sweep releases its seats
		s.metrics.Reservation("gateway_error")
		return nil, err
	}
	s.metrics.Reservation("success")

	return &model.ReservationResult{
		Booking:            AssembleBookingView(booking, session),
		PaymentRedirectURL: url,
	}, nil
}

func reservationOutcome(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindConflict:
		return "conflict"
	case apperror.KindValidation, apperror.KindNotFound:
		return "rejected"
	default:
		return "error"
	}
}

// openPaymentSession creates the checkout for a pending booking and stores its ids.
func (s *BookingService) openPaymentSession(ctx context.Context, booking *model.Booking, session *model.Session, customer *model.Customer) (string, error) {
	items := []payment.LineItem{{
		Name:       fmt.Sprintf("%s - seats %s", session.MovieTitle, strings.Join(booking.Seats, ", ")),
		UnitAmount: booking.SeatPrice,
		Quantity:   int64(len(booking.Seats)),
	}}
	for _, p := range booking.Products {
		items = append(items, payment.LineItem{Name: p.Name, UnitAmount: p.UnitPrice, Quantity: int64(p.Quantity)})
	}

	base := strings.TrimRight(s.opts.AppURL, "/")
	checkout, err := s.gateway.OpenPaymentSession(ctx, payment.SessionRequest{
		BookingID:     booking.ID,
		BookingCode:   booking.Code,
		CustomerID:    booking.CustomerID,
		CustomerEmail: customer.Email,
		SessionID:     booking.SessionID,
		Amount:        booking.TotalAmount,
		Currency:      booking.Currency,
		LineItems:     items,
		SuccessURL:    fmt.Sprintf("%s/bookings/%d?payment=success", base, booking.ID),
		CancelURL:     fmt.Sprintf("%s/bookings/%d?payment=cancelled", base, booking.ID),
	})
	if err != nil {
		logger.Error("Open payment session failed",
			zap.Uint("booking_id", booking.ID),
			zap.String("gateway", s.gateway.Name()),
			zap.Error(err))
		return "", err
	}

	// the webhook may already have confirmed the booking, so only fill in missing ids
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		current, err := tx.LockBooking(ctx, booking.ID)
		if err != nil {
			return dbErr("lock booking", err, constants.BOOKING_NOT_FOUND)
		}
		if current.PaymentIntentID == "" {
			current.PaymentIntentID = checkout.PaymentIntentID
		}
		if current.PaymentSessionID == "" {
			current.PaymentSessionID = checkout.ID
		}
		if err := tx.UpdateBooking(ctx, current); err != nil {
			return dbErr("attach payment session", err, "")
		}
		booking.PaymentIntentID = current.PaymentIntentID
		booking.PaymentSessionID = current.PaymentSessionID
		booking.PaymentStatus = current.PaymentStatus
		return nil
	})
	if err != nil {
		logger.Error("Attach payment session failed",
			zap.Uint("booking_id", booking.ID),
			zap.String("payment_session_id", checkout.ID),
			zap.Error(err))
		return "", err
	}
	return checkout.URL, nil
}
