// Package service holds the booking workflow: reservation, payment confirmation,
// pending-payment expiry, ticket issuance and verification, cancellation and refunds.
package service

import (
	"context"
	"errors"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/database"
	"cinema_booking/logger"
	"cinema_booking/mailer"
	"cinema_booking/metrics"
	"cinema_booking/model"
	"cinema_booking/payment"
	"cinema_booking/ticketing"

	"go.uber.org/zap"
)

type Mailer interface {
	SendBookingConfirmation(ctx context.Context, c mailer.Confirmation) error
	SendRefundNotice(ctx context.Context, n mailer.RefundNotice) error
}

type ReportStore interface {
	Record(ctx context.Context, report *model.FinancialReport) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type SeatNotifier interface {
	SeatsChanged(ctx context.Context, sessionID uint, labels []string, status model.SeatStatus)
}

type nopNotifier struct{}

func (nopNotifier) SeatsChanged(context.Context, uint, []string, model.SeatStatus) {}

type nopPublisher struct{}

func (nopPublisher) PublishJSON(context.Context, string, any) error { return nil }

type nopReports struct{}

func (nopReports) Record(context.Context, *model.FinancialReport) error { return nil }

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	CustomerID uint
	Staff      bool
}

type Options struct {
	PaymentTimeout       time.Duration
	Currency             string
	LoyaltyCentsPerPoint int64
	AppURL               string
}

type Option func(*BookingService)

func WithMailer(m Mailer) Option             { return func(s *BookingService) { s.mailer = m } }
func WithReports(r ReportStore) Option       { return func(s *BookingService) { s.reports = r } }
func WithEvents(p EventPublisher) Option     { return func(s *BookingService) { s.events = p } }
func WithSeatNotifier(n SeatNotifier) Option { return func(s *BookingService) { s.seats = n } }
func WithMetrics(m *metrics.Metrics) Option  { return func(s *BookingService) { s.metrics = m } }
func WithClock(now func() time.Time) Option  { return func(s *BookingService) { s.now = now } }

type BookingService struct {
	repo    database.Repository
	gateway payment.Gateway
	signer  *ticketing.Signer
	mailer  Mailer
	reports ReportStore
	events  EventPublisher
	seats   SeatNotifier
	metrics *metrics.Metrics
	now     func() time.Time
	opts    Options
}

func NewBookingService(repo database.Repository, gateway payment.Gateway, signer *ticketing.Signer, opts Options, options ...Option) *BookingService {
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 5 * time.Minute
	}
	if opts.LoyaltyCentsPerPoint <= 0 {
		opts.LoyaltyCentsPerPoint = 100
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	s := &BookingService{
		repo:    repo,
		gateway: gateway,
		signer:  signer,
		mailer:  mailer.Nop{},
		reports: nopReports{},
		events:  nopPublisher{},
		seats:   nopNotifier{},
		now:     time.Now,
		opts:    opts,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// dbErr maps repository failures onto the error taxonomy.
func dbErr(op string, err error, notFound string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, database.ErrNotFound) && notFound != "" {
		return apperror.NotFound(notFound)
	}
	return apperror.Database(op, err)
}

func (s *BookingService) ownedBooking(ctx context.Context, id uint, actor Actor) (*model.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, dbErr("get booking", err, constants.BOOKING_NOT_FOUND)
	}
	if !actor.Staff && booking.CustomerID != actor.CustomerID {
		// do not reveal other customers' bookings
		return nil, apperror.NotFound(constants.BOOKING_NOT_FOUND)
	}
	return booking, nil
}

// syncSessionStatus keeps sold_out in step with the number of available seats.
func syncSessionStatus(ctx context.Context, tx database.Repository, sessionID uint) error {
	session, err := tx.LockSession(ctx, sessionID)
	if err != nil {
		return dbErr("lock session", err, constants.SESSION_NOT_FOUND)
	}
	available, err := tx.CountSeats(ctx, sessionID, model.SeatAvailable)
	if err != nil {
		return dbErr("count seats", err, "")
	}
	next := session.AvailabilityStatus(available)
	if next == session.Status {
		return nil
	}
	return dbErr("update session status", tx.UpdateSessionStatus(ctx, sessionID, next), "")
}

func (s *BookingService) publish(ctx context.Context, key string, v any) {
	if err := s.events.PublishJSON(ctx, key, v); err != nil {
		logger.Warn("Publish booking event failed", zap.String("event", key), zap.Error(err))
	}
}

func (s *BookingService) record(ctx context.Context, report *model.FinancialReport) {
	if err := s.reports.Record(ctx, report); err != nil {
		logger.Error("Record financial report failed",
			zap.Uint("booking_id", report.BookingID),
			zap.String("kind", string(report.Kind)),
			zap.Int64("amount", report.Amount),
			zap.Error(err))
	}
}
