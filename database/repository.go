package database

import (
	"context"
	"errors"
	"time"

	"cinema_booking/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository is the persistence boundary of the booking service.
//
// Transaction runs fn as one atomic unit of work: either every write made through the
// repository handed to fn commits, or none does. The Lock* reads inside fn hold their
// rows until the unit of work ends, which serializes competing writers per row.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id uint) (*model.Session, error)
	LockSession(ctx context.Context, id uint) (*model.Session, error)
	UpdateSessionStatus(ctx context.Context, id uint, status model.SessionStatus) error
	StartDueSessions(ctx context.Context, now time.Time) (int64, error)
	FinishDueSessions(ctx context.Context, now time.Time) ([]uint, error)

	ListSeats(ctx context.Context, sessionID uint) ([]model.SessionSeat, error)
	LockSeats(ctx context.Context, sessionID uint, labels []string) ([]model.SessionSeat, error)
	// TransitionSeats moves the labelled seats from one status to another and returns
	// how many rows actually changed. Seats not currently in from are left untouched.
	TransitionSeats(ctx context.Context, sessionID uint, labels []string, from, to model.SeatStatus) (int64, error)
	CountSeats(ctx context.Context, sessionID uint, status model.SeatStatus) (int64, error)

	GetProducts(ctx context.Context, ids []uint) ([]model.Product, error)
	CreateProduct(ctx context.Context, product *model.Product) error

	CreateCustomer(ctx context.Context, customer *model.Customer) error
	GetCustomer(ctx context.Context, id uint) (*model.Customer, error)
	AddLoyaltyPoints(ctx context.Context, customerID uint, points int64) error

	CreateBooking(ctx context.Context, booking *model.Booking) error
	GetBooking(ctx context.Context, id uint) (*model.Booking, error)
	LockBooking(ctx context.Context, id uint) (*model.Booking, error)
	FindBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error)
	UpdateBooking(ctx context.Context, booking *model.Booking) error
	ReplaceBookingProducts(ctx context.Context, bookingID uint, products []model.BookingProduct) error
	DeleteBooking(ctx context.Context, id uint) error
	CompleteBookings(ctx context.Context, sessionIDs []uint) (int64, error)

	CreateTickets(ctx context.Context, tickets []model.Ticket) error
	ListTickets(ctx context.Context, bookingID uint) ([]model.Ticket, error)
	GetTicket(ctx context.Context, id uint) (*model.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error)
	// UpdateTicketStatus is a compare-and-set; it reports false when the ticket was not in from.
	UpdateTicketStatus(ctx context.Context, id uint, from, to model.TicketStatus, at time.Time) (bool, error)

	CreateTask(ctx context.Context, task *model.ScheduledTask) error
	DueTasks(ctx context.Context, kind string, now time.Time, limit int) ([]model.ScheduledTask, error)
	CompleteTask(ctx context.Context, id uint, at time.Time) error
	RetryTask(ctx context.Context, id uint, lastErr string, dueAt time.Time) error
	CompleteBookingTasks(ctx context.Context, bookingID uint, at time.Time) error

	// MarkEventProcessed reports false when eventID was already recorded.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)

	CreateReport(ctx context.Context, report *model.FinancialReport) error
	ListReports(ctx context.Context, bookingID uint) ([]model.FinancialReport, error)
}
