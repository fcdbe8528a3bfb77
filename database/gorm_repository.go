package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema_booking/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *GormRepository) locked(ctx context.Context) *gorm.DB {
	return r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func wrap(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func (r *GormRepository) CreateSession(ctx context.Context, session *model.Session) error {
	return r.conn(ctx).Create(session).Error
}

func (r *GormRepository) GetSession(ctx context.Context, id uint) (*model.Session, error) {
	var session model.Session
	if err := r.conn(ctx).First(&session, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &session, nil
}

func (r *GormRepository) LockSession(ctx context.Context, id uint) (*model.Session, error) {
	var session model.Session
	if err := r.locked(ctx).First(&session, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &session, nil
}

func (r *GormRepository) UpdateSessionStatus(ctx context.Context, id uint, status model.SessionStatus) error {
	result := r.conn(ctx).Model(&model.Session{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) StartDueSessions(ctx context.Context, now time.Time) (int64, error) {
	result := r.conn(ctx).Model(&model.Session{}).
		Where("status IN ? AND start_time <= ? AND end_time > ?",
			[]model.SessionStatus{model.SessionAvailable, model.SessionSoldOut}, now, now).
		Update("status", model.SessionInProgress)
	return result.RowsAffected, result.Error
}

func (r *GormRepository) FinishDueSessions(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Session{}).
			Where("status IN ? AND end_time <= ?", []model.SessionStatus{
				model.SessionAvailable, model.SessionSoldOut, model.SessionInProgress,
			}, now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&model.Session{}).Where("id IN ?", ids).Update("status", model.SessionFinished).Error
	})
	return ids, err
}

func (r *GormRepository) ListSeats(ctx context.Context, sessionID uint) ([]model.SessionSeat, error) {
	var seats []model.SessionSeat
	err := r.conn(ctx).Where("session_id = ?", sessionID).Order("seat_row, seat_col").Find(&seats).Error
	return seats, err
}

func (r *GormRepository) LockSeats(ctx context.Context, sessionID uint, labels []string) ([]model.SessionSeat, error) {
	var seats []model.SessionSeat
	// Lock in id order so overlapping reservations always queue in the same sequence.
	err := r.locked(ctx).
		Where("session_id = ? AND label IN ?", sessionID, labels).
		Order("id").
		Find(&seats).Error
	return seats, err
}

func (r *GormRepository) TransitionSeats(ctx context.Context, sessionID uint, labels []string, from, to model.SeatStatus) (int64, error) {
	if !model.CanTransitionSeat(from, to) {
		return 0, fmt.Errorf("%w: seat %s -> %s", ErrInvalidTransition, from, to)
	}
	result := r.conn(ctx).Model(&model.SessionSeat{}).
		Where("session_id = ? AND label IN ? AND status = ?", sessionID, labels, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}

func (r *GormRepository) CountSeats(ctx context.Context, sessionID uint, status model.SeatStatus) (int64, error) {
	var n int64
	err := r.conn(ctx).Model(&model.SessionSeat{}).
		Where("session_id = ? AND status = ?", sessionID, status).
		Count(&n).Error
	return n, err
}

func (r *GormRepository) GetProducts(ctx context.Context, ids []uint) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.conn(ctx).Where("id IN ? AND active = ?", ids, true).Find(&products).Error
	return products, err
}

func (r *GormRepository) CreateProduct(ctx context.Context, product *model.Product) error {
	return r.conn(ctx).Create(product).Error
}

func (r *GormRepository) CreateCustomer(ctx context.Context, customer *model.Customer) error {
	return r.conn(ctx).Create(customer).Error
}

func (r *GormRepository) GetCustomer(ctx context.Context, id uint) (*model.Customer, error) {
	var customer model.Customer
	if err := r.conn(ctx).First(&customer, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &customer, nil
}

func (r *GormRepository) AddLoyaltyPoints(ctx context.Context, customerID uint, points int64) error {
	result := r.conn(ctx).Model(&model.Customer{}).
		Where("id = ?", customerID).
		Update("loyalty_points", gorm.Expr("loyalty_points + ?", points))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) CreateBooking(ctx context.Context, booking *model.Booking) error {
	return r.conn(ctx).Create(booking).Error
}

func (r *GormRepository) GetBooking(ctx context.Context, id uint) (*model.Booking, error) {
	var booking model.Booking
	err := r.conn(ctx).
		Preload("Products").
		Preload("Tickets", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&booking, id).Error
	if err != nil {
		return nil, wrap(err)
	}
	return &booking, nil
}

func (r *GormRepository) LockBooking(ctx context.Context, id uint) (*model.Booking, error) {
	var booking model.Booking
	if err := r.locked(ctx).First(&booking, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &booking, nil
}

func (r *GormRepository) FindBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error) {
	var booking model.Booking
	if err := r.conn(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&booking).Error; err != nil {
		return nil, wrap(err)
	}
	return &booking, nil
}

func (r *GormRepository) UpdateBooking(ctx context.Context, booking *model.Booking) error {
	result := r.conn(ctx).Model(booking).
		Select("Status", "PaymentStatus", "PaymentIntentID", "PaymentSessionID",
			"TotalAmount", "RefundedAmount", "PaidAt", "CancelledAt").
		Updates(booking)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) ReplaceBookingProducts(ctx context.Context, bookingID uint, products []model.BookingProduct) error {
	if err := r.conn(ctx).Where("booking_id = ?", bookingID).Delete(&model.BookingProduct{}).Error; err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}
	for i := range products {
		products[i].ID = 0
		products[i].BookingID = bookingID
	}
	return r.conn(ctx).Create(&products).Error
}

func (r *GormRepository) DeleteBooking(ctx context.Context, id uint) error {
	if err := r.conn(ctx).Where("booking_id = ?", id).Delete(&model.BookingProduct{}).Error; err != nil {
		return err
	}
	result := r.conn(ctx).Delete(&model.Booking{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) CompleteBookings(ctx context.Context, sessionIDs []uint) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	result := r.conn(ctx).Model(&model.Booking{}).
		Where("session_id IN ? AND status = ? AND payment_status = ?",
			sessionIDs, model.BookingActive, model.PaymentPaid).
		Update("status", model.BookingCompleted)
	return result.RowsAffected, result.Error
}

func (r *GormRepository) CreateTickets(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.conn(ctx).Create(&tickets).Error
}

func (r *GormRepository) ListTickets(ctx context.Context, bookingID uint) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := r.conn(ctx).Where("booking_id = ?", bookingID).Order("id").Find(&tickets).Error
	return tickets, err
}

func (r *GormRepository) GetTicket(ctx context.Context, id uint) (*model.Ticket, error) {
	var ticket model.Ticket
	if err := r.conn(ctx).First(&ticket, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &ticket, nil
}

func (r *GormRepository) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	var ticket model.Ticket
	if err := r.conn(ctx).Where("code = ?", code).First(&ticket).Error; err != nil {
		return nil, wrap(err)
	}
	return &ticket, nil
}

func (r *GormRepository) UpdateTicketStatus(ctx context.Context, id uint, from, to model.TicketStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case model.TicketUsed:
		updates["used_at"] = at
	case model.TicketRefunded, model.TicketCancelled:
		updates["refunded_at"] = at
	}
	result := r.conn(ctx).Model(&model.Ticket{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

func (r *GormRepository) CreateTask(ctx context.Context, task *model.ScheduledTask) error {
	return r.conn(ctx).Create(task).Error
}

func (r *GormRepository) DueTasks(ctx context.Context, kind string, now time.Time, limit int) ([]model.ScheduledTask, error) {
	var tasks []model.ScheduledTask
	err := r.conn(ctx).
		Where("kind = ? AND done_at IS NULL AND due_at <= ?", kind, now).
		Order("due_at").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *GormRepository) CompleteTask(ctx context.Context, id uint, at time.Time) error {
	return r.conn(ctx).Model(&model.ScheduledTask{}).Where("id = ?", id).Update("done_at", at).Error
}

func (r *GormRepository) RetryTask(ctx context.Context, id uint, lastErr string, dueAt time.Time) error {
	return r.conn(ctx).Model(&model.ScheduledTask{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastErr,
		"due_at":     dueAt,
	}).Error
}

func (r *GormRepository) CompleteBookingTasks(ctx context.Context, bookingID uint, at time.Time) error {
	return r.conn(ctx).Model(&model.ScheduledTask{}).
		Where("booking_id = ? AND done_at IS NULL", bookingID).
		Update("done_at", at).Error
}

func (r *GormRepository) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	event := model.ProcessedEvent{EventID: eventID, Type: eventType}
	result := r.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&event)
	return result.RowsAffected == 1, result.Error
}

func (r *GormRepository) CreateReport(ctx context.Context, report *model.FinancialReport) error {
	return r.conn(ctx).Create(report).Error
}

func (r *GormRepository) ListReports(ctx context.Context, bookingID uint) ([]model.FinancialReport, error) {
	var reports []model.FinancialReport
	err := r.conn(ctx).Where("booking_id = ?", bookingID).Order("id").Find(&reports).Error
	return reports, err
}
