package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cinema_booking/model"
)

type seatKey struct {
	sessionID uint
	label     string
}

type memoryState struct {
	seq       uint
	sessions  map[uint]model.Session
	seats     map[seatKey]model.SessionSeat
	products  map[uint]model.Product
	customers map[uint]model.Customer
	bookings  map[uint]model.Booking
	lines     map[uint][]model.BookingProduct
	tickets   map[uint]model.Ticket
	tasks     map[uint]model.ScheduledTask
	events    map[string]model.ProcessedEvent
	reports   map[uint]model.FinancialReport
}

func newMemoryState() *memoryState {
	return &memoryState{
		sessions:  map[uint]model.Session{},
		seats:     map[seatKey]model.SessionSeat{},
		products:  map[uint]model.Product{},
		customers: map[uint]model.Customer{},
		bookings:  map[uint]model.Booking{},
		lines:     map[uint][]model.BookingProduct{},
		tickets:   map[uint]model.Ticket{},
		tasks:     map[uint]model.ScheduledTask{},
		events:    map[string]model.ProcessedEvent{},
		reports:   map[uint]model.FinancialReport{},
	}
}

// clone copies every table. Stored values are replaced on write, never mutated in place,
// so copying the maps is enough to snapshot the state.
func (s *memoryState) clone() *memoryState {
	c := &memoryState{seq: s.seq}
	c.sessions = cloneMap(s.sessions)
	c.seats = cloneMap(s.seats)
	c.products = cloneMap(s.products)
	c.customers = cloneMap(s.customers)
	c.bookings = cloneMap(s.bookings)
	c.lines = cloneMap(s.lines)
	c.tickets = cloneMap(s.tickets)
	c.tasks = cloneMap(s.tasks)
	c.events = cloneMap(s.events)
	c.reports = cloneMap(s.reports)
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memoryState) nextID() uint {
	s.seq++
	return s.seq
}

type memoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// MemoryRepository keeps every table in process memory. Units of work are fully
// serialized, which gives the same per-row guarantees as row locks in Postgres.
type MemoryRepository struct {
	store *memoryStore
	inTx  bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: &memoryStore{state: newMemoryState()}}
}

// with runs fn against the current state, taking the store lock unless a unit of work already holds it.
func (r *MemoryRepository) with(ctx context.Context, fn func(s *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.inTx {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}
	return fn(r.store.state)
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	snapshot := r.store.state.clone()
	if err := fn(&MemoryRepository{store: r.store, inTx: true}); err != nil {
		r.store.state = snapshot
		return err
	}
	return nil
}

func (r *MemoryRepository) CreateSession(ctx context.Context, session *model.Session) error {
	return r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		session.ID = s.nextID()
		session.CreatedAt, session.UpdatedAt = now, now
		for i := range session.Seats {
			seat := &session.Seats[i]
			key := seatKey{session.ID, seat.Label}
			if _, dup := s.seats[key]; dup {
				return fmt.Errorf("duplicate seat %s", seat.Label)
			}
			seat.ID = s.nextID()
			seat.SessionID = session.ID
			seat.UpdatedAt = now
			s.seats[key] = *seat
		}
		stored := *session
		stored.Seats = nil
		s.sessions[session.ID] = stored
		return nil
	})
}

func (r *MemoryRepository) GetSession(ctx context.Context, id uint) (*model.Session, error) {
	var out *model.Session
	err := r.with(ctx, func(s *memoryState) error {
		session, ok := s.sessions[id]
		if !ok {
			return ErrNotFound
		}
		out = &session
		return nil
	})
	return out, err
}

func (r *MemoryRepository) LockSession(ctx context.Context, id uint) (*model.Session, error) {
	return r.GetSession(ctx, id)
}

func (r *MemoryRepository) UpdateSessionStatus(ctx context.Context, id uint, status model.SessionStatus) error {
	return r.with(ctx, func(s *memoryState) error {
		session, ok := s.sessions[id]
		if !ok {
			return ErrNotFound
		}
		session.Status = status
		session.UpdatedAt = time.Now()
		s.sessions[id] = session
		return nil
	})
}

func (r *MemoryRepository) StartDueSessions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.with(ctx, func(s *memoryState) error {
		for id, session := range s.sessions {
			if (session.Status == model.SessionAvailable || session.Status == model.SessionSoldOut) &&
				!session.StartTime.After(now) && session.EndTime.After(now) {
				session.Status = model.SessionInProgress
				s.sessions[id] = session
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *MemoryRepository) FinishDueSessions(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.with(ctx, func(s *memoryState) error {
		for id, session := range s.sessions {
			if session.Closed() || session.EndTime.After(now) {
				continue
			}
			session.Status = model.SessionFinished
			s.sessions[id] = session
			ids = append(ids, id)
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

func (r *MemoryRepository) ListSeats(ctx context.Context, sessionID uint) ([]model.SessionSeat, error) {
	var seats []model.SessionSeat
	err := r.with(ctx, func(s *memoryState) error {
		for key, seat := range s.seats {
			if key.sessionID == sessionID {
				seats = append(seats, seat)
			}
		}
		return nil
	})
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		return seats[i].Column < seats[j].Column
	})
	return seats, err
}

func (r *MemoryRepository) LockSeats(ctx context.Context, sessionID uint, labels []string) ([]model.SessionSeat, error) {
	var seats []model.SessionSeat
	err := r.with(ctx, func(s *memoryState) error {
		for _, label := range labels {
			if seat, ok := s.seats[seatKey{sessionID, label}]; ok {
				seats = append(seats, seat)
			}
		}
		return nil
	})
	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
	return seats, err
}

func (r *MemoryRepository) TransitionSeats(ctx context.Context, sessionID uint, labels []string, from, to model.SeatStatus) (int64, error) {
	if !model.CanTransitionSeat(from, to) {
		return 0, fmt.Errorf("%w: seat %s -> %s", ErrInvalidTransition, from, to)
	}
	var n int64
	err := r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		for _, label := range labels {
			key := seatKey{sessionID, label}
			seat, ok := s.seats[key]
			if !ok || seat.Status != from {
				continue
			}
			seat.Status = to
			seat.UpdatedAt = now
			s.seats[key] = seat
			n++
		}
		return nil
	})
	return n, err
}

func (r *MemoryRepository) CountSeats(ctx context.Context, sessionID uint, status model.SeatStatus) (int64, error) {
	var n int64
	err := r.with(ctx, func(s *memoryState) error {
		for key, seat := range s.seats {
			if key.sessionID == sessionID && seat.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *MemoryRepository) GetProducts(ctx context.Context, ids []uint) ([]model.Product, error) {
	var products []model.Product
	err := r.with(ctx, func(s *memoryState) error {
		for _, id := range ids {
			if p, ok := s.products[id]; ok && p.Active {
				products = append(products, p)
			}
		}
		return nil
	})
	return products, err
}

func (r *MemoryRepository) CreateProduct(ctx context.Context, product *model.Product) error {
	return r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		product.ID = s.nextID()
		product.CreatedAt, product.UpdatedAt = now, now
		s.products[product.ID] = *product
		return nil
	})
}

func (r *MemoryRepository) CreateCustomer(ctx context.Context, customer *model.Customer) error {
	return r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		customer.ID = s.nextID()
		customer.CreatedAt, customer.UpdatedAt = now, now
		s.customers[customer.ID] = *customer
		return nil
	})
}

func (r *MemoryRepository) GetCustomer(ctx context.Context, id uint) (*model.Customer, error) {
	var out *model.Customer
	err := r.with(ctx, func(s *memoryState) error {
		c, ok := s.customers[id]
		if !ok {
			return ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *MemoryRepository) AddLoyaltyPoints(ctx context.Context, customerID uint, points int64) error {
	return r.with(ctx, func(s *memoryState) error {
		c, ok := s.customers[customerID]
		if !ok {
			return ErrNotFound
		}
		c.LoyaltyPoints += points
		c.UpdatedAt = time.Now()
		s.customers[customerID] = c
		return nil
	})
}

func (r *MemoryRepository) CreateBooking(ctx context.Context, booking *model.Booking) error {
	return r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		booking.ID = s.nextID()
		booking.CreatedAt, booking.UpdatedAt = now, now
		lines := make([]model.BookingProduct, len(booking.Products))
		for i := range booking.Products {
			booking.Products[i].ID = s.nextID()
			booking.Products[i].BookingID = booking.ID
			lines[i] = booking.Products[i]
		}
		s.lines[booking.ID] = lines
		s.bookings[booking.ID] = storedBooking(booking)
		return nil
	})
}

func storedBooking(b *model.Booking) model.Booking {
	stored := *b
	stored.Seats = append([]string(nil), b.Seats...)
	stored.Products = nil
	stored.Tickets = nil
	return stored
}

func (s *memoryState) bookingTickets(bookingID uint) []model.Ticket {
	var tickets []model.Ticket
	for _, t := range s.tickets {
		if t.BookingID == bookingID {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets
}

func (r *MemoryRepository) GetBooking(ctx context.Context, id uint) (*model.Booking, error) {
	var out *model.Booking
	err := r.with(ctx, func(s *memoryState) error {
		b, ok := s.bookings[id]
		if !ok {
			return ErrNotFound
		}
		b.Seats = append([]string(nil), b.Seats...)
		b.Products = append([]model.BookingProduct(nil), s.lines[id]...)
		b.Tickets = s.bookingTickets(id)
		out = &b
		return nil
	})
	return out, err
}

func (r *MemoryRepository) LockBooking(ctx context.Context, id uint) (*model.Booking, error) {
	var out *model.Booking
	err := r.with(ctx, func(s *memoryState) error {
		b, ok := s.bookings[id]
		if !ok {
			return ErrNotFound
		}
		b.Seats = append([]string(nil), b.Seats...)
		out = &b
		return nil
	})
	return out, err
}

func (r *MemoryRepository) FindBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error) {
	var out *model.Booking
	err := r.with(ctx, func(s *memoryState) error {
		for _, b := range s.bookings {
			if paymentIntentID != "" && b.PaymentIntentID == paymentIntentID {
				b.Seats = append([]string(nil), b.Seats...)
				out = &b
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r *MemoryRepository) UpdateBooking(ctx context.Context, booking *model.Booking) error {
	return r.with(ctx, func(s *memoryState) error {
		current, ok := s.bookings[booking.ID]
		if !ok {
			return ErrNotFound
		}
		current.Status = booking.Status
		current.PaymentStatus = booking.PaymentStatus
		current.PaymentIntentID = booking.PaymentIntentID
		current.PaymentSessionID = booking.PaymentSessionID
		current.TotalAmount = booking.TotalAmount
		current.RefundedAmount = booking.RefundedAmount
		current.PaidAt = booking.PaidAt
		current.CancelledAt = booking.CancelledAt
		current.UpdatedAt = time.Now()
		s.bookings[booking.ID] = current
		return nil
	})
}

func (r *MemoryRepository) ReplaceBookingProducts(ctx context.Context, bookingID uint, products []model.BookingProduct) error {
	return r.with(ctx, func(s *memoryState) error {
		if _, ok := s.bookings[bookingID]; !ok {
			return ErrNotFound
		}
		lines := make([]model.BookingProduct, len(products))
		for i := range products {
			products[i].ID = s.nextID()
			products[i].BookingID = bookingID
			lines[i] = products[i]
		}
		s.lines[bookingID] = lines
		return nil
	})
}

func (r *MemoryRepository) DeleteBooking(ctx context.Context, id uint) error {
	return r.with(ctx, func(s *memoryState) error {
		if _, ok := s.bookings[id]; !ok {
			return ErrNotFound
		}
		delete(s.bookings, id)
		delete(s.lines, id)
		return nil
	})
}

func (r *MemoryRepository) CompleteBookings(ctx context.Context, sessionIDs []uint) (int64, error) {
	var n int64
	err := r.with(ctx, func(s *memoryState) error {
		wanted := make(map[uint]bool, len(sessionIDs))
		for _, id := range sessionIDs {
			wanted[id] = true
		}
		for id, b := range s.bookings {
			if wanted[b.SessionID] && b.Status == model.BookingActive && b.PaymentStatus == model.PaymentPaid {
				b.Status = model.BookingCompleted
				s.bookings[id] = b
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *MemoryRepository) CreateTickets(ctx context.Context, tickets []model.Ticket) error {
	return r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		for i := range tickets {
			for _, existing := range s.tickets {
				if existing.Code == tickets[i].Code {
					return fmt.Errorf("duplicate ticket code %s", tickets[i].Code)
				}
			}
			tickets[i].ID = s.nextID()
			tickets[i].CreatedAt, tickets[i].UpdatedAt = now, now
			s.tickets[tickets[i].ID] = tickets[i]
		}
		return nil
	})
}

func (r *MemoryRepository) ListTickets(ctx context.Context, bookingID uint) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := r.with(ctx, func(s *memoryState) error {
		tickets = s.bookingTickets(bookingID)
		return nil
	})
	return tickets, err
}

func (r *MemoryRepository) GetTicket(ctx context.Context, id uint) (*model.Ticket, error) {
	var out *model.Ticket
	err := r.with(ctx, func(s *memoryState) error {
		t, ok := s.tickets[id]
		if !ok {
			return ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *MemoryRepository) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	var out *model.Ticket
	err := r.with(ctx, func(s *memoryState) error {
		for _, t := range s.tickets {
			if t.Code == code {
				out = &t
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r *MemoryRepository) UpdateTicketStatus(ctx context.Context, id uint, from, to model.TicketStatus, at time.Time) (bool, error) {
	var changed bool
	err := r.with(ctx, func(s *memoryState) error {
		t, ok := s.tickets[id]
		if !ok || t.Status != from {
			return nil
		}
		t.Status = to
		switch to {
		case model.TicketUsed:
			t.UsedAt = &at
		case model.TicketRefunded, model.TicketCancelled:
			t.RefundedAt = &at
		}
		t.UpdatedAt = at
		s.tickets[id] = t
		changed = true
		return nil
	})
	return changed, err
}

func (r *MemoryRepository) CreateTask(ctx context.Context, task *model.ScheduledTask) error {
	return r.with(ctx, func(s *memoryState) error {
		now := time.Now()
		task.ID = s.nextID()
		task.CreatedAt, task.UpdatedAt = now, now
		s.tasks[task.ID] = *task
		return nil
	})
}

func (r *MemoryRepository) DueTasks(ctx context.Context, kind string, now time.Time, limit int) ([]model.ScheduledTask, error) {
	var tasks []model.ScheduledTask
	err := r.with(ctx, func(s *memoryState) error {
		for _, t := range s.tasks {
			if t.Kind == kind && t.DoneAt == nil && !t.DueAt.After(now) {
				tasks = append(tasks, t)
			}
		}
		return nil
	})
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].DueAt.Before(tasks[j].DueAt) })
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, err
}

func (r *MemoryRepository) CompleteTask(ctx context.Context, id uint, at time.Time) error {
	return r.with(ctx, func(s *memoryState) error {
		t, ok := s.tasks[id]
		if !ok {
			return ErrNotFound
		}
		t.DoneAt = &at
		t.UpdatedAt = at
		s.tasks[id] = t
		return nil
	})
}

func (r *MemoryRepository) RetryTask(ctx context.Context, id uint, lastErr string, dueAt time.Time) error {
	return r.with(ctx, func(s *memoryState) error {
		t, ok := s.tasks[id]
		if !ok {
			return ErrNotFound
		}
		t.Attempts++
		t.LastError = lastErr
		t.DueAt = dueAt
		t.UpdatedAt = time.Now()
		s.tasks[id] = t
		return nil
	})
}

func (r *MemoryRepository) CompleteBookingTasks(ctx context.Context, bookingID uint, at time.Time) error {
	return r.with(ctx, func(s *memoryState) error {
		for id, t := range s.tasks {
			if t.BookingID == bookingID && t.DoneAt == nil {
				done := at
				t.DoneAt = &done
				s.tasks[id] = t
			}
		}
		return nil
	})
}

func (r *MemoryRepository) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	var fresh bool
	err := r.with(ctx, func(s *memoryState) error {
		if _, seen := s.events[eventID]; seen {
			return nil
		}
		s.events[eventID] = model.ProcessedEvent{ID: s.nextID(), EventID: eventID, Type: eventType, CreatedAt: time.Now()}
		fresh = true
		return nil
	})
	return fresh, err
}

func (r *MemoryRepository) CreateReport(ctx context.Context, report *model.FinancialReport) error {
	return r.with(ctx, func(s *memoryState) error {
		report.ID = s.nextID()
		report.CreatedAt = time.Now()
		s.reports[report.ID] = *report
		return nil
	})
}

func (r *MemoryRepository) ListReports(ctx context.Context, bookingID uint) ([]model.FinancialReport, error) {
	var reports []model.FinancialReport
	err := r.with(ctx, func(s *memoryState) error {
		for _, rep := range s.reports {
			if rep.BookingID == bookingID {
				reports = append(reports, rep)
			}
		}
		return nil
	})
	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, err
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*GormRepository)(nil)
)
