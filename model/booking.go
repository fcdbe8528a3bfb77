package model

import "time"

type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentCancelled},
	PaymentPaid:    {PaymentRefunded},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Booking struct {
	DTO
	Code             string        `gorm:"size:20;uniqueIndex" json:"code"`
	CustomerID       uint          `gorm:"not null;index" json:"customerId"`
	SessionID        uint          `gorm:"not null;index" json:"sessionId"`
	Seats            []string      `gorm:"serializer:json;not null" json:"seats"`
	SeatPrice        int64         `gorm:"not null" json:"seatPrice"`
	TotalAmount      int64         `gorm:"not null" json:"totalAmount"`
	Currency         string        `gorm:"size:3;not null" json:"currency"`
	Status           BookingStatus `gorm:"size:20;not null;default:'active';index" json:"status"`
	PaymentStatus    PaymentStatus `gorm:"size:20;not null;default:'pending';index" json:"paymentStatus"`
	PaymentIntentID  string        `gorm:"size:255;index" json:"paymentIntentId,omitempty"`
	PaymentSessionID string        `gorm:"size:255" json:"paymentSessionId,omitempty"`
	RefundedAmount   int64         `gorm:"not null;default:0" json:"refundedAmount"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	CancelledAt      *time.Time    `json:"cancelledAt,omitempty"`

	Products []BookingProduct `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE" json:"products"`
	Tickets  []Ticket         `gorm:"foreignKey:BookingID" json:"tickets,omitempty"`
}

type BookingProduct struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	BookingID uint   `gorm:"not null;index" json:"bookingId"`
	ProductID uint   `gorm:"not null" json:"productId"`
	Name      string `gorm:"size:255" json:"name"`
	UnitPrice int64  `gorm:"not null" json:"unitPrice"`
	Quantity  int    `gorm:"not null" json:"quantity"`
}

func (p BookingProduct) Subtotal() int64 {
	return p.UnitPrice * int64(p.Quantity)
}

func (b *Booking) SeatsTotal() int64 {
	return b.SeatPrice * int64(len(b.Seats))
}

func (b *Booking) ProductsTotal() int64 {
	var total int64
	for _, p := range b.Products {
		total += p.Subtotal()
	}
	return total
}

// Closed bookings accept no further cancellation or refund.
func (b *Booking) Closed() bool {
	return b.Status == BookingCancelled || b.Status == BookingCompleted
}

type ProductLineInput struct {
	ProductID uint `json:"productId" validate:"required,gt=0"`
	Quantity  int  `json:"quantity" validate:"required,gt=0,lte=20"`
}

type CreateBookingInput struct {
	Seats    []string           `json:"seats" validate:"required,min=1,max=10,unique,dive,required,max=8"`
	Products []ProductLineInput `json:"products" validate:"omitempty,dive"`
}

type UpdateBookingInput struct {
	Products *[]ProductLineInput `json:"products" validate:"omitempty,dive"`
	Status   *BookingStatus      `json:"status" validate:"omitempty,oneof=completed"`
}

type RefundTicketsInput struct {
	TicketIDs []uint `json:"ticketIds" validate:"required,min=1,unique,dive,gt=0"`
}

// BookingView is the read model returned by the booking endpoints.
type BookingView struct {
	ID              uint             `json:"id"`
	Code            string           `json:"code"`
	CustomerID      uint             `json:"customerId"`
	Session         SessionSummary   `json:"session"`
	Seats           []string         `json:"seats"`
	SeatPrice       int64            `json:"seatPrice"`
	Products        []BookingProduct `json:"products"`
	TotalAmount     int64            `json:"totalAmount"`
	RefundedAmount  int64            `json:"refundedAmount"`
	Currency        string           `json:"currency"`
	Status          BookingStatus    `json:"status"`
	PaymentStatus   PaymentStatus    `json:"paymentStatus"`
	PaymentIntentID string           `json:"paymentIntentId,omitempty"`
	PaidAt          *time.Time       `json:"paidAt,omitempty"`
	CancelledAt     *time.Time       `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	Tickets         []TicketView     `json:"tickets"`
}

type SessionSummary struct {
	ID         uint          `json:"id"`
	MovieTitle string        `json:"movieTitle"`
	RoomName   string        `json:"roomName"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Status     SessionStatus `json:"status"`
}

type ReservationResult struct {
	Booking            BookingView `json:"booking"`
	PaymentRedirectURL string      `json:"paymentRedirectUrl"`
}
