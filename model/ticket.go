package model

import "time"

type TicketStatus string

const (
	TicketBooked    TicketStatus = "booked"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
	// TicketRefunding marks a ticket claimed by a refund whose gateway call is in flight.
	TicketRefunding TicketStatus = "refunding"
)

type Ticket struct {
	DTO
	Code       string       `gorm:"size:20;uniqueIndex" json:"code"`
	BookingID  uint         `gorm:"not null;index" json:"bookingId"`
	CustomerID uint         `gorm:"not null;index" json:"customerId"`
	SessionID  uint         `gorm:"not null;index" json:"sessionId"`
	SeatLabel  string       `gorm:"size:8;not null" json:"seatLabel"`
	Price      int64        `gorm:"not null" json:"price"`
	Status     TicketStatus `gorm:"size:20;not null;default:'booked'" json:"status"`
	QRPayload  string       `gorm:"type:text" json:"-"`
	IssuedAt   time.Time    `json:"issuedAt"`
	UsedAt     *time.Time   `json:"usedAt,omitempty"`
	RefundedAt *time.Time   `json:"refundedAt,omitempty"`
}

func (t *Ticket) Refundable() bool {
	return t.Status == TicketBooked
}

type TicketView struct {
	ID         uint         `json:"id"`
	Code       string       `json:"code"`
	SeatLabel  string       `json:"seatLabel"`
	Price      int64        `json:"price"`
	Status     TicketStatus `json:"status"`
	QRPayload  string       `json:"qrPayload,omitempty"`
	IssuedAt   time.Time    `json:"issuedAt"`
	UsedAt     *time.Time   `json:"usedAt,omitempty"`
	RefundedAt *time.Time   `json:"refundedAt,omitempty"`
}

type VerifyTicketInput struct {
	Code string `json:"code" validate:"required"`
}

type TicketVerification struct {
	Valid  bool       `json:"valid"`
	Reason string     `json:"reason,omitempty"`
	Ticket TicketView `json:"ticket"`
}

type RefundResult struct {
	BookingID       uint          `json:"bookingId"`
	RefundID        string        `json:"refundId"`
	Amount          int64         `json:"amount"`
	Percent         int           `json:"percent"`
	RefundedTickets []TicketView  `json:"refundedTickets"`
	BookingStatus   BookingStatus `json:"bookingStatus"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	Booking         *BookingView  `json:"booking,omitempty"`
}
