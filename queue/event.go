package queue

import "time"

// BookingEvent is the envelope published for booking lifecycle changes.
type BookingEvent struct {
	Event      string           `json:"event"`
	Version    int              `json:"version"`
	OccurredAt string           `json:"occurred_at"`
	Data       BookingEventData `json:"data"`
}

type BookingEventData struct {
	BookingID       uint     `json:"booking_id"`
	BookingCode     string   `json:"booking_code"`
	CustomerID      uint     `json:"customer_id"`
	SessionID       uint     `json:"session_id"`
	Seats           []string `json:"seats"`
	Amount          int64    `json:"amount"`
	Currency        string   `json:"currency"`
	PaymentIntentID string   `json:"payment_intent_id,omitempty"`
}

func NewBookingEvent(name string, at time.Time, data BookingEventData) BookingEvent {
	return BookingEvent{
		Event:      name,
		Version:    1,
		OccurredAt: at.UTC().Format(time.RFC3339),
		Data:       data,
	}
}
