// Package payment adapts external payment processors to the booking workflow.
//
// All amounts are integer minor units (cents). Every gateway call is network I/O and
// failures come back as apperror.KindServiceUnavailable, apart from webhook
// authentication failures which are validation errors.
package payment

import (
	"context"
	"strconv"
)

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentCanceled  IntentStatus = "canceled"
)

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

type EventType string

const (
	EventIntentCreated     EventType = "payment_intent.created"
	EventCheckoutCompleted EventType = "checkout.session.completed"
	EventIntentSucceeded   EventType = "payment_intent.succeeded"
	EventIntentFailed      EventType = "payment_intent.payment_failed"
	EventIgnored           EventType = "ignored"
)

const MetadataBookingID = "bookingId"

type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type SessionRequest struct {
	BookingID     uint
	BookingCode   string
	CustomerID    uint
	CustomerEmail string
	SessionID     uint
	Amount        int64
	Currency      string
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	Status          SessionStatus
}

type PaymentIntent struct {
	ID        string
	Status    IntentStatus
	Amount    int64
	Currency  string
	Method    string
	BookingID uint
}

type RefundRequest struct {
	PaymentIntentID string
	// Amount of zero refunds whatever remains on the payment.
	Amount         int64
	IdempotencyKey string
	Reason         string
}

type Refund struct {
	ID              string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Status          string
}

// Event is a provider callback reduced to the fields the booking workflow consumes.
type Event struct {
	ID                string
	Type              EventType
	ProviderType      string
	BookingID         uint
	PaymentIntentID   string
	CheckoutSessionID string
	Amount            int64
	Currency          string
	Method            string
}

type Gateway interface {
	Name() string
	OpenPaymentSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	// ExpireCheckoutSession closes an open checkout so it can no longer take money. A
	// checkout the customer already completed is returned as SessionComplete.
	ExpireCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	RetrieveChargeNetAmount(ctx context.Context, paymentIntentID string) (int64, error)
	// SignatureHeader names the request header carrying the webhook signature, if any.
	SignatureHeader() string
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

func FormatBookingID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseBookingID returns zero for missing or malformed ids.
func ParseBookingID(s string) uint {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
