package model

import "time"

type ReportKind string

const (
	ReportPayment ReportKind = "payment"
	ReportRefund  ReportKind = "refund"
)

// FinancialReport is append-only: one row per confirmed payment or refund.
type FinancialReport struct {
	ID                uint       `gorm:"primaryKey" json:"id" bson:"-"`
	Kind              ReportKind `gorm:"size:20;not null;index" json:"kind" bson:"kind"`
	ProviderPaymentID string     `gorm:"size:255;index" json:"providerPaymentId" bson:"providerPaymentId"`
	ProviderRefundID  string     `gorm:"size:255" json:"providerRefundId,omitempty" bson:"providerRefundId,omitempty"`
	BookingID         uint       `gorm:"not null;index" json:"bookingId" bson:"bookingId"`
	CustomerID        uint       `gorm:"not null" json:"customerId" bson:"customerId"`
	CustomerEmail     string     `gorm:"size:255" json:"customerEmail" bson:"customerEmail"`
	Amount            int64      `gorm:"not null" json:"amount" bson:"amount"`
	Currency          string     `gorm:"size:3" json:"currency" bson:"currency"`
	Method            string     `gorm:"size:50" json:"method" bson:"method"`
	OccurredAt        time.Time  `json:"occurredAt" bson:"occurredAt"`
	CreatedAt         time.Time  `json:"createdAt" bson:"createdAt"`
}
