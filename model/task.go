package model

import "time"

const TaskExpirePendingBooking = "expire_pending_booking"

// ScheduledTask is a durable timer; the sweeper picks up rows whose DueAt has passed.
type ScheduledTask struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Kind      string     `gorm:"size:50;not null;index:idx_task_due" json:"kind"`
	BookingID uint       `gorm:"not null;index" json:"bookingId"`
	DueAt     time.Time  `gorm:"not null;index:idx_task_due" json:"dueAt"`
	DoneAt    *time.Time `gorm:"index:idx_task_due" json:"doneAt,omitempty"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	LastError string     `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ProcessedEvent records gateway event ids already handled.
type ProcessedEvent struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"size:255;not null;uniqueIndex"`
	Type      string    `gorm:"size:100"`
	CreatedAt time.Time
}
