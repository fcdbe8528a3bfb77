package model

import "time"

type SessionStatus string

const (
	SessionAvailable  SessionStatus = "available"
	SessionSoldOut    SessionStatus = "sold_out"
	SessionCancelled  SessionStatus = "cancelled"
	SessionFinished   SessionStatus = "finished"
	SessionInProgress SessionStatus = "in_progress"
)

type Session struct {
	DTO
	MovieTitle string        `gorm:"size:255;not null" json:"movieTitle"`
	RoomName   string        `gorm:"size:100" json:"roomName"`
	StartTime  time.Time     `gorm:"not null;index" json:"startTime"`
	EndTime    time.Time     `gorm:"not null;index" json:"endTime"`
	Price      int64         `gorm:"not null" json:"price"` // cents per seat
	Currency   string        `gorm:"size:3;not null" json:"currency"`
	Rows       int           `gorm:"column:grid_rows;not null" json:"rows"`
	Columns    int           `gorm:"column:grid_columns;not null" json:"columns"`
	Status     SessionStatus `gorm:"size:20;not null;default:'available';index" json:"status"`
	Seats      []SessionSeat `gorm:"foreignKey:SessionID" json:"seats,omitempty"`
}

func (s *Session) Capacity() int {
	return s.Rows * s.Columns
}

// Open reports whether new reservations may be taken at now.
func (s *Session) Open(now time.Time) bool {
	switch s.Status {
	case SessionSoldOut, SessionCancelled, SessionFinished, SessionInProgress:
		return false
	}
	return s.StartTime.After(now)
}

// Closed sessions never change availability status again.
func (s *Session) Closed() bool {
	return s.Status == SessionCancelled || s.Status == SessionFinished
}

// AvailabilityStatus is the status a session should carry given how many seats are free.
// It returns the current status unchanged for closed or running sessions.
func (s *Session) AvailabilityStatus(available int64) SessionStatus {
	if s.Closed() || s.Status == SessionInProgress {
		return s.Status
	}
	if available == 0 {
		return SessionSoldOut
	}
	return SessionAvailable
}

type CreateSessionInput struct {
	MovieTitle   string    `json:"movieTitle" validate:"required,max=255"`
	RoomName     string    `json:"roomName" validate:"omitempty,max=100"`
	StartTime    time.Time `json:"startTime" validate:"required"`
	EndTime      time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	Price        int64     `json:"price" validate:"required,gt=0"`
	Currency     string    `json:"currency" validate:"omitempty,len=3"`
	Rows         int       `json:"rows" validate:"required,gte=1,lte=26"`
	Columns      int       `json:"columns" validate:"required,gte=1,lte=60"`
	Inaccessible []string  `json:"inaccessible" validate:"omitempty,dive,required"`
}
