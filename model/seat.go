package model

import (
	"fmt"
	"strconv"
	"time"
)

type SeatStatus string

const (
	SeatAvailable    SeatStatus = "available"
	SeatReserved     SeatStatus = "reserved"
	SeatOccupied     SeatStatus = "occupied"
	SeatInaccessible SeatStatus = "inaccessible"
)

// SessionSeat is one addressable seat of a session's grid.
type SessionSeat struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID uint       `gorm:"not null;uniqueIndex:idx_session_seat_label" json:"sessionId"`
	Label     string     `gorm:"size:8;not null;uniqueIndex:idx_session_seat_label" json:"label"`
	Row       int        `gorm:"column:seat_row;not null" json:"row"`
	Column    int        `gorm:"column:seat_col;not null" json:"column"`
	Status    SeatStatus `gorm:"size:20;not null;default:'available';index" json:"status"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

var seatTransitions = map[SeatStatus][]SeatStatus{
	SeatAvailable: {SeatReserved},
	SeatReserved:  {SeatOccupied, SeatAvailable},
	SeatOccupied:  {SeatAvailable},
}

func CanTransitionSeat(from, to SeatStatus) bool {
	for _, next := range seatTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SeatLabel formats a zero-based row and column as "A1", "B12".
func SeatLabel(row, column int) string {
	return fmt.Sprintf("%c%d", 'A'+rune(row), column+1)
}

// ParseSeatLabel is the inverse of SeatLabel.
func ParseSeatLabel(label string) (row, column int, ok bool) {
	if len(label) < 2 || label[0] < 'A' || label[0] > 'Z' {
		return 0, 0, false
	}
	n, err := strconv.Atoi(label[1:])
	if err != nil || n < 1 {
		return 0, 0, false
	}
	return int(label[0] - 'A'), n - 1, true
}

// BuildSeatGrid creates every seat of a rows x columns grid.
func BuildSeatGrid(sessionID uint, rows, columns int, inaccessible []string) []SessionSeat {
	blocked := make(map[string]bool, len(inaccessible))
	for _, label := range inaccessible {
		blocked[label] = true
	}
	seats := make([]SessionSeat, 0, rows*columns)
	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			label := SeatLabel(r, c)
			status := SeatAvailable
			if blocked[label] {
				status = SeatInaccessible
			}
			seats = append(seats, SessionSeat{
				SessionID: sessionID,
				Label:     label,
				Row:       r,
				Column:    c,
				Status:    status,
			})
		}
	}
	return seats
}

type SeatCounts struct {
	Available    int `json:"available"`
	Reserved     int `json:"reserved"`
	Occupied     int `json:"occupied"`
	Inaccessible int `json:"inaccessible"`
}

func (c SeatCounts) Total() int {
	return c.Available + c.Reserved + c.Occupied + c.Inaccessible
}

func CountSeats(seats []SessionSeat) SeatCounts {
	var counts SeatCounts
	for _, s := range seats {
		switch s.Status {
		case SeatAvailable:
			counts.Available++
		case SeatReserved:
			counts.Reserved++
		case SeatOccupied:
			counts.Occupied++
		case SeatInaccessible:
			counts.Inaccessible++
		}
	}
	return counts
}

type SeatCell struct {
	Label  string     `json:"label"`
	Status SeatStatus `json:"status"`
}

// SeatGrid is the row-major read model of a session's seats.
type SeatGrid struct {
	SessionID uint          `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	Rows      int           `json:"rows"`
	Columns   int           `json:"columns"`
	Counts    SeatCounts    `json:"counts"`
	Grid      [][]SeatCell  `json:"grid"`
}

func NewSeatGrid(session *Session, seats []SessionSeat) SeatGrid {
	grid := make([][]SeatCell, session.Rows)
	for r := range grid {
		grid[r] = make([]SeatCell, session.Columns)
	}
	for _, s := range seats {
		if s.Row < 0 || s.Row >= session.Rows || s.Column < 0 || s.Column >= session.Columns {
			continue
		}
		grid[s.Row][s.Column] = SeatCell{Label: s.Label, Status: s.Status}
	}
	return SeatGrid{
		SessionID: session.ID,
		Status:    session.Status,
		Rows:      session.Rows,
		Columns:   session.Columns,
		Counts:    CountSeats(seats),
		Grid:      grid,
	}
}
