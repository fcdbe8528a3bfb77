package service

import (
	"context"
	"strings"

	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/logger"
	"cinema_booking/model"

	"go.uber.org/zap"
)

// CreateSession schedules a screening and lays out its seat grid.
func (s *BookingService) CreateSession(ctx context.Context, in model.CreateSessionInput) (*model.Session, error) {
	now := s.now()
	if !in.StartTime.After(now) || !in.EndTime.After(in.StartTime) {
		return nil, apperror.Validation(constants.INVALID_SESSION_TIME)
	}
	var bad []string
	inaccessible := make([]string, 0, len(in.Inaccessible))
	for _, l := range in.Inaccessible {
		label := strings.ToUpper(strings.TrimSpace(l))
		row, col, ok := model.ParseSeatLabel(label)
		if !ok || row >= in.Rows || col >= in.Columns {
			bad = append(bad, l)
			continue
		}
		inaccessible = append(inaccessible, label)
	}
	if len(bad) > 0 {
		return nil, apperror.Validation(constants.UNKNOWN_SEATS, bad...)
	}

	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.opts.Currency
	}
	session := &model.Session{
		MovieTitle: in.MovieTitle,
		RoomName:   in.RoomName,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		Price:      in.Price,
		Currency:   currency,
		Rows:       in.Rows,
		Columns:    in.Columns,
		Status:     model.SessionAvailable,
		Seats:      model.BuildSeatGrid(0, in.Rows, in.Columns, inaccessible),
	}
	if model.CountSeats(session.Seats).Available == 0 {
		session.Status = model.SessionSoldOut
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, dbErr("create session", err, "")
	}
	logger.Info("Session created",
		zap.Uint("session_id", session.ID),
		zap.String("movie", session.MovieTitle),
		zap.Int("capacity", session.Capacity()))
	return session, nil
}

func (s *BookingService) SeatGrid(ctx context.Context, sessionID uint) (*model.SeatGrid, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, dbErr("get session", err, constants.SESSION_NOT_FOUND)
	}
	seats, err := s.repo.ListSeats(ctx, sessionID)
	if err != nil {
		return nil, dbErr("list seats", err, "")
	}
	grid := model.NewSeatGrid(session, seats)
	return &grid, nil
}

// AdvanceSessions moves started sessions to in_progress, ended ones to finished, and
// completes the paid bookings of finished sessions.
func (s *BookingService) AdvanceSessions(ctx context.Context) error {
	now := s.now()
	started, err := s.repo.StartDueSessions(ctx, now)
	if err != nil {
		return dbErr("start sessions", err, "")
	}
	finished, err := s.repo.FinishDueSessions(ctx, now)
	if err != nil {
		return dbErr("finish sessions", err, "")
	}
	var completed int64
	if len(finished) > 0 {
		completed, err = s.repo.CompleteBookings(ctx, finished)
		if err != nil {
			return dbErr("complete bookings", err, "")
		}
	}
	if started > 0 || len(finished) > 0 {
		logger.Info("Sessions advanced",
			zap.Int64("started", started),
			zap.Int("finished", len(finished)),
			zap.Int64("bookings_completed", completed))
	}
	return nil
}
