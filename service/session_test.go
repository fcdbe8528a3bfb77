package service

import (
	"testing"
	"time"

	"cinema_booking/apperror"
	"cinema_booking/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now().Add(24 * time.Hour)

	s, err := f.svc.CreateSession(f.ctx, model.CreateSessionInput{
		MovieTitle:   "Alien",
		StartTime:    start,
		EndTime:      start.Add(2 * time.Hour),
		Price:        1200,
		Rows:         3,
		Columns:      4,
		Inaccessible: []string{"c4", "A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "usd", s.Currency)

	grid, err := f.svc.SeatGrid(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, grid.Counts.Total())
	assert.Equal(t, 2, grid.Counts.Inaccessible)
	assert.Equal(t, "C4", grid.Grid[2][3].Label)
	assert.Equal(t, model.SeatInaccessible, grid.Grid[2][3].Status)
	assert.Equal(t, model.SeatAvailable, grid.Grid[1][1].Status)

	_, err = f.svc.CreateSession(f.ctx, model.CreateSessionInput{
		MovieTitle: "Alien", StartTime: start, EndTime: start.Add(time.Hour),
		Price: 1200, Rows: 1, Columns: 2, Inaccessible: []string{"B1"},
	})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.svc.CreateSession(f.ctx, model.CreateSessionInput{
		MovieTitle: "Alien", StartTime: f.clock.Now().Add(-time.Hour), EndTime: start,
		Price: 1200, Rows: 1, Columns: 2,
	})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestAdvanceSessions(t *testing.T) {
	f := newFixture(t)
	session, b := paidBooking(t, f, time.Hour, "A1")

	f.clock.Advance(90 * time.Minute)
	require.NoError(t, f.svc.AdvanceSessions(f.ctx))
	assert.Equal(t, model.SessionInProgress, f.session(t, session.ID).Status)

	_, err := f.svc.Reserve(f.ctx, session.ID, f.customer.ID, model.CreateBookingInput{Seats: []string{"A2"}})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.svc.AdvanceSessions(f.ctx))
	assert.Equal(t, model.SessionFinished, f.session(t, session.ID).Status)
	assert.Equal(t, model.BookingCompleted, f.booking(t, b.ID).Status)
}
