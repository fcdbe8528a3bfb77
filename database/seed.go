package database

import (
	"context"
	"time"

	"cinema_booking/logger"
	"cinema_booking/model"

	"go.uber.org/zap"
)

// SeedData loads a demo customer, concession products and one upcoming session.
// It is only used with the in-memory repository, which always starts empty.
func SeedData(ctx context.Context, repo Repository, currency string) error {
	customers := []model.Customer{
		{Email: "guest@cinema.local", FullName: "Demo Guest"},
	}
	for i := range customers {
		if err := repo.CreateCustomer(ctx, &customers[i]); err != nil {
			logger.Error("failed to seed customer", zap.String("email", customers[i].Email), zap.Error(err))
			return err
		}
	}

	products := []model.Product{
		{Name: "Popcorn (L)", Price: 650, Active: true},
		{Name: "Soda", Price: 350, Active: true},
		{Name: "Nachos", Price: 550, Active: true},
	}
	for i := range products {
		if err := repo.CreateProduct(ctx, &products[i]); err != nil {
			logger.Error("failed to seed product", zap.String("name", products[i].Name), zap.Error(err))
			return err
		}
	}

	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	session := model.Session{
		MovieTitle: "The Grand Budapest Hotel",
		RoomName:   "Room 1",
		StartTime:  start,
		EndTime:    start.Add(100 * time.Minute),
		Price:      1000,
		Currency:   currency,
		Rows:       5,
		Columns:    8,
		Status:     model.SessionAvailable,
	}
	session.Seats = model.BuildSeatGrid(0, session.Rows, session.Columns, []string{"E1", "E8"})
	if err := repo.CreateSession(ctx, &session); err != nil {
		logger.Error("failed to seed session", zap.Error(err))
		return err
	}
	logger.Info("seed data loaded", zap.Uint("sessionId", session.ID), zap.Uint("customerId", customers[0].ID))
	return nil
}
