package database

import (
	"fmt"

	"cinema_booking/config"
	"cinema_booking/logger"
	"cinema_booking/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func ConnectDB(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.IsProduction() {
		level = gormlogger.Error
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("connection opened to database", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Customer{},
		&model.Product{},
		&model.Session{},
		&model.SessionSeat{},
		&model.Booking{},
		&model.BookingProduct{},
		&model.Ticket{},
		&model.ScheduledTask{},
		&model.ProcessedEvent{},
		&model.FinancialReport{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database migrated")
	return nil
}

// Open returns the repository selected by DB_DRIVER.
func Open(cfg *config.Config) (Repository, error) {
	switch cfg.DBDriver {
	case "memory":
		logger.Warn("using in-memory repository; data is lost on restart")
		return NewMemoryRepository(), nil
	case "postgres", "":
		db, err := ConnectDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewGormRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
