package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema_booking/config"
	"cinema_booking/database"
	"cinema_booking/handler"
	"cinema_booking/logger"
	"cinema_booking/mailer"
	"cinema_booking/metrics"
	"cinema_booking/payment"
	"cinema_booking/queue"
	"cinema_booking/realtime"
	"cinema_booking/reports"
	"cinema_booking/router"
	"cinema_booking/scheduler"
	"cinema_booking/service"
	"cinema_booking/ticketing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}
	logger.Set(logger.NewLogger(cfg.AppEnv))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := database.Open(cfg)
	if err != nil {
		logger.Error("Database unavailable", zap.Error(err))
		os.Exit(1)
	}
	if cfg.DBDriver == "memory" {
		if err := database.SeedData(ctx, repo, cfg.Currency); err != nil {
			os.Exit(1)
		}
	}

	gateway, err := payment.New(cfg)
	if err != nil {
		logger.Error("Payment gateway misconfigured", zap.Error(err))
		os.Exit(1)
	}
	signer, err := ticketing.NewSigner(cfg.TicketSecret)
	if err != nil {
		logger.Error("Ticket signer misconfigured", zap.Error(err))
		os.Exit(1)
	}

	m := metrics.New()
	options := []service.Option{service.WithMetrics(m)}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, seat updates stay local", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	hub := realtime.NewHub(redisClient)
	options = append(options, service.WithSeatNotifier(hub))

	if cfg.RabbitMQURL != "" {
		publisher, err := queue.NewPublisher(cfg.RabbitMQURL, cfg.Exchange)
		if err != nil {
			logger.Warn("RabbitMQ unreachable, booking events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			options = append(options, service.WithEvents(publisher))
		}
	}

	if cfg.MongoURI != "" {
		store, err := reports.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("MongoDB unreachable", zap.Error(err))
			os.Exit(1)
		}
		defer store.Close(context.Background())
		options = append(options, service.WithReports(store))
	} else {
		options = append(options, service.WithReports(reports.NewRepositoryStore(repo)))
	}

	if cfg.SMTPHost != "" {
		options = append(options, service.WithMailer(mailer.New(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})))
	}

	bookings := service.NewBookingService(repo, gateway, signer, service.Options{
		PaymentTimeout:       cfg.PaymentTimeout,
		Currency:             cfg.Currency,
		LoyaltyCentsPerPoint: cfg.LoyaltyCentsPerPoint,
		AppURL:               cfg.AppURL,
	}, options...)

	sweeper, err := scheduler.NewPendingSweeper(bookings, cfg.SweepInterval)
	if err != nil {
		logger.Error("Failed to schedule pending sweep", zap.Error(err))
		os.Exit(1)
	}
	sweeper.Start()

	clock, err := scheduler.NewSessionClock(bookings, "")
	if err != nil {
		logger.Error("Failed to schedule session clock", zap.Error(err))
		os.Exit(1)
	}
	clock.Start()

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AppURL,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept",
		AllowCredentials: true,
		MaxAge:           600,
	}))

	router.SetupRoutes(app, handler.New(bookings, hub), router.Config{
		JWTSecret:  cfg.JWTSecret,
		Metrics:    m,
		RequestLog: true,
	})

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("HTTP shutdown", zap.Error(err))
		}
	}()

	logger.Info("Listening", zap.String("port", cfg.Port), zap.String("gateway", gateway.Name()))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("HTTP server stopped", zap.Error(err))
	}

	clock.Stop()
	if err := sweeper.Shutdown(); err != nil {
		logger.Error("Sweeper shutdown", zap.Error(err))
	}
}
