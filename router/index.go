package router

import (
	"cinema_booking/handler"
	"cinema_booking/metrics"
	"cinema_booking/middleware"
	"cinema_booking/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	JWTSecret string
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; the default registry when nil.
	Gatherer prometheus.Gatherer
	// RequestLog enables fiber's access log.
	RequestLog bool
}

func SetupRoutes(app *fiber.App, h *handler.Handler, cfg Config) {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/health", handler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api", middleware.Metrics(cfg.Metrics))
	if cfg.RequestLog {
		api.Use(logger.New())
	}
	protected := middleware.Protected(cfg.JWTSecret)

	// the webhook authenticates by provider signature, not JWT
	api.Post("/bookings/webhook", h.Webhook)

	bookings := api.Group("/bookings", protected, middleware.RequireCustomer())
	bookings.Post("/:sessionId/create", validate.GetById("sessionId"), validate.CreateBooking(), h.CreateBooking)
	bookings.Get("/find/:id", validate.GetById("id"), h.FindBooking)
	bookings.Put("/update/:id", validate.GetById("id"), validate.UpdateBooking(), h.UpdateBooking)
	bookings.Delete("/remove/:id", validate.GetById("id"), h.RemoveBooking)
	bookings.Post("/:id/cancelReservation", validate.GetById("id"), h.CancelReservation)
	bookings.Post("/:bookingId/refundTickets", validate.GetById("bookingId"), validate.RefundTickets(), h.RefundTickets)

	sessions := api.Group("/sessions")
	sessions.Post("/", protected, middleware.RequireStaff(), validate.CreateSession(), h.CreateSession)
	sessions.Get("/:id/seats", validate.GetById("id"), h.GetSeats)
	sessions.Get("/:id/seats/ws", handler.RequireUpgrade, h.SeatWebsocket())

	tickets := api.Group("/tickets")
	tickets.Post("/verify", protected, middleware.RequireStaff(), validate.VerifyTicket(), h.VerifyTicket)
	tickets.Get("/:id/qrcode", protected, validate.GetById("id"), h.TicketQRCode)
}
