package handler

import (
	"context"
	"strconv"

	"cinema_booking/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequireUpgrade rejects plain HTTP requests on websocket routes.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// SeatWebsocket streams the seat map of one session: a full grid first, then deltas.
func (h *Handler) SeatWebsocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			logger.Warn("Invalid session id on seat stream", zap.String("id", c.Params("id")))
			_ = c.Close()
			return
		}
		grid, err := h.bookings.SeatGrid(context.Background(), uint(id))
		if err != nil {
			logger.Warn("Seat stream for unknown session", zap.Uint64("session_id", id), zap.Error(err))
			_ = c.Close()
			return
		}
		h.hub.Serve(c, uint(id), grid)
	})
}
