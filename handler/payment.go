package handler

import (
	"github.com/gofiber/fiber/v2"
)

// Webhook passes the raw body through untouched; signature checks need the exact bytes.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	signature := ""
	if header := h.bookings.WebhookSignatureHeader(); header != "" {
		signature = c.Get(header)
	}
	if err := h.bookings.HandleGatewayEvent(c.UserContext(), payload, signature); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
