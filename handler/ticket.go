package handler

import (
	"cinema_booking/model"
	"cinema_booking/utils"

	"github.com/gofiber/fiber/v2"
)

// VerifyTicket always answers 200 for a well-formed request; Valid carries the verdict.
func (h *Handler) VerifyTicket(c *fiber.Ctx) error {
	in, err := input[model.VerifyTicketInput](c)
	if err != nil {
		return err
	}
	result, err := h.bookings.VerifyTicket(c.UserContext(), in.Code)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, result)
}

func (h *Handler) TicketQRCode(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	png, err := h.bookings.TicketQRCode(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Status(fiber.StatusOK).Send(png)
}
