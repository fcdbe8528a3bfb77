package handler

import (
	"cinema_booking/model"
	"cinema_booking/utils"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	in, err := input[model.CreateSessionInput](c)
	if err != nil {
		return err
	}
	session, err := h.bookings.CreateSession(c.UserContext(), in)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, session)
}

func (h *Handler) GetSeats(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	grid, err := h.bookings.SeatGrid(c.UserContext(), id)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, grid)
}
