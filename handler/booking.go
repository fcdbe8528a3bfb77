package handler

import (
	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/model"
	"cinema_booking/utils"

	"github.com/gofiber/fiber/v2"
)

// CreateBooking reserves seats for the caller and returns the payment redirect.
func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	sessionID, err := inputId(c)
	if err != nil {
		return err
	}
	in, err := input[model.CreateBookingInput](c)
	if err != nil {
		return err
	}
	actor := actorFrom(c)
	if actor.CustomerID == 0 {
		return apperror.Forbidden(constants.CUSTOMER_NOT_FOUND)
	}

	result, err := h.bookings.Reserve(c.UserContext(), sessionID, actor.CustomerID, in)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, result)
}

func (h *Handler) FindBooking(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	view, err := h.bookings.GetBooking(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, view)
}

func (h *Handler) UpdateBooking(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	in, err := input[model.UpdateBookingInput](c)
	if err != nil {
		return err
	}
	result, err := h.bookings.UpdateBooking(c.UserContext(), id, actorFrom(c), in)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, result)
}

func (h *Handler) RemoveBooking(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	if err := h.bookings.RemoveBooking(c.UserContext(), id, actorFrom(c)); err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"id": id})
}

// CancelReservation cancels the whole booking and refunds per the time policy.
func (h *Handler) CancelReservation(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	result, err := h.bookings.Cancel(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, result)
}

func (h *Handler) RefundTickets(c *fiber.Ctx) error {
	id, err := inputId(c)
	if err != nil {
		return err
	}
	in, err := input[model.RefundTicketsInput](c)
	if err != nil {
		return err
	}
	result, err := h.bookings.RefundTickets(c.UserContext(), id, actorFrom(c), in.TicketIDs)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, fiber.StatusOK, result)
}
