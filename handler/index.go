package handler

import (
	"cinema_booking/apperror"
	"cinema_booking/constants"
	"cinema_booking/middleware"
	"cinema_booking/realtime"
	"cinema_booking/service"
	"cinema_booking/utils"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	bookings *service.BookingService
	hub      *realtime.Hub
}

func New(bookings *service.BookingService, hub *realtime.Hub) *Handler {
	if hub == nil {
		hub = realtime.NewHub(nil)
	}
	return &Handler{bookings: bookings, hub: hub}
}

func actorFrom(c *fiber.Ctx) service.Actor {
	id, _ := c.Locals(middleware.LocalCustomerID).(uint)
	staff, _ := c.Locals(middleware.LocalStaff).(bool)
	return service.Actor{CustomerID: id, Staff: staff}
}

func inputId(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals("inputId").(uint)
	if !ok || id == 0 {
		return 0, apperror.Validation(constants.DATA_INPUT_IS_NOT_NUMBER)
	}
	return id, nil
}

func input[T any](c *fiber.Ctx) (T, error) {
	v, ok := c.Locals("input").(T)
	if !ok {
		var zero T
		return zero, apperror.Validation(constants.ERROR_PARSE_DATA_TO_LOCALS)
	}
	return v, nil
}

func Health(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"status": "ok"})
}
