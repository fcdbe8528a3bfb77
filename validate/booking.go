package validate

import (
	"cinema_booking/model"

	"github.com/gofiber/fiber/v2"
)

func CreateBooking() fiber.Handler {
	return body[model.CreateBookingInput](nil)
}

func UpdateBooking() fiber.Handler {
	return body(func(in *model.UpdateBookingInput) []string {
		if in.Products == nil && in.Status == nil {
			return []string{"products or status is required"}
		}
		return nil
	})
}

func RefundTickets() fiber.Handler {
	return body[model.RefundTicketsInput](nil)
}
