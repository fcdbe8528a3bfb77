package validate

import (
	"cinema_booking/model"

	"github.com/gofiber/fiber/v2"
)

func VerifyTicket() fiber.Handler {
	return body[model.VerifyTicketInput](nil)
}
