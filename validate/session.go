package validate

import (
	"cinema_booking/model"

	"github.com/gofiber/fiber/v2"
)

func CreateSession() fiber.Handler {
	return body(func(in *model.CreateSessionInput) []string {
		if !in.EndTime.After(in.StartTime) {
			return []string{"endTime must be after startTime"}
		}
		return nil
	})
}
