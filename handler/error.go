package handler

import (
	"errors"

	"cinema_booking/apperror"
	"cinema_booking/logger"
	"cinema_booking/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every returned error in the error envelope. Infrastructure
// causes are logged and never echoed to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fe.Code, fe.Message, nil)
	}

	kind := apperror.KindOf(err)
	if !kind.Operational() {
		logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}
	return utils.ErrorResponse(c, apperror.StatusOf(err), apperror.MessageOf(err), apperror.DetailsOf(err))
}
