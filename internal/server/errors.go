package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/api"
	"github.com/Patil2099/posthog/internal/funnel"
)

// statusFor maps an action error to the response status
func statusFor(err error) int {
	switch {
	case errors.Is(err, funnel.ErrInvalidFilters):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, funnel.ErrSuperseded):
		return fiber.StatusConflict
	case errors.Is(err, funnel.ErrFunnelTimeout), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, funnel.ErrFunnelResults),
		errors.Is(err, funnel.ErrTimeConversionBins),
		errors.Is(err, api.ErrUnexpectedStatus):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("funnel action failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}

func notMounted(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Funnel not mounted",
	})
}
