package apperror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Respond writes err as the JSON error body used across the API.
func Respond(c *fiber.Ctx, err error) error {
	kind := KindOf(err)
	if kind == KindInternal {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(StatusCode(kind)).JSON(fiber.Map{
		"error":   string(kind),
		"message": Message(err),
	})
}

// ErrorHandler is installed as fiber.Config.ErrorHandler so handlers can
// simply return service errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":   errorCodeFor(fiberErr.Code),
			"message": fiberErr.Message,
		})
	}
	return Respond(c, err)
}

func errorCodeFor(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return string(KindNotFound)
	case fiber.StatusConflict:
		return string(KindConflict)
	case fiber.StatusForbidden:
		return string(KindForbidden)
	case fiber.StatusUnauthorized:
		return string(KindUnauthorized)
	case fiber.StatusTooManyRequests:
		return "too_many_requests"
	}
	if status >= 400 && status < 500 {
		return string(KindBadRequest)
	}
	return string(KindInternal)
}
