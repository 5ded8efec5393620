package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/constants"
)

// jsonError writes the error envelope every API handler uses.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// paramID parses the :id route parameter.
func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", c.Params("id"))
	}
	return uint(id), nil
}

// StatusURL is where clients poll a photo's processing state.
func StatusURL(photoID uint) string {
	return fmt.Sprintf("%s%s/%d/status", constants.APIPrefix, constants.PhotosRoute, photoID)
}

// ErrorHandler renders unhandled errors as JSON. *fiber.Error keeps its code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		fiberlog.Errorf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return jsonError(c, code, "internal_server_error", "something went wrong")
	}
	return jsonError(c, code, errorCode(code), err.Error())
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusRequestEntityTooLarge:
		return "file_too_large"
	case fiber.StatusTooManyRequests:
		return "too_many_requests"
	default:
		return "error"
	}
}
