package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// APIError is a handler failure rendered as {"error": Code, ...Details}.
type APIError struct {
	Status  int
	Code    string
	Details fiber.Map
	Cause   error
}

func NewAPIError(status int, code string) *APIError {
	return &APIError{Status: status, Code: code}
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Code + ": " + e.Cause.Error()
	}
	return e.Code
}

// StatusCode is the HTTP status the error handler renders.
func (e *APIError) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WithDetails returns a copy of e carrying extra top-level response fields.
func (e *APIError) WithDetails(details fiber.Map) *APIError {
	clone := *e
	clone.Details = details
	return &clone
}

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		body := fiber.Map{"error": "internal_error"}

		var apiErr *APIError
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &apiErr):
			code = apiErr.Status
			for key, value := range apiErr.Details {
				body[key] = value
			}
			body["error"] = apiErr.Code
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			body["error"] = fiberErr.Message
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(body)
	}
}
