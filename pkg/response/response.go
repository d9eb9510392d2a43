// Package response holds the error codes shared by the HTTP handlers and the
// websocket error messages, and the JSON envelope the handlers answer with.
package response

import "github.com/gofiber/fiber/v2"

// HTTP error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServiceError    = "SERVICE_ERROR"
)

// Job and session failures carried in websocket error messages
const (
	CodeResourceError     = "RESOURCE_ERROR"
	CodeProcessSpawnError = "PROCESS_SPAWN_ERROR"
	CodeProcessExitError  = "PROCESS_EXIT_ERROR"
	CodeProcessReadError  = "PROCESS_READ_ERROR"
	CodeProtocolError     = "PROTOCOL_ERROR"
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeJobCanceled       = "JOB_CANCELED"
	CodeJobTimeout        = "JOB_TIMEOUT"
	CodeJobFailed         = "JOB_FAILED"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error writes the envelope with the given status.
func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromFiberError answers an error that escaped a handler: *fiber.Error keeps
// its status and message, anything else is a 500.
func FromFiberError(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		code := CodeServiceError
		switch e.Code {
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUpgradeRequired:
			code = CodeValidationError
		case fiber.StatusUnauthorized:
			code = CodeUnauthorized
		case fiber.StatusNotFound:
			code = CodeNotFound
		case fiber.StatusTooManyRequests:
			code = CodeRateLimited
		}
		return Error(c, e.Code, code, e.Message, nil)
	}
	return ServiceError(c, "Internal Server Error")
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}
