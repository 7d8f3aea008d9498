package presenter

import "github.com/gofiber/fiber/v2"

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"` // Backend HTTP status, when one was received
}

func JSON(c *fiber.Ctx, status int, v any) error {
	return c.Status(status).JSON(v)
}

func Error(c *fiber.Ctx, status int, message string) error {
	return JSON(c, status, ErrorResponse{Error: message})
}

// ErrorWithDetails answers with message plus the underlying cause.
func ErrorWithDetails(c *fiber.Ctx, status int, message string, err error, backendStatus int) error {
	return JSON(c, status, ErrorResponse{Error: message, Details: err.Error(), Status: backendStatus})
}
