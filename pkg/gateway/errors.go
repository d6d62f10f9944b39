package gateway

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Admission errors. Each maps to one pre-upgrade HTTP status.
var (
	ErrQuotaExceeded       = errors.New("monthly voice quota exceeded")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrPromptTooLong       = errors.New("system prompt too long")
)

// ErrConnectionClosed is returned by Send once the socket is gone.
var ErrConnectionClosed = errors.New("gateway: connection closed")

// reject writes the JSON error body used for every refused admission.
func reject(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
