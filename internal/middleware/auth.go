package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// TokenAuth rejects requests that do not present token. An empty token
// disables the check.
func TokenAuth(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		key := extractAPIKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key",
			})
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		return c.Next()
	}
}

// extractAPIKey extracts the API key from request headers
// Supports: Authorization: Bearer <key> or X-API-Key: <key>
func extractAPIKey(c fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if apiKey := c.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	return ""
}
