package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/usercontext"
)

// RequireLogin guards JSON API routes that need an authenticated user.
func RequireLogin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login_required"})
	}
	return c.Next()
}
