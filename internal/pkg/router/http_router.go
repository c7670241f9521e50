package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/justinrpoole/143-assessment-sub003/app/controllers"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/middleware"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	// Stripe deliveries stay outside the /api rate limiter so bursts of
	// retries are never dropped.
	app.Post("/webhook/stripe", controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
