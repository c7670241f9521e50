package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/justinrpoole/143-assessment-sub003/app/controllers"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	auth := v1.Group("/auth")
	auth.Post("/login/request", controllers.HandleLoginRequest)
	auth.Get("/login/verify", controllers.HandleLoginVerify)
	auth.Post("/logout", controllers.HandleLogout)

	v1.Post("/checkout", middleware.RequireLogin, controllers.HandleCreateCheckout)
	v1.Get("/account/entitlement", middleware.RequireLogin, controllers.HandleGetAccountEntitlement)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
