package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/AndriyMelnyk/FinTrack/app/controllers"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Provider callbacks bypass the rate limiter: a burst of retries after a
	// provider outage must not be throttled away.
	payments := app.Group("/api/internal/payments")
	payments.Get("/liqpay", controllers.HandlePaymentWebhookProbe)
	payments.Head("/liqpay", controllers.HandlePaymentWebhookProbe)
	payments.Post("/liqpay", controllers.HandlePaymentWebhook)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/plans", controllers.HandleGetPlans)
	v1.Get("/subscription", middleware.RequireAPISessionAuth, controllers.HandleGetSubscription)
	v1.Post("/subscription/cancel", middleware.RequireAPISessionAuth, controllers.HandleCancelSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
