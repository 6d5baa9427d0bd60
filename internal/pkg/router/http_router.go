package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/VitalPredict/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", controllers.HandleIndex)
	app.Get("/pricing", controllers.HandlePricing)
	app.Get("/checkout/success", controllers.HandleCheckoutSuccess)
	app.Get("/checkout/cancel", controllers.HandleCheckoutCancel)
	app.Get("/unsubscribe", controllers.HandleUnsubscribeLink)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
