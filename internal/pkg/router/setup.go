package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router registers a set of routes on the application.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the landing pages and the JSON API. The global
// controllers must be initialized before.
func InstallRouter(app *fiber.App) {
	setup(app, NewHttpRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
