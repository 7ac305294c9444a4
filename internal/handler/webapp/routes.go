package webapp

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, handler *Handler) {
	app.Get("/healthz", handler.Health)

	api := app.Group("/api", handler.AuthRequired)
	api.Get("/me", handler.GetMe)

	entries := api.Group("/entries")
	entries.Get("", handler.GetEntries)
	entries.Get("/:date", handler.GetEntry)
	entries.Put("/:date", handler.PutEntry)

	settings := api.Group("/settings")
	settings.Get("", handler.GetSettings)
	settings.Put("", handler.PutSettings)

	api.Get("/export", handler.Export)
}
