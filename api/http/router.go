package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/veranima/insight/api/http/handlers"
)

// Register wires all HTTP routes onto given Fiber app.
// Middleware in limit runs before the insight endpoints only.
func Register(app *fiber.App, health *handlers.HealthHandler, ai *handlers.InsightHandler, limit ...fiber.Handler) {
	api := app.Group("/api")

	api.Get("/health", health.Health)

	api.Post("/ai-insight", with(limit, ai.Generate)...)
	api.Post("/ai-insight/stream", with(limit, ai.Stream)...)
	api.Get("/ai-insight/schema", ai.Schema)
}

func with(middleware []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(middleware)+1)
	chain = append(chain, middleware...)
	return append(chain, handler)
}
