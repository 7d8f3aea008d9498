package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// ProviderNamer reports which backend the service is bound to.
type ProviderNamer interface {
	Provider() string
}

// HealthHandler serves the liveness probe.
type HealthHandler struct{ svc ProviderNamer }

func NewHealthHandler(svc ProviderNamer) *HealthHandler { return &HealthHandler{svc: svc} }

// Health: basic liveness check with the bound provider.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "ok",
		"provider": h.svc.Provider(),
	})
}
