package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/taskmind/taskmind-backend/internal/services"
)

// Health handles GET /health. It is unauthenticated and reports whether
// the AI pipeline is usable in addition to plain liveness.
func Health(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ai := "disabled"
		if svc.Config.AIEnabled && svc.Extractor != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := svc.Extractor.Ping(ctx); err != nil {
				ai = "unreachable"
			} else {
				ai = "ok"
			}
		}
		return c.JSON(fiber.Map{
			"status": "ok",
			"ai":     ai,
		})
	}
}
