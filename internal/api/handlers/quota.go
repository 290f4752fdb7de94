package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/api/middleware"
	"github.com/taskmind/taskmind-backend/internal/quota"
	"github.com/taskmind/taskmind-backend/internal/services"
)

// GetQuota handles GET /quota?period=day|hour. Reading usage never
// consumes any.
func GetQuota(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		window := quota.WindowKind(c.Query("period", string(quota.WindowDay)))
		if !window.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "period must be 'day' or 'hour'",
			})
		}

		return c.JSON(svc.Orchestrator.QuotaStats(userID, window))
	}
}
