package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/api/middleware"
	"github.com/taskmind/taskmind-backend/internal/services"
)

// SendMessageRequest is the body of POST /chat/messages.
type SendMessageRequest struct {
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Content   string     `json:"content"`
}

const traditionalFormHint = "You can still manage your tasks using the traditional form."

// SendMessage handles POST /chat/messages. It runs the full pipeline:
// quota, session, extraction, proposal. Degraded states come back as
// structured errors with a usable fallback, never as a hard failure.
func SendMessage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Content == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Message content is required",
			})
		}

		resp, err := svc.Orchestrator.HandleMessage(c.UserContext(), userID, req.SessionID, req.Content)
		if err != nil {
			var quotaErr *services.QuotaExceededError
			var unavailErr *services.ExtractorUnavailableError
			switch {
			case errors.Is(err, services.ErrAIDisabled):
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error":    "AI features are disabled",
					"fallback": traditionalFormHint,
				})
			case errors.As(err, &quotaErr):
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":    "AI request quota exceeded",
					"window":   quotaErr.Decision.Window,
					"reset_at": quotaErr.Decision.ResetAt,
					"fallback": traditionalFormHint,
				})
			case errors.As(err, &unavailErr):
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error":    unavailErr.Message,
					"fallback": traditionalFormHint,
				})
			}
			svc.Logger.WithError(err).Error("chat message failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process message",
			})
		}

		return c.JSON(resp)
	}
}

// EndSession handles DELETE /chat/sessions/:id. The transcript stays; the
// session just stops accepting new context.
func EndSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		sessionID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session id",
			})
		}

		if err := svc.Registry.End(c.UserContext(), userID, sessionID); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		return c.JSON(fiber.Map{"ended": true})
	}
}

// GetSession handles GET /chat/sessions/current. It returns the live
// session, creating one if the previous expired.
func GetSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		session, err := svc.Registry.GetOrCreate(c.UserContext(), userID)
		if err != nil {
			svc.Logger.WithError(err).Error("failed to resolve chat session")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to resolve session",
			})
		}
		return c.JSON(session)
	}
}
