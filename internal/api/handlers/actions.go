package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/api/middleware"
	"github.com/taskmind/taskmind-backend/internal/broker"
	"github.com/taskmind/taskmind-backend/internal/repository"
	"github.com/taskmind/taskmind-backend/internal/services"
)

// ConfirmAction handles POST /actions/:id/confirm. Confirming twice is
// safe: the replay returns the recorded outcome without re-executing.
func ConfirmAction(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		actionID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid action id",
			})
		}

		outcome, err := svc.Orchestrator.ConfirmAction(c.UserContext(), userID, actionID)
		if err != nil {
			return actionError(c, svc, err, "confirm")
		}

		resp := fiber.Map{
			"action":   outcome.Action,
			"replayed": outcome.Replayed,
		}
		if outcome.Result != nil {
			resp["message"] = outcome.Result.Message
			if outcome.Result.Task != nil {
				resp["task"] = outcome.Result.Task
			}
			if outcome.Result.Tasks != nil {
				resp["tasks"] = outcome.Result.Tasks
			}
		}
		return c.JSON(resp)
	}
}

// RejectAction handles POST /actions/:id/reject.
func RejectAction(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		actionID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid action id",
			})
		}

		action, err := svc.Orchestrator.RejectAction(c.UserContext(), userID, actionID)
		if err != nil {
			return actionError(c, svc, err, "reject")
		}
		return c.JSON(fiber.Map{"action": action})
	}
}

// ListPendingActions handles GET /actions/pending.
func ListPendingActions(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		actions, err := svc.Orchestrator.PendingActions(c.UserContext(), userID)
		if err != nil {
			svc.Logger.WithError(err).Error("failed to list pending actions")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list pending actions",
			})
		}
		return c.JSON(fiber.Map{"actions": actions})
	}
}

// actionError maps broker failures to HTTP statuses. Ownership violations
// answer 404 so callers cannot probe for other users' action ids.
func actionError(c *fiber.Ctx, svc *services.Services, err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, broker.ErrOwnershipViolation):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Action not found",
		})
	case errors.Is(err, broker.ErrAlreadyResolved):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Action has already been resolved",
		})
	}
	svc.Logger.WithError(err).WithField("op", op).Error("action request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to " + op + " action",
	})
}
