package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/api/middleware"
	"github.com/taskmind/taskmind-backend/internal/events"
	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
	"github.com/taskmind/taskmind-backend/internal/services"
)

// CreateTaskRequest is the body of POST /tasks, the traditional form path.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest carries the fields PATCH /tasks/:id may change. Nil
// pointers leave the field untouched.
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
}

// ListTasks handles GET /tasks with optional status and title filters.
func ListTasks(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		filters := models.TaskFilters{
			Status:        c.Query("status"),
			TitleContains: c.Query("title"),
		}
		tasks, err := svc.Tasks.ListByOwner(c.UserContext(), userID, filters)
		if err != nil {
			svc.Logger.WithError(err).Error("failed to list tasks")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list tasks",
			})
		}
		return c.JSON(fiber.Map{"tasks": tasks})
	}
}

// GetTask handles GET /tasks/:id.
func GetTask(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid task id",
			})
		}

		task, err := svc.Tasks.Get(c.UserContext(), userID, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Task not found",
				})
			}
			svc.Logger.WithError(err).Error("failed to load task")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load task",
			})
		}
		return c.JSON(task)
	}
}

// CreateTask handles POST /tasks. The broadcast keeps streaming clients in
// sync with tasks created outside the chat flow.
func CreateTask(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req CreateTaskRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		params := models.ActionParams{Create: &models.CreateParams{
			Title:       req.Title,
			Description: req.Description,
			DueDate:     req.DueDate,
			Priority:    req.Priority,
		}}
		if err := params.Validate(models.ActionCreate); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		priority := req.Priority
		if priority == "" {
			priority = "medium"
		}
		task := &models.Task{
			UserID:      userID,
			Title:       req.Title,
			Description: req.Description,
			Priority:    priority,
			DueDate:     req.DueDate,
		}
		if err := svc.Tasks.Create(c.UserContext(), task); err != nil {
			svc.Logger.WithError(err).Error("failed to create task")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create task",
			})
		}

		svc.Broadcaster.Publish(userID, events.Event{
			Type:    events.EventTaskCreated,
			Payload: task,
		})
		return c.Status(fiber.StatusCreated).JSON(task)
	}
}

// UpdateTask handles PATCH /tasks/:id.
func UpdateTask(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid task id",
			})
		}
		var req UpdateTaskRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		task, err := svc.Tasks.Get(c.UserContext(), userID, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Task not found",
				})
			}
			svc.Logger.WithError(err).Error("failed to load task")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load task",
			})
		}

		if req.Title != nil {
			task.Title = *req.Title
		}
		if req.Description != nil {
			task.Description = *req.Description
		}
		if req.Priority != nil {
			task.Priority = *req.Priority
		}
		if req.DueDate != nil {
			task.DueDate = req.DueDate
		}
		if req.IsCompleted != nil {
			task.IsCompleted = *req.IsCompleted
		}
		if err := svc.Tasks.Update(c.UserContext(), userID, task); err != nil {
			svc.Logger.WithError(err).Error("failed to update task")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update task",
			})
		}

		svc.Broadcaster.Publish(userID, events.Event{
			Type:    events.EventTaskUpdated,
			Payload: task,
		})
		return c.JSON(task)
	}
}

// DeleteTask handles DELETE /tasks/:id.
func DeleteTask(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid task id",
			})
		}

		if err := svc.Tasks.Delete(c.UserContext(), userID, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Task not found",
				})
			}
			svc.Logger.WithError(err).Error("failed to delete task")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete task",
			})
		}

		svc.Broadcaster.Publish(userID, events.Event{
			Type:    events.EventTaskDeleted,
			Payload: fiber.Map{"id": id},
		})
		return c.JSON(fiber.Map{"deleted": true})
	}
}
