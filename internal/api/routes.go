package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"

	"github.com/taskmind/taskmind-backend/internal/api/handlers"
	"github.com/taskmind/taskmind-backend/internal/api/middleware"
	"github.com/taskmind/taskmind-backend/internal/services"
)

// SetupRoutes registers all API routes.
func SetupRoutes(app *fiber.App, svc *services.Services) {
	app.Get("/health", handlers.Health(svc))

	api := app.Group("/api/v1")
	api.Use(middleware.AuthRequired(svc.Verifier))

	// A burst limiter in front of the chat pipeline. The quota ledger is
	// the real budget; this only blunts request floods.
	chatLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return middleware.GetUserID(c).String()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, slow down",
			})
		},
	})

	api.Post("/chat/messages", chatLimiter, handlers.SendMessage(svc))
	api.Get("/chat/sessions/current", handlers.GetSession(svc))
	api.Delete("/chat/sessions/:id", handlers.EndSession(svc))

	api.Post("/actions/:id/confirm", handlers.ConfirmAction(svc))
	api.Post("/actions/:id/reject", handlers.RejectAction(svc))
	api.Get("/actions/pending", handlers.ListPendingActions(svc))

	api.Get("/quota", handlers.GetQuota(svc))

	api.Get("/tasks", handlers.ListTasks(svc))
	api.Post("/tasks", handlers.CreateTask(svc))
	api.Get("/tasks/:id", handlers.GetTask(svc))
	api.Patch("/tasks/:id", handlers.UpdateTask(svc))
	api.Delete("/tasks/:id", handlers.DeleteTask(svc))

	api.Get("/events/stream", handlers.StreamEvents(svc))

	// The upgrade runs after AuthRequired, so user_id is already in Locals
	// and gets copied onto the websocket connection.
	api.Get("/events/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(handlers.EventsWebSocket(svc)))
}
