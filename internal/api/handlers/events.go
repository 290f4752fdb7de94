package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/api/middleware"
	"github.com/taskmind/taskmind-backend/internal/services"
)

const keepAliveInterval = 30 * time.Second

// StreamEvents handles GET /events/stream. Events are sent as SSE data
// frames; a comment line goes out every 30 seconds so proxies keep the
// connection open. A slow consumer loses its oldest undelivered events,
// never the stream itself.
func StreamEvents(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		sub := svc.Broadcaster.Subscribe(userID)
		if svc.Metrics != nil {
			svc.Metrics.EventSubscribers.Inc()
		}
		logger := svc.Logger.WithField("user_id", userID)

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer func() {
				svc.Broadcaster.Unsubscribe(sub)
				if svc.Metrics != nil {
					svc.Metrics.EventSubscribers.Dec()
				}
				logger.Debug("event stream closed")
			}()

			keepAlive := time.NewTicker(keepAliveInterval)
			defer keepAlive.Stop()

			for {
				select {
				case event, ok := <-sub.C():
					if !ok {
						return
					}
					data, err := json.Marshal(event)
					if err != nil {
						logger.WithError(err).Warn("failed to encode event")
						continue
					}
					if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				case <-keepAlive.C:
					if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})

		return nil
	}
}

// EventsWebSocket handles the upgraded connection on GET /events/ws. Each
// event goes out as one JSON message. The read loop exists only to notice
// the client going away.
func EventsWebSocket(svc *services.Services) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		userID, ok := c.Locals("user_id").(uuid.UUID)
		if !ok {
			return
		}

		sub := svc.Broadcaster.Subscribe(userID)
		if svc.Metrics != nil {
			svc.Metrics.EventSubscribers.Inc()
		}
		defer func() {
			svc.Broadcaster.Unsubscribe(sub)
			if svc.Metrics != nil {
				svc.Metrics.EventSubscribers.Dec()
			}
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case event, ok := <-sub.C():
				if !ok {
					return
				}
				if err := c.WriteJSON(event); err != nil {
					return
				}
			case <-keepAlive.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
