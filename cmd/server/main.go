package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/api"
	"github.com/taskmind/taskmind-backend/internal/config"
	"github.com/taskmind/taskmind-backend/internal/database"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/identity"
	"github.com/taskmind/taskmind-backend/internal/observability"
	"github.com/taskmind/taskmind-backend/internal/repository/postgres"
	"github.com/taskmind/taskmind-backend/internal/services"
)

// Actions older than these cutoffs are purged by the retention sweep.
const (
	executedRetention = 30 * 24 * time.Hour
	pendingRetention  = 24 * time.Hour
	purgeInterval     = time.Hour
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	repos := services.Repos{
		Sessions: postgres.NewSessionRepository(db.DB),
		Messages: postgres.NewMessageRepository(db.DB),
		Actions:  postgres.NewActionRepository(db.DB),
		Tasks:    postgres.NewTaskStore(db.DB),
		Audits:   postgres.NewAuditRepository(db.DB),
	}

	var ext extractor.Extractor
	if cfg.AIEnabled {
		openAI, err := extractor.NewOpenAIExtractor(cfg.Extractor, log)
		if err != nil {
			log.WithError(err).Warn("AI extraction unavailable, chat endpoints will answer 503")
		} else {
			ext = openAI
		}
	}

	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "change-me-in-production"
		log.Warn("Using default JWT secret. Set JWT_SECRET_KEY in production!")
	}
	verifier := identity.NewVerifier(cfg.Auth.SecretKey, cfg.Auth.Issuer)

	metrics := observability.NewMetrics("taskmind")
	svc := services.NewServices(cfg, repos, ext, verifier, metrics, log)

	app := fiber.New(fiber.Config{
		AppName:      "TaskMind Backend",
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	api.SetupRoutes(app, svc)

	go runRetentionSweep(svc, log)
	go serveMetrics(cfg.Metrics.Port, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("TaskMind backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// runRetentionSweep drops executed actions past retention and pending ones
// the user never resolved.
func runRetentionSweep(svc *services.Services, log *logrus.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		n, err := svc.Actions.PurgeExpired(context.Background(), now.Add(-executedRetention), now.Add(-pendingRetention))
		if err != nil {
			log.WithError(err).Warn("action retention sweep failed")
			continue
		}
		if n > 0 {
			log.WithField("purged", n).Info("purged expired actions")
		}
	}
}

// serveMetrics exposes Prometheus metrics on a side port, away from the
// authenticated API surface.
func serveMetrics(port int, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	addr := fmt.Sprintf(":%d", port)
	log.WithField("addr", addr).Info("metrics listener starting")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics listener stopped")
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
