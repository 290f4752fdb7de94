// Package services wires the domain components together behind the
// orchestrator the HTTP handlers talk to.
package services

import (
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/audit"
	"github.com/taskmind/taskmind-backend/internal/broker"
	"github.com/taskmind/taskmind-backend/internal/chat"
	"github.com/taskmind/taskmind-backend/internal/config"
	"github.com/taskmind/taskmind-backend/internal/events"
	"github.com/taskmind/taskmind-backend/internal/executor"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/identity"
	"github.com/taskmind/taskmind-backend/internal/observability"
	"github.com/taskmind/taskmind-backend/internal/quota"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// Services holds all service instances
type Services struct {
	Orchestrator *ChatOrchestrator
	Broker       *broker.Broker
	Executor     *executor.Executor
	Registry     *chat.Registry
	Quota        *quota.Ledger
	Broadcaster  *events.Broadcaster
	Extractor    extractor.Extractor
	Audit        *audit.Service
	Metrics      *observability.Metrics
	Verifier     *identity.Verifier
	Tasks        repository.TaskStore
	Actions      repository.ActionRepository
	Config       *config.Config
	Logger       *logrus.Logger
}

// Repos groups the persistence dependencies NewServices needs.
type Repos struct {
	Sessions repository.SessionRepository
	Messages repository.MessageRepository
	Actions  repository.ActionRepository
	Tasks    repository.TaskStore
	Audits   repository.AuditRepository
}

// NewServices creates all service instances. ext may be nil when AI
// features are disabled; chat endpoints then answer 503 while the
// traditional task path keeps working.
func NewServices(cfg *config.Config, repos Repos, ext extractor.Extractor, verifier *identity.Verifier, metrics *observability.Metrics, logger *logrus.Logger) *Services {
	if logger == nil {
		logger = logrus.New()
	}

	ledger := quota.NewLedger(quota.Limits{
		PerDay:  cfg.Quota.PerDay,
		PerHour: cfg.Quota.PerHour,
	})
	broadcaster := events.NewBroadcaster(cfg.Events.QueueSize)
	if metrics != nil {
		broadcaster.OnDrop(func() { metrics.EventsDropped.Inc() })
	}

	auditor := audit.NewService(repos.Audits, logger)
	exec := executor.New(repos.Tasks, logger)
	registry := chat.NewRegistry(repos.Sessions, repos.Messages, ext, auditor, cfg.Chat, logger)
	actionBroker := broker.New(repos.Actions, exec, broadcaster, auditor, metrics, cfg.Extractor.ConfidenceThreshold, logger)
	orchestrator := NewChatOrchestrator(ledger, registry, ext, actionBroker, broadcaster, auditor, metrics, cfg, logger)

	return &Services{
		Orchestrator: orchestrator,
		Broker:       actionBroker,
		Executor:     exec,
		Registry:     registry,
		Quota:        ledger,
		Broadcaster:  broadcaster,
		Extractor:    ext,
		Audit:        auditor,
		Metrics:      metrics,
		Verifier:     verifier,
		Tasks:        repos.Tasks,
		Actions:      repos.Actions,
		Config:       cfg,
		Logger:       logger,
	}
}
