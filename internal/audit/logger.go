// Package audit records security- and lifecycle-relevant events for the
// action pipeline. Audit writes are best-effort; a failed write is logged
// and never blocks the user-facing operation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// EventType represents the type of audit event
type EventType string

const (
	EventActionProposed     EventType = "action.proposed"
	EventActionConfirmed    EventType = "action.confirmed"
	EventActionRejected     EventType = "action.rejected"
	EventActionExecuted     EventType = "action.executed"
	EventActionFailed       EventType = "action.failed"
	EventOwnershipViolation EventType = "action.ownership_violation"
	EventQuotaDenied        EventType = "quota.denied"
	EventInjectionDetected  EventType = "chat.injection_detected"
	EventSessionCreate      EventType = "session.create"
	EventSessionExpire      EventType = "session.expire"
)

// Event represents one audit event before persistence.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	EventType  EventType              `json:"event_type"`
	UserID     *uuid.UUID             `json:"user_id,omitempty"`
	Resource   string                 `json:"resource,omitempty"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Result     string                 `json:"result,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Service persists audit events.
type Service struct {
	repo   repository.AuditRepository
	logger *logrus.Logger
}

// NewService creates a new audit service
func NewService(repo repository.AuditRepository, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{repo: repo, logger: logger}
}

// Log records an audit event. Persistence errors are swallowed after
// logging so the calling operation proceeds.
func (s *Service) Log(ctx context.Context, event *Event) {
	entry := &models.AuditLog{
		ID:           event.ID,
		UserID:       event.UserID,
		Action:       string(event.EventType),
		ResourceType: event.Resource,
		ResourceID:   event.ResourceID,
		Metadata:     models.JSONB(event.Metadata),
		Status:       event.Result,
		CreatedAt:    event.CreatedAt,
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event_type", event.EventType).
			Error("failed to persist audit event")
	}
}

// GetUserEvents retrieves audit events for a specific user.
func (s *Service) GetUserEvents(ctx context.Context, userID uuid.UUID, limit int) ([]*Event, error) {
	logs, err := s.repo.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	events := make([]*Event, len(logs))
	for i, log := range logs {
		events[i] = &Event{
			ID:         log.ID,
			EventType:  EventType(log.Action),
			UserID:     log.UserID,
			Resource:   log.ResourceType,
			ResourceID: log.ResourceID,
			Result:     log.Status,
			Metadata:   map[string]interface{}(log.Metadata),
			CreatedAt:  log.CreatedAt,
		}
	}
	return events, nil
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(eventType EventType, userID *uuid.UUID) *Event {
	return &Event{
		ID:        uuid.New(),
		EventType: eventType,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
	}
}
