package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/models"
)

// ErrNotFound is returned when the requested row does not exist or is not
// visible to the given owner.
var ErrNotFound = errors.New("not found")

// SessionRepository stores chat sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ChatSession) error
	// Get returns the session only if it belongs to userID.
	Get(ctx context.Context, userID, id uuid.UUID) (*models.ChatSession, error)
	// LatestActive returns the most recently active session for the user,
	// or ErrNotFound if none is active.
	LatestActive(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error)
	// Touch bumps last_activity_at and message_count by delta.
	Touch(ctx context.Context, userID, id uuid.UUID, at time.Time, delta int) error
	// Deactivate marks the session inactive.
	Deactivate(ctx context.Context, userID, id uuid.UUID) error
	// SetSummary replaces the rolling context summary.
	SetSummary(ctx context.Context, userID, id uuid.UUID, summary string) error
}

// MessageRepository stores transcript messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	// ListRecent returns up to limit newest messages, oldest first.
	ListRecent(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
	// ListOldest returns up to limit oldest messages, oldest first.
	ListOldest(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
	// Delete removes the given messages from the live window.
	Delete(ctx context.Context, sessionID uuid.UUID, ids []uuid.UUID) error
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// ActionRepository stores task actions. All state transitions on an action
// happen through the conditional updates below so concurrent confirms cannot
// double-execute.
type ActionRepository interface {
	Create(ctx context.Context, action *models.TaskAction) error
	Get(ctx context.Context, id uuid.UUID) (*models.TaskAction, error)
	// ListPending returns the user's unresolved actions, newest first.
	ListPending(ctx context.Context, userID uuid.UUID) ([]models.TaskAction, error)
	// BeginExecution atomically moves (pending, not_executed) to
	// (confirmed, executing). Returns false when the action was not in the
	// pending state, i.e. a concurrent confirm or reject won.
	BeginExecution(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// MarkRejected atomically moves (pending, not_executed) to
	// (rejected, not_executed). Returns false when the action was not pending.
	MarkRejected(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// FinishExecution records the terminal outcome of an executing action.
	FinishExecution(ctx context.Context, id uuid.UUID, state models.ExecutionState, taskID *int64, errDetail *string, at time.Time) error
	// PurgeExpired drops executed actions older than executedBefore and
	// still-unresolved actions proposed before pendingBefore.
	PurgeExpired(ctx context.Context, executedBefore, pendingBefore time.Time) (int64, error)
}

// TaskStore is the external collaborator owning todo items. All operations
// are scoped to the owner passed in; cross-owner access is structurally
// impossible at this layer.
type TaskStore interface {
	Get(ctx context.Context, userID uuid.UUID, id int64) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, userID uuid.UUID, task *models.Task) error
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
	DeleteWhere(ctx context.Context, userID uuid.UUID, filters models.TaskFilters) (int64, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, filters models.TaskFilters) ([]models.Task, error)
	// FindByTitle returns tasks whose title contains substr, case-insensitive.
	FindByTitle(ctx context.Context, userID uuid.UUID, substr string) ([]models.Task, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Log(ctx context.Context, entry *models.AuditLog) error
	GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLog, error)
}
