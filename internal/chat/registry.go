// Package chat manages chat sessions and their transcripts: one active
// session per user, reused until idle timeout, with the live message window
// compacted into a rolling summary as it grows.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/audit"
	"github.com/taskmind/taskmind-backend/internal/config"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// Registry owns session lifecycle and transcript persistence.
type Registry struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	extractor extractor.Extractor
	auditor   *audit.Service
	cfg       config.ChatConfig
	logger    *logrus.Logger

	now func() time.Time
}

// NewRegistry wires a Registry. The extractor is only used for summary
// compaction and may be nil when AI is disabled; the auditor may be nil
// in tests.
func NewRegistry(sessions repository.SessionRepository, messages repository.MessageRepository, ext extractor.Extractor, auditor *audit.Service, cfg config.ChatConfig, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		sessions:  sessions,
		messages:  messages,
		extractor: ext,
		auditor:   auditor,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// GetOrCreate returns the user's active session, starting a fresh one when
// none exists or the latest went idle past the timeout. An idle session is
// deactivated, never deleted.
func (r *Registry) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	now := r.now().UTC()

	session, err := r.sessions.LatestActive(ctx, userID)
	switch {
	case err == repository.ErrNotFound:
		// Fall through to create.
	case err != nil:
		return nil, fmt.Errorf("load active session: %w", err)
	case now.Sub(session.LastActivityAt) <= r.idleTimeout():
		return session, nil
	default:
		if err := r.sessions.Deactivate(ctx, userID, session.ID); err != nil {
			return nil, fmt.Errorf("deactivate idle session: %w", err)
		}
		r.logger.WithFields(logrus.Fields{
			"session_id": session.ID,
			"idle_for":   now.Sub(session.LastActivityAt).String(),
		}).Info("chat session expired, starting a new one")
		r.auditSession(ctx, audit.EventSessionExpire, userID, session.ID)
	}

	session = &models.ChatSession{
		ID:             uuid.New(),
		UserID:         userID,
		StartedAt:      now,
		LastActivityAt: now,
		IsActive:       true,
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.auditSession(ctx, audit.EventSessionCreate, userID, session.ID)
	return session, nil
}

func (r *Registry) auditSession(ctx context.Context, eventType audit.EventType, userID, sessionID uuid.UUID) {
	if r.auditor == nil {
		return
	}
	ev := audit.NewEvent(eventType, &userID)
	ev.Resource = "chat_session"
	ev.ResourceID = sessionID.String()
	r.auditor.Log(ctx, ev)
}

// Get returns the session if it belongs to userID.
func (r *Registry) Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSession, error) {
	return r.sessions.Get(ctx, userID, sessionID)
}

// AppendMessage persists one message into the session transcript and bumps
// the session's activity clock.
func (r *Registry) AppendMessage(ctx context.Context, session *models.ChatSession, role models.MessageRole, content string, metadata models.JSONB) (*models.ChatMessage, error) {
	now := r.now().UTC()
	msg := &models.ChatMessage{
		ID:        uuid.New(),
		UserID:    session.UserID,
		SessionID: session.ID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if err := r.sessions.Touch(ctx, session.UserID, session.ID, now, 1); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	session.LastActivityAt = now
	session.MessageCount++
	return msg, nil
}

// Context assembles the extraction context for a session: the rolling
// summary plus the recent live window, oldest first.
func (r *Registry) Context(ctx context.Context, session *models.ChatSession) (extractor.SessionContext, error) {
	recent, err := r.messages.ListRecent(ctx, session.UserID, session.ID, r.messageWindow())
	if err != nil {
		return extractor.SessionContext{}, fmt.Errorf("load recent messages: %w", err)
	}
	return extractor.SessionContext{
		Summary: session.ContextSummary,
		Recent:  recent,
	}, nil
}

// End deactivates the session explicitly.
func (r *Registry) End(ctx context.Context, userID, sessionID uuid.UUID) error {
	return r.sessions.Deactivate(ctx, userID, sessionID)
}

// SummarizeIfNeeded compacts the oldest batch of messages into the rolling
// summary once the live window outgrows the configured size. Compaction is
// best-effort: when the summarizer is down the window simply stays large
// until a later attempt succeeds.
func (r *Registry) SummarizeIfNeeded(ctx context.Context, session *models.ChatSession) error {
	if r.extractor == nil {
		return nil
	}

	count, err := r.messages.CountBySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if count <= r.messageWindow() {
		return nil
	}

	batch, err := r.messages.ListOldest(ctx, session.UserID, session.ID, r.compactBatch())
	if err != nil {
		return fmt.Errorf("load compaction batch: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	summary, err := r.extractor.Summarize(ctx, batch)
	if err != nil {
		r.logger.WithError(err).WithField("session_id", session.ID).
			Warn("transcript compaction skipped, summarizer unavailable")
		return nil
	}

	merged := summary
	if prev := strings.TrimSpace(session.ContextSummary); prev != "" {
		merged = prev + "\n" + summary
	}
	if err := r.sessions.SetSummary(ctx, session.UserID, session.ID, merged); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	ids := make([]uuid.UUID, len(batch))
	for i, m := range batch {
		ids[i] = m.ID
	}
	if err := r.messages.Delete(ctx, session.ID, ids); err != nil {
		return fmt.Errorf("trim compacted messages: %w", err)
	}

	session.ContextSummary = merged
	r.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"compacted":  len(batch),
	}).Info("compacted transcript window into summary")
	return nil
}

func (r *Registry) idleTimeout() time.Duration {
	if r.cfg.IdleTimeout > 0 {
		return r.cfg.IdleTimeout
	}
	return 24 * time.Hour
}

func (r *Registry) messageWindow() int {
	if r.cfg.MessageWindow > 0 {
		return r.cfg.MessageWindow
	}
	return 50
}

func (r *Registry) compactBatch() int {
	if r.cfg.CompactBatch > 0 {
		return r.cfg.CompactBatch
	}
	return 20
}
