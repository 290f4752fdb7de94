package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new chat session
func (r *SessionRepository) Create(ctx context.Context, session *models.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	query := `
		INSERT INTO chat_sessions (id, user_id, started_at, last_activity_at, is_active, context_summary, message_count)
		VALUES (:id, :user_id, :started_at, :last_activity_at, :is_active, :context_summary, :message_count)
	`

	_, err := r.db.NamedExecContext(ctx, query, session)
	return err
}

// Get retrieves a session by ID, scoped to its owner
func (r *SessionRepository) Get(ctx context.Context, userID, id uuid.UUID) (*models.ChatSession, error) {
	var session models.ChatSession
	query := `
		SELECT id, user_id, started_at, last_activity_at, is_active, context_summary, message_count
		FROM chat_sessions
		WHERE id = $1 AND user_id = $2
	`

	err := r.db.GetContext(ctx, &session, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &session, nil
}

// LatestActive returns the user's most recently active session
func (r *SessionRepository) LatestActive(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	var session models.ChatSession
	query := `
		SELECT id, user_id, started_at, last_activity_at, is_active, context_summary, message_count
		FROM chat_sessions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY last_activity_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &session, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &session, nil
}

// Touch bumps activity time and message count
func (r *SessionRepository) Touch(ctx context.Context, userID, id uuid.UUID, at time.Time, delta int) error {
	query := `
		UPDATE chat_sessions
		SET last_activity_at = $1, message_count = message_count + $2
		WHERE id = $3 AND user_id = $4
	`
	res, err := r.db.ExecContext(ctx, query, at, delta, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Deactivate marks a session inactive
func (r *SessionRepository) Deactivate(ctx context.Context, userID, id uuid.UUID) error {
	query := `UPDATE chat_sessions SET is_active = FALSE WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, userID)
	return err
}

// SetSummary replaces the session's rolling context summary
func (r *SessionRepository) SetSummary(ctx context.Context, userID, id uuid.UUID, summary string) error {
	query := `UPDATE chat_sessions SET context_summary = $1 WHERE id = $2 AND user_id = $3`
	res, err := r.db.ExecContext(ctx, query, summary, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
