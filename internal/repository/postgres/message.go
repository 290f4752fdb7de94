package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a transcript message
func (r *MessageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Metadata == nil {
		message.Metadata = models.JSONB{}
	}

	query := `
		INSERT INTO chat_messages (id, user_id, session_id, role, content, metadata, created_at)
		VALUES (:id, :user_id, :session_id, :role, :content, :metadata, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, message)
	return err
}

// ListRecent returns the newest messages of a session, oldest first
func (r *MessageRepository) ListRecent(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	query := `
		SELECT id, user_id, session_id, role, content, metadata, created_at FROM (
			SELECT id, user_id, session_id, role, content, metadata, created_at
			FROM chat_messages
			WHERE session_id = $1 AND user_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &messages, query, sessionID, userID, limit)
	return messages, err
}

// ListOldest returns the oldest messages of a session, oldest first
func (r *MessageRepository) ListOldest(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	query := `
		SELECT id, user_id, session_id, role, content, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1 AND user_id = $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	err := r.db.SelectContext(ctx, &messages, query, sessionID, userID, limit)
	return messages, err
}

// Delete drops compacted messages from the live window
func (r *MessageRepository) Delete(ctx context.Context, sessionID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `DELETE FROM chat_messages WHERE session_id = $1 AND id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, sessionID, pq.Array(strIDs))
	return err
}

// CountBySession returns the live message count for a session
func (r *MessageRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`
	err := r.db.GetContext(ctx, &count, query, sessionID)
	return count, err
}
