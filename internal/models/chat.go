package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies who produced a chat message.
type MessageRole string

const (
	RoleUser               MessageRole = "user"
	RoleAssistant          MessageRole = "assistant"
	RoleSystemNotification MessageRole = "system_notification"
)

// ChatSession represents one conversation with the task assistant.
// At most one active session per user; a session idle for longer than
// the configured window is marked inactive and replaced on the next message.
type ChatSession struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	ContextSummary string    `json:"context_summary,omitempty" db:"context_summary"`
	MessageCount   int       `json:"message_count" db:"message_count"`
}

// ChatMessage is a single transcript entry. Immutable once created;
// messages outside the live window get folded into the session's
// context summary and deleted.
type ChatMessage struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	UserID    uuid.UUID   `json:"user_id" db:"user_id"`
	SessionID uuid.UUID   `json:"session_id" db:"session_id"`
	Role      MessageRole `json:"role" db:"role"`
	Content   string      `json:"content" db:"content"`
	Metadata  JSONB       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// JSONB maps to a Postgres jsonb column.
type JSONB map[string]interface{}

// Value implements driver.Valuer for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}
