package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is a persisted record of a security- or lifecycle-relevant event:
// ownership violations, quota denials, action confirmations and failures.
type AuditLog struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       *uuid.UUID `json:"user_id" db:"user_id"`
	Action       string     `json:"action" db:"action"`
	ResourceType string     `json:"resource_type" db:"resource_type"`
	ResourceID   string     `json:"resource_id" db:"resource_id"`
	Metadata     JSONB      `json:"metadata" db:"metadata"`
	Status       string     `json:"status" db:"status"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
