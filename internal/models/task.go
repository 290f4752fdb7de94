package models

import (
	"time"

	"github.com/google/uuid"
)

// Task is a todo item owned by a single user. The task store is the system
// of record; actions hold a non-owning back-reference by id.
type Task struct {
	ID          int64      `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	IsCompleted bool       `json:"is_completed" db:"is_completed"`
	Priority    string     `json:"priority,omitempty" db:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
