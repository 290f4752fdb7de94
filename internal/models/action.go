package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind is the operation a proposed action performs against the task store.
type ActionKind string

const (
	ActionCreate   ActionKind = "create"
	ActionUpdate   ActionKind = "update"
	ActionComplete ActionKind = "complete"
	ActionDelete   ActionKind = "delete"
	ActionQuery    ActionKind = "query"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreate, ActionUpdate, ActionComplete, ActionDelete, ActionQuery:
		return true
	}
	return false
}

// Mutating reports whether the kind writes to the task store.
func (k ActionKind) Mutating() bool {
	return k != ActionQuery
}

// ConfirmationState tracks whether the user has approved a proposed action.
type ConfirmationState string

const (
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationConfirmed ConfirmationState = "confirmed"
	ConfirmationRejected  ConfirmationState = "rejected"
)

// ExecutionState tracks whether an approved action has been run and how it ended.
// It only advances past NotExecuted once the confirmation state is confirmed.
type ExecutionState string

const (
	ExecutionNotExecuted ExecutionState = "not_executed"
	ExecutionExecuting   ExecutionState = "executing"
	ExecutionSuccess     ExecutionState = "success"
	ExecutionFailed      ExecutionState = "failed"
)

// Terminal reports whether the execution state can no longer change.
func (s ExecutionState) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed
}

// TaskAction is a proposed, confirmable, executable mutation derived from a
// chat message. Actions are never deleted eagerly; they form the audit trail
// of what the assistant was asked to do and what actually ran.
type TaskAction struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	SessionID         uuid.UUID         `json:"session_id" db:"session_id"`
	MessageID         uuid.UUID         `json:"message_id" db:"message_id"`
	UserID            uuid.UUID         `json:"user_id" db:"user_id"`
	Kind              ActionKind        `json:"kind" db:"kind"`
	Params            ActionParams      `json:"params" db:"params"`
	Confidence        float64           `json:"confidence" db:"confidence"`
	ConfirmationState ConfirmationState `json:"confirmation_state" db:"confirmation_state"`
	ExecutionState    ExecutionState    `json:"execution_state" db:"execution_state"`
	TaskID            *int64            `json:"task_id,omitempty" db:"task_id"`
	ErrorDetail       *string           `json:"error_detail,omitempty" db:"error_detail"`
	ProposedAt        time.Time         `json:"proposed_at" db:"proposed_at"`
	ConfirmedAt       *time.Time        `json:"confirmed_at,omitempty" db:"confirmed_at"`
	ExecutedAt        *time.Time        `json:"executed_at,omitempty" db:"executed_at"`
}
