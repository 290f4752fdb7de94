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

// ActionRepository implements repository.ActionRepository using PostgreSQL.
// The pending->confirmed transition is a conditional UPDATE: whichever
// request flips the row wins, everyone else sees zero rows affected.
type ActionRepository struct {
	db *sqlx.DB
}

// NewActionRepository creates a new PostgreSQL action repository
func NewActionRepository(db *sqlx.DB) repository.ActionRepository {
	return &ActionRepository{db: db}
}

// Create persists a freshly proposed action
func (r *ActionRepository) Create(ctx context.Context, action *models.TaskAction) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	if action.ProposedAt.IsZero() {
		action.ProposedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO task_actions (
			id, session_id, message_id, user_id, kind, params, confidence,
			confirmation_state, execution_state, task_id, error_detail,
			proposed_at, confirmed_at, executed_at
		) VALUES (
			:id, :session_id, :message_id, :user_id, :kind, :params, :confidence,
			:confirmation_state, :execution_state, :task_id, :error_detail,
			:proposed_at, :confirmed_at, :executed_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, action)
	return err
}

// Get retrieves an action by ID
func (r *ActionRepository) Get(ctx context.Context, id uuid.UUID) (*models.TaskAction, error) {
	var action models.TaskAction
	query := `
		SELECT id, session_id, message_id, user_id, kind, params, confidence,
		       confirmation_state, execution_state, task_id, error_detail,
		       proposed_at, confirmed_at, executed_at
		FROM task_actions
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &action, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &action, nil
}

// ListPending returns the user's unconfirmed actions, newest first
func (r *ActionRepository) ListPending(ctx context.Context, userID uuid.UUID) ([]models.TaskAction, error) {
	var actions []models.TaskAction
	query := `
		SELECT id, session_id, message_id, user_id, kind, params, confidence,
		       confirmation_state, execution_state, task_id, error_detail,
		       proposed_at, confirmed_at, executed_at
		FROM task_actions
		WHERE user_id = $1 AND confirmation_state = 'pending'
		ORDER BY proposed_at DESC
	`

	err := r.db.SelectContext(ctx, &actions, query, userID)
	return actions, err
}

// BeginExecution claims a pending action for execution
func (r *ActionRepository) BeginExecution(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE task_actions
		SET confirmation_state = 'confirmed', execution_state = 'executing', confirmed_at = $1
		WHERE id = $2 AND confirmation_state = 'pending' AND execution_state = 'not_executed'
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkRejected declines a pending action
func (r *ActionRepository) MarkRejected(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE task_actions
		SET confirmation_state = 'rejected', confirmed_at = $1
		WHERE id = $2 AND confirmation_state = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishExecution records the terminal outcome of an executing action
func (r *ActionRepository) FinishExecution(ctx context.Context, id uuid.UUID, state models.ExecutionState, taskID *int64, errDetail *string, at time.Time) error {
	query := `
		UPDATE task_actions
		SET execution_state = $1, task_id = $2, error_detail = $3, executed_at = $4
		WHERE id = $5 AND execution_state = 'executing'
	`
	res, err := r.db.ExecContext(ctx, query, state, taskID, errDetail, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// PurgeExpired enforces bounded retention on the audit trail
func (r *ActionRepository) PurgeExpired(ctx context.Context, executedBefore, pendingBefore time.Time) (int64, error) {
	query := `
		DELETE FROM task_actions
		WHERE (execution_state IN ('success', 'failed') AND executed_at < $1)
		   OR (confirmation_state = 'pending' AND proposed_at < $2)
	`
	res, err := r.db.ExecContext(ctx, query, executedBefore, pendingBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
