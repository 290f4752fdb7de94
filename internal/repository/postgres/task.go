package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// TaskStore implements repository.TaskStore using PostgreSQL
type TaskStore struct {
	db *sqlx.DB
}

// NewTaskStore creates a new PostgreSQL task store
func NewTaskStore(db *sqlx.DB) repository.TaskStore {
	return &TaskStore{db: db}
}

// Get retrieves an owned task by ID
func (s *TaskStore) Get(ctx context.Context, userID uuid.UUID, id int64) (*models.Task, error) {
	var task models.Task
	query := `
		SELECT id, user_id, title, description, is_completed, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND user_id = $2
	`

	err := s.db.GetContext(ctx, &task, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &task, nil
}

// Create inserts a new task and fills in its generated ID
func (s *TaskStore) Create(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Priority == "" {
		task.Priority = "medium"
	}

	query := `
		INSERT INTO tasks (user_id, title, description, is_completed, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	return s.db.QueryRowxContext(ctx, query,
		task.UserID, task.Title, task.Description, task.IsCompleted,
		task.Priority, task.DueDate, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
}

// Update rewrites a task's mutable fields, owner-gated
func (s *TaskStore) Update(ctx context.Context, userID uuid.UUID, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = $1, description = $2, is_completed = $3, priority = $4, due_date = $5, updated_at = $6
		WHERE id = $7 AND user_id = $8
	`
	res, err := s.db.ExecContext(ctx, query,
		task.Title, task.Description, task.IsCompleted, task.Priority,
		task.DueDate, task.UpdatedAt, task.ID, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an owned task
func (s *TaskStore) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	res, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteWhere removes all owned tasks matching the filters
func (s *TaskStore) DeleteWhere(ctx context.Context, userID uuid.UUID, filters models.TaskFilters) (int64, error) {
	query := `DELETE FROM tasks WHERE user_id = $1`
	args := []interface{}{userID}

	switch filters.Status {
	case "completed":
		query += ` AND is_completed = TRUE`
	case "pending":
		query += ` AND is_completed = FALSE`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByOwner returns the user's tasks matching the filters
func (s *TaskStore) ListByOwner(ctx context.Context, userID uuid.UUID, filters models.TaskFilters) ([]models.Task, error) {
	query := `
		SELECT id, user_id, title, description, is_completed, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE user_id = $1
	`
	args := []interface{}{userID}

	switch filters.Status {
	case "completed":
		query += ` AND is_completed = TRUE`
	case "pending":
		query += ` AND is_completed = FALSE`
	}
	if filters.TitleContains != "" {
		args = append(args, "%"+filters.TitleContains+"%")
		query += ` AND title ILIKE $` + itoa(len(args))
	}
	if filters.DueFrom != nil {
		args = append(args, *filters.DueFrom)
		query += ` AND due_date >= $` + itoa(len(args))
	}
	if filters.DueTo != nil {
		args = append(args, *filters.DueTo)
		query += ` AND due_date <= $` + itoa(len(args))
	}

	query += ` ORDER BY created_at ASC`

	var tasks []models.Task
	err := s.db.SelectContext(ctx, &tasks, query, args...)
	return tasks, err
}

// FindByTitle returns owned tasks whose title contains substr
func (s *TaskStore) FindByTitle(ctx context.Context, userID uuid.UUID, substr string) ([]models.Task, error) {
	var tasks []models.Task
	query := `
		SELECT id, user_id, title, description, is_completed, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE user_id = $1 AND title ILIKE $2
		ORDER BY created_at ASC
	`

	err := s.db.SelectContext(ctx, &tasks, query, userID, "%"+substr+"%")
	return tasks, err
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
