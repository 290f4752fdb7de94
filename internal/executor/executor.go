// Package executor applies confirmed task actions to the task store and
// renders the outcome as a chat-friendly message. It never touches action
// state; the broker owns the confirm/execute state machine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// ErrTargetNotFound means the action referenced a task that does not exist
// or is not visible to the owner.
var ErrTargetNotFound = errors.New("target task not found")

// AmbiguousTargetError means a title keyword matched more than one task.
type AmbiguousTargetError struct {
	Target  string
	Matches []models.Task
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("multiple tasks match %q (%d matches)", e.Target, len(e.Matches))
}

// Result is the outcome of executing one action.
type Result struct {
	// Message is the natural-language response shown in chat.
	Message string
	// TaskID is set for single-task mutations.
	TaskID *int64
	// Task is the post-mutation state for create/update/complete.
	Task *models.Task
	// Tasks holds the matches of a query action.
	Tasks []models.Task
	// DeletedCount is set for delete actions.
	DeletedCount int64
}

// Executor runs validated actions against the owner's tasks.
type Executor struct {
	tasks  repository.TaskStore
	logger *logrus.Logger
}

func New(tasks repository.TaskStore, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Executor{tasks: tasks, logger: logger}
}

// ResolveTarget maps a task identifier onto exactly one owned task. A
// numeric identifier is tried as a task ID first; otherwise it is a
// case-insensitive title keyword. More than one keyword match is an
// AmbiguousTargetError.
func (e *Executor) ResolveTarget(ctx context.Context, userID uuid.UUID, target string) (*models.Task, error) {
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		task, err := e.tasks.Get(ctx, userID, id)
		if err == nil {
			return task, nil
		}
		if err != repository.ErrNotFound {
			return nil, err
		}
		// Fall through to a title search; "42" might be a keyword.
	}

	matches, err := e.tasks.FindByTitle(ctx, userID, target)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, ErrTargetNotFound
	case 1:
		return &matches[0], nil
	default:
		e.logger.WithFields(logrus.Fields{
			"target":  target,
			"matches": len(matches),
		}).Warn("ambiguous task identifier")
		return nil, &AmbiguousTargetError{Target: target, Matches: matches}
	}
}

// Execute runs the action's mutation or query. The action must already be
// confirmed and validated; Execute trusts its params.
func (e *Executor) Execute(ctx context.Context, action *models.TaskAction) (*Result, error) {
	switch action.Kind {
	case models.ActionCreate:
		return e.executeCreate(ctx, action.UserID, action.Params.Create)
	case models.ActionUpdate:
		return e.executeUpdate(ctx, action.UserID, action.Params.Update)
	case models.ActionComplete:
		return e.executeComplete(ctx, action.UserID, action.Params.Complete)
	case models.ActionDelete:
		return e.executeDelete(ctx, action.UserID, action.Params.Delete)
	case models.ActionQuery:
		return e.executeQuery(ctx, action.UserID, action.Params.Query)
	default:
		return nil, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *Executor) executeCreate(ctx context.Context, userID uuid.UUID, p *models.CreateParams) (*Result, error) {
	priority := p.Priority
	if priority == "" {
		priority = "medium"
	}
	task := &models.Task{
		UserID:      userID,
		Title:       p.Title,
		Description: p.Description,
		Priority:    priority,
		DueDate:     p.DueDate,
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"user_id": userID,
	}).Info("task created from chat action")

	msg := fmt.Sprintf("Task '%s' created successfully", task.Title)
	if task.DueDate != nil {
		msg += fmt.Sprintf(", due %s", task.DueDate.Format("January 2, 2006"))
	}
	return &Result{Message: msg + ".", TaskID: &task.ID, Task: task}, nil
}

func (e *Executor) executeUpdate(ctx context.Context, userID uuid.UUID, p *models.UpdateParams) (*Result, error) {
	task, err := e.ResolveTarget(ctx, userID, p.Target)
	if err != nil {
		return nil, err
	}

	var changed []string
	if p.Title != nil {
		task.Title = *p.Title
		changed = append(changed, "title")
	}
	if p.Description != nil {
		task.Description = *p.Description
		changed = append(changed, "description")
	}
	if err := e.tasks.Update(ctx, userID, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"user_id": userID,
		"fields":  changed,
	}).Info("task updated from chat action")

	return &Result{
		Message: fmt.Sprintf("Task '%s' updated (%s).", task.Title, strings.Join(changed, ", ")),
		TaskID:  &task.ID,
		Task:    task,
	}, nil
}

func (e *Executor) executeComplete(ctx context.Context, userID uuid.UUID, p *models.CompleteParams) (*Result, error) {
	task, err := e.ResolveTarget(ctx, userID, p.Target)
	if err != nil {
		return nil, err
	}

	// Completion is a toggle so "mark X done" on a finished task reopens it.
	task.IsCompleted = !task.IsCompleted
	if err := e.tasks.Update(ctx, userID, task); err != nil {
		return nil, fmt.Errorf("toggle completion: %w", err)
	}

	status := "complete"
	if !task.IsCompleted {
		status = "incomplete"
	}
	e.logger.WithFields(logrus.Fields{
		"task_id":      task.ID,
		"user_id":      userID,
		"is_completed": task.IsCompleted,
	}).Info("task completion toggled from chat action")

	return &Result{
		Message: fmt.Sprintf("Task '%s' marked as %s.", task.Title, status),
		TaskID:  &task.ID,
		Task:    task,
	}, nil
}

func (e *Executor) executeDelete(ctx context.Context, userID uuid.UUID, p *models.DeleteParams) (*Result, error) {
	if p.Bulk != nil {
		filters := models.TaskFilters{Status: p.Bulk.Status}
		n, err := e.tasks.DeleteWhere(ctx, userID, filters)
		if err != nil {
			return nil, fmt.Errorf("bulk delete: %w", err)
		}
		e.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"deleted": n,
			"status":  p.Bulk.Status,
		}).Info("bulk delete executed from chat action")

		word := "tasks"
		if n == 1 {
			word = "task"
		}
		return &Result{
			Message:      fmt.Sprintf("%d %s deleted.", n, word),
			DeletedCount: n,
		}, nil
	}

	task, err := e.ResolveTarget(ctx, userID, p.Target)
	if err != nil {
		return nil, err
	}
	if err := e.tasks.Delete(ctx, userID, task.ID); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"user_id": userID,
	}).Info("task deleted from chat action")

	return &Result{
		Message:      fmt.Sprintf("Task '%s' deleted successfully.", task.Title),
		TaskID:       &task.ID,
		DeletedCount: 1,
	}, nil
}

func (e *Executor) executeQuery(ctx context.Context, userID uuid.UUID, p *models.QueryParams) (*Result, error) {
	tasks, err := e.tasks.ListByOwner(ctx, userID, p.Filters)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return &Result{
		Message: FormatQueryResults(tasks, p.Filters),
		Tasks:   tasks,
	}, nil
}

// FormatQueryResults renders a task list as a natural-language summary for
// the chat transcript. Long lists are truncated at twenty entries.
func FormatQueryResults(tasks []models.Task, filters models.TaskFilters) string {
	filterDesc := describeFilters(filters)

	if len(tasks) == 0 {
		if filterDesc != "" {
			return fmt.Sprintf("You don't have any tasks %s.", filterDesc)
		}
		return "You don't have any tasks yet. Would you like to create one?"
	}

	count := len(tasks)
	word := "task"
	if count != 1 {
		word = "tasks"
	}
	filterContext := ""
	if filterDesc != "" {
		filterContext = " " + filterDesc
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d %s%s:\n", count, word, filterContext)
	for i, task := range tasks {
		if i == 20 {
			fmt.Fprintf(&b, "\n...and %d more.", count-20)
			break
		}
		status := "○"
		if task.IsCompleted {
			status = "✓"
		}
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, status, task.Title)
	}
	b.WriteString("\n\nWould you like me to help with any of these tasks?")
	return b.String()
}

func describeFilters(filters models.TaskFilters) string {
	var parts []string
	switch filters.Status {
	case "completed":
		parts = append(parts, "that are completed")
	case "pending":
		parts = append(parts, "that are pending")
	}
	switch {
	case filters.DueFrom != nil && filters.DueTo != nil && filters.DueFrom.Equal(*filters.DueTo):
		parts = append(parts, fmt.Sprintf("due on %s", filters.DueFrom.Format("2006-01-02")))
	case filters.DueFrom != nil && filters.DueTo != nil:
		parts = append(parts, fmt.Sprintf("due between %s and %s",
			filters.DueFrom.Format("2006-01-02"), filters.DueTo.Format("2006-01-02")))
	case filters.DueFrom != nil:
		parts = append(parts, fmt.Sprintf("due after %s", filters.DueFrom.Format("2006-01-02")))
	case filters.DueTo != nil:
		parts = append(parts, fmt.Sprintf("due before %s", filters.DueTo.Format("2006-01-02")))
	}
	if filters.TitleContains != "" {
		parts = append(parts, fmt.Sprintf("containing '%s'", filters.TitleContains))
	}
	return strings.Join(parts, " ")
}
